// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jobtrack

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-scheduler/pkg/errors"
)

func setupRedisTracker(t *testing.T, ttl time.Duration) (*RedisTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	tr, err := NewRedisTracker(context.Background(), RedisOptions{Addr: mr.Addr(), TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, mr
}

func TestRedisTracker_RecordAndGet(t *testing.T) {
	tr, mr := setupRedisTracker(t, time.Hour)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

	require.NoError(t, tr.Record(ctx, Record{JobID: "j1", BatchID: "batch-1", SubmissionID: "s1", State: "running", Priority: 130, UpdatedAt: at}))
	require.NoError(t, tr.Record(ctx, Record{JobID: "j1", BatchID: "batch-1", SubmissionID: "s1", State: "completed", Priority: 130, Message: "ok", UpdatedAt: at}))

	r, err := tr.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "completed", r.State)
	assert.Equal(t, 130, r.Priority)
	assert.Equal(t, "ok", r.Message)
	assert.True(t, at.Equal(r.UpdatedAt))

	assert.Equal(t, time.Hour, mr.TTL(jobKeyPrefix+"j1"))
	assert.Equal(t, "completed", mr.HGet(jobKeyPrefix+"j1", "state"))

	_, err = tr.Get(ctx, "nope")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRedisTracker_ListSkipsExpired(t *testing.T) {
	tr, mr := setupRedisTracker(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, tr.Record(ctx, Record{JobID: "b", SubmissionID: "s1", State: "queued"}))
	require.NoError(t, tr.Record(ctx, Record{JobID: "a", SubmissionID: "s1", State: "queued"}))

	list, err := tr.ListSubmission(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].JobID)

	mr.Del(jobKeyPrefix + "a")
	list, err = tr.ListSubmission(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].JobID)

	mr.FastForward(2 * time.Minute)
	list, err = tr.ListSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisTracker_PublishesEvents(t *testing.T) {
	tr, mr := setupRedisTracker(t, 0)
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, tr.Channel())
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.Record(ctx, Record{JobID: "j9", State: "failed", Error: "boom"}))

	select {
	case msg := <-ps.Channel():
		var r Record
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &r))
		assert.Equal(t, "j9", r.JobID)
		assert.Equal(t, "boom", r.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
	assert.Equal(t, defaultTTL, mr.TTL(jobKeyPrefix+"j9"))
}

func TestNewRedisTracker_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewRedisTracker(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}
