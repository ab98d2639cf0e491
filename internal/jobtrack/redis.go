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
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ingest-scheduler/pkg/errors"
)

const (
	jobKeyPrefix        = "ingest:job:"
	submissionKeyPrefix = "ingest:submission:"
	defaultChannel      = "ingest:job:events"
	defaultTTL          = 24 * time.Hour
)

// RedisTracker Redis 实现：每个 job 一个 hash，提交维度一个 set，均带 TTL；每次变更 PUBLISH 到 Channel
type RedisTracker struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

// NewRedisTracker 连接 Redis 并校验连通性
func NewRedisTracker(ctx context.Context, opts RedisOptions) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Password: opts.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return newRedisTracker(client, opts), nil
}

func newRedisTracker(client *redis.Client, opts RedisOptions) *RedisTracker {
	t := &RedisTracker{client: client, channel: opts.Channel, ttl: opts.TTL}
	if t.channel == "" {
		t.channel = defaultChannel
	}
	if t.ttl <= 0 {
		t.ttl = defaultTTL
	}
	return t
}

// Channel 状态变更发布频道
func (t *RedisTracker) Channel() string {
	return t.channel
}

// Record 实现 Tracker
func (t *RedisTracker) Record(ctx context.Context, r Record) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	event, err := json.Marshal(r)
	if err != nil {
		return err
	}
	key := jobKeyPrefix + r.JobID
	_, err = t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]any{
			"job_id":        r.JobID,
			"batch_id":      r.BatchID,
			"submission_id": r.SubmissionID,
			"state":         r.State,
			"priority":      r.Priority,
			"message":       r.Message,
			"error":         r.Error,
			"updated_at":    r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		p.Expire(ctx, key, t.ttl)
		if r.SubmissionID != "" {
			skey := submissionKeyPrefix + r.SubmissionID
			p.SAdd(ctx, skey, r.JobID)
			p.Expire(ctx, skey, t.ttl)
		}
		p.Publish(ctx, t.channel, event)
		return nil
	})
	return err
}

// Get 实现 Tracker
func (t *RedisTracker) Get(ctx context.Context, jobID string) (*Record, error) {
	fields, err := t.client.HGetAll(ctx, jobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", jobID)
	}
	r := Record{
		JobID:        fields["job_id"],
		BatchID:      fields["batch_id"],
		SubmissionID: fields["submission_id"],
		State:        fields["state"],
		Message:      fields["message"],
		Error:        fields["error"],
	}
	r.Priority, _ = strconv.Atoi(fields["priority"])
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return &r, nil
}

// ListSubmission 实现 Tracker；已过期的 job 被跳过
func (t *RedisTracker) ListSubmission(ctx context.Context, submissionID string) ([]Record, error) {
	ids, err := t.client.SMembers(ctx, submissionKeyPrefix+submissionID).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		r, err := t.Get(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// Close 实现 Tracker
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
