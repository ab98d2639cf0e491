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
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	perrors "ingest-scheduler/pkg/errors"
)

// PgTracker PostgreSQL 实现 Tracker，使用 ingest_jobs 表
type PgTracker struct {
	pool *pgxpool.Pool
}

// NewPgTracker 连接 dsn 并校验连通性
func NewPgTracker(ctx context.Context, dsn string) (*PgTracker, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgTracker{pool: pool}, nil
}

// NewPgTrackerFromPool 复用已有连接池
func NewPgTrackerFromPool(pool *pgxpool.Pool) *PgTracker {
	return &PgTracker{pool: pool}
}

// Record 实现 Tracker；按 id upsert
func (t *PgTracker) Record(ctx context.Context, r Record) error {
	at := r.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := t.pool.Exec(ctx,
		`INSERT INTO ingest_jobs (id, batch_id, submission_id, state, priority, message, error, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
ON CONFLICT (id) DO UPDATE SET
  state = EXCLUDED.state,
  message = EXCLUDED.message,
  error = EXCLUDED.error,
  updated_at = EXCLUDED.updated_at`,
		r.JobID, r.BatchID, r.SubmissionID, r.State, r.Priority, r.Message, r.Error, at,
	)
	return err
}

const selectRecord = `SELECT id, batch_id, submission_id, state, priority, message, error, updated_at FROM ingest_jobs`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var errText *string
	if err := row.Scan(&r.JobID, &r.BatchID, &r.SubmissionID, &r.State, &r.Priority, &r.Message, &errText, &r.UpdatedAt); err != nil {
		return Record{}, err
	}
	if errText != nil {
		r.Error = *errText
	}
	return r, nil
}

// Get 实现 Tracker
func (t *PgTracker) Get(ctx context.Context, jobID string) (*Record, error) {
	r, err := scanRecord(t.pool.QueryRow(ctx, selectRecord+` WHERE id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.Wrapf(perrors.ErrNotFound, "job %s", jobID)
		}
		return nil, err
	}
	return &r, nil
}

// ListSubmission 实现 Tracker
func (t *PgTracker) ListSubmission(ctx context.Context, submissionID string) ([]Record, error) {
	rows, err := t.pool.Query(ctx, selectRecord+` WHERE submission_id = $1 ORDER BY id`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close 实现 Tracker
func (t *PgTracker) Close() error {
	t.pool.Close()
	return nil
}
