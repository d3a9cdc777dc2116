package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/watch-service/internal/model"
)

const (
	keyLastRun   = "watch-service:last_run"
	keyLastTrace = "watch-service:last_trace"
)

// RedisStatus stores the last batch timestamp and trace under fixed keys.
type RedisStatus struct {
	rdb *redis.Client
}

// NewRedisStatus returns a status recorder over rdb.
func NewRedisStatus(rdb *redis.Client) *RedisStatus {
	return &RedisStatus{rdb: rdb}
}

// RecordBatch overwrites the stored status with r.
func (s *RedisStatus) RecordBatch(ctx context.Context, r *model.BatchReport) error {
	trace, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode batch report: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyLastRun, r.FinishedAt.UTC().Format(time.RFC3339), 0)
		pipe.Set(ctx, keyLastTrace, trace, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record batch status: %w", err)
	}
	return nil
}

// LastBatch returns the most recent report, or model.ErrNotFound if none ran yet.
func (s *RedisStatus) LastBatch(ctx context.Context) (*model.BatchReport, error) {
	raw, err := s.rdb.Get(ctx, keyLastTrace).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read batch status: %w", err)
	}
	var r model.BatchReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode batch status: %w", err)
	}
	return &r, nil
}

// MemoryStatus keeps the last report in process.
type MemoryStatus struct {
	mu   sync.Mutex
	last *model.BatchReport
}

func (s *MemoryStatus) RecordBatch(_ context.Context, r *model.BatchReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.Traces = append([]model.RunTrace(nil), r.Traces...)
	s.last = &cp
	return nil
}

func (s *MemoryStatus) LastBatch(context.Context) (*model.BatchReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, model.ErrNotFound
	}
	cp := *s.last
	return &cp, nil
}
