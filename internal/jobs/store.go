package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/mecaparts/knowledge-gateway/pkg/errors"
	"github.com/mecaparts/knowledge-gateway/pkg/redis"
)

const (
	jobKeyPrefix = "job:"
	indexKey     = "jobs:index"
	webActiveKey = "jobs:web:active"
)

// Store persists jobs and enforces the single-flight web job rule. The
// orchestrator is the only writer per job id; readers see committed
// snapshots.
type Store interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context) ([]*Job, error)
	// AcquireWebSlot atomically claims the "one running web job" marker.
	AcquireWebSlot(ctx context.Context, jobID string) (bool, error)
	ReleaseWebSlot(ctx context.Context, jobID string) error
}

// RedisStore implements Store with per-job TTL'd JSON values and a set
// index of live job ids (TTL'd at twice the job TTL so enumeration outlives
// individual entries).
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a RedisStore with the given job retention window.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "job-store"),
	}
}

func (s *RedisStore) Put(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job %s: %w", job.ID, err)
	}
	if err := s.client.Set(ctx, jobKeyPrefix+job.ID, data, s.ttl); err != nil {
		return fmt.Errorf("storing job %s: %w", job.ID, err)
	}
	if err := s.client.SAdd(ctx, indexKey, 2*s.ttl, job.ID); err != nil {
		return fmt.Errorf("indexing job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, jobKeyPrefix+id)
	if redis.IsNilError(err) {
		return nil, apperrors.Newf(apperrors.ErrJobNotFound, 404, "job %s expired or never existed", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Job, error) {
	ids, err := s.client.SMembers(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("listing job index: %w", err)
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			// Index entries outlive expired jobs; drop them lazily.
			if sErr := s.client.SRem(ctx, indexKey, id); sErr != nil {
				s.logger.Warn("failed to prune expired job from index", "job_id", id, "error", sErr)
			}
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *RedisStore) AcquireWebSlot(ctx context.Context, jobID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, webActiveKey, jobID, s.ttl)
	if err != nil {
		return false, fmt.Errorf("acquiring web job slot: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) ReleaseWebSlot(ctx context.Context, jobID string) error {
	holder, err := s.client.Get(ctx, webActiveKey)
	if redis.IsNilError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading web job slot: %w", err)
	}
	if holder != jobID {
		s.logger.Warn("web slot held by another job, not releasing",
			"holder", holder, "job_id", jobID)
		return nil
	}
	return s.client.Del(ctx, webActiveKey)
}

// Sweeper marks orphaned running jobs as failed on a fixed interval.
type Sweeper struct {
	store       Store
	interval    time.Duration
	orphanAfter time.Duration
	logger      *slog.Logger
}

// NewSweeper creates a Sweeper over the store. Zero durations fall back to
// the 10-minute interval and 30-minute orphan threshold.
func NewSweeper(store Store, interval, orphanAfter time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if orphanAfter <= 0 {
		orphanAfter = 30 * time.Minute
	}
	return &Sweeper{
		store:       store,
		interval:    interval,
		orphanAfter: orphanAfter,
		logger:      slog.Default().With("component", "job-sweeper"),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("job sweeper started", "interval", s.interval, "orphan_after", s.orphanAfter)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job sweeper stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			if swept, err := s.Sweep(ctx); err != nil {
				s.logger.Error("job sweep failed", "error", err)
			} else if swept > 0 {
				s.logger.Info("orphaned jobs swept", "count", swept)
			}
		}
	}
}

// Sweep marks every job still running past the orphan threshold as failed
// and returns how many it touched.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, job := range jobs {
		if job.Status != StatusRunning || time.Since(job.CreatedAt) < s.orphanAfter {
			continue
		}
		job.MarkFailed(fmt.Sprintf("still running after %s, marked failed by orphan sweep", s.orphanAfter))
		if err := s.store.Put(ctx, job); err != nil {
			s.logger.Error("failed to persist swept job", "job_id", job.ID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}
