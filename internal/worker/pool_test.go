package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"contract-relay/internal/models"
)

type chanQueue struct {
	jobs chan *models.ValidationJob
}

func (q *chanQueue) Pop(ctx context.Context, timeout time.Duration) (*models.ValidationJob, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, nil
	case job := <-q.jobs:
		return job, nil
	}
}

type recordingRunner struct {
	mu   sync.Mutex
	ran  []uuid.UUID
	err  error
	hold chan struct{}
}

func (r *recordingRunner) RunJob(ctx context.Context, job *models.ValidationJob) error {
	if r.hold != nil {
		<-r.hold
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, job.ValidationID)
	return r.err
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

func TestPool_RunsQueuedJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	queue := &chanQueue{jobs: make(chan *models.ValidationJob, 10)}
	runner := &recordingRunner{err: errors.New("logged, not fatal")}
	pool := NewPool(queue, runner, 3, zap.NewNop())
	pool.popTimeout = 50 * time.Millisecond
	pool.Start()

	for i := 0; i < 5; i++ {
		queue.jobs <- &models.ValidationJob{ValidationID: uuid.New(), EnqueuedAt: time.Now()}
	}

	require.Eventually(t, func() bool { return runner.count() == 5 }, 2*time.Second, 10*time.Millisecond)
	pool.Stop()
	pool.Stop()
}

func TestPool_StopWaitsForInFlightJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	queue := &chanQueue{jobs: make(chan *models.ValidationJob, 1)}
	runner := &recordingRunner{hold: make(chan struct{})}
	pool := NewPool(queue, runner, 1, zap.NewNop())
	pool.Start()

	queue.jobs <- &models.ValidationJob{ValidationID: uuid.New()}
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.hold)
	<-stopped
	assert.Equal(t, 1, runner.count())
}
