package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"contract-relay/internal/models"
)

type jobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.ValidationJob, error)
}

type jobRunner interface {
	RunJob(ctx context.Context, job *models.ValidationJob) error
}

// Pool drains the validation queue with a fixed number of goroutines.
type Pool struct {
	queue       jobSource
	runner      jobRunner
	workerCount int
	popTimeout  time.Duration
	logger      *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewPool(queue jobSource, runner jobRunner, workerCount int, logger *zap.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:       queue,
		runner:      runner,
		workerCount: workerCount,
		popTimeout:  30 * time.Second,
		logger:      logger.Named("worker"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("started worker goroutines", zap.Int("count", p.workerCount))
}

// Stop interrupts waiting workers and returns once every in-flight job has
// finished.
func (p *Pool) Stop() {
	p.stopOnce.Do(p.cancel)
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker", id))

	for {
		if p.ctx.Err() != nil {
			logger.Debug("worker shutting down")
			return
		}

		job, err := p.queue.Pop(p.ctx, p.popTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			logger.Warn("failed to pop job", zap.Error(err))
			p.pause(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		logger.Info("processing validation",
			zap.Stringer("validation_id", job.ValidationID),
			zap.String("session_id", job.Input.SessionID),
			zap.Duration("queued_for", time.Since(job.EnqueuedAt)),
		)

		// A started job runs to completion even during shutdown.
		if err := p.runner.RunJob(context.WithoutCancel(p.ctx), job); err != nil {
			logger.Error("validation job failed", zap.Stringer("validation_id", job.ValidationID), zap.Error(err))
		}
	}
}

func (p *Pool) pause(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.ctx.Done():
	case <-t.C:
	}
}
