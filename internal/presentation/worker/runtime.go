package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/pkg/interfaces"
)

// DefaultDrainTimeout bounds how long Run waits for in-flight jobs to
// finish after the consume loop stops, when the caller didn't configure
// one explicitly.
const DefaultDrainTimeout = 30 * time.Second

// Runtime consumes queue deliveries and routes them by job name to a
// registered Processor, running up to WORKER_CONCURRENCY jobs at once.
type Runtime struct {
	queue           ports.Queue
	publisher       ports.Publisher
	processors      map[consts.JobName]interfaces.Processor
	sem             chan struct{}
	wg              sync.WaitGroup
	drainTimeout    time.Duration
	purgeOnShutdown bool
}

func NewRuntime(queue ports.Queue, publisher ports.Publisher, concurrency int, drainTimeout time.Duration, purgeOnShutdown bool) *Runtime {
	if concurrency < 1 {
		concurrency = 1
	}
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &Runtime{
		queue:           queue,
		publisher:       publisher,
		processors:      make(map[consts.JobName]interfaces.Processor),
		sem:             make(chan struct{}, concurrency),
		drainTimeout:    drainTimeout,
		purgeOnShutdown: purgeOnShutdown,
	}
}

func (r *Runtime) Register(name consts.JobName, processor interfaces.Processor) {
	r.processors[name] = processor
}

// Run blocks, consuming deliveries until ctx is cancelled, then drains
// in-flight jobs up to drainTimeout before returning. In-flight jobs run
// detached from ctx's cancellation so a shutdown signal lets them finish
// their current phase instead of aborting mid-write.
func (r *Runtime) Run(ctx context.Context) error {
	err := r.queue.Consume(ctx, r.handle)
	r.drain()
	return err
}

func (r *Runtime) drain() {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.drainTimeout):
		slog.Warn("shutdown drain deadline exceeded, some in-flight jobs may be abandoned", "timeout", r.drainTimeout)
	}
}

func (r *Runtime) handle(ctx context.Context, delivery ports.Delivery) error {
	jobCtx := context.WithoutCancel(ctx)
	r.sem <- struct{}{}
	r.wg.Add(1)
	go func() {
		defer func() {
			<-r.sem
			r.wg.Done()
		}()
		r.process(jobCtx, delivery)
	}()
	return nil
}

func (r *Runtime) process(ctx context.Context, delivery ports.Delivery) {
	jobName := consts.JobName(delivery.JobName)
	processor, ok := r.processors[jobName]
	if !ok {
		slog.Error("no processor registered for job name", "job_name", jobName)
		delivery.Nack(false)
		return
	}

	if err := processor.Process(ctx, delivery.Body); err != nil {
		slog.Error("job processing failed", "job_name", jobName, "attempt", delivery.Attempt, "err", err)
		// False requeue routes through the dead-letter exchange's TTL retry
		// queue instead of an immediate busy-loop redelivery.
		delivery.Nack(false)
		return
	}

	delivery.Ack()
}

// Shutdown purges pending jobs (non-production only), then closes the
// queue connection and the publisher in that order, so no new work is
// accepted before outstanding progress events finish flushing.
func (r *Runtime) Shutdown() {
	if r.purgeOnShutdown {
		if err := r.queue.Purge(); err != nil {
			slog.Error("error purging queue on non-production shutdown", "err", err)
		}
	}
	if err := r.queue.Close(); err != nil {
		slog.Error("error closing queue connection", "err", err)
	}
	if closer, ok := r.publisher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Error("error closing publisher", "err", err)
		}
	}
}
