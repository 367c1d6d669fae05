// Package queue provides the in-process execution primitives used by the
// webhook engine: a bounded worker Pool for fire-and-forget jobs and a
// Periodic runner for ticker driven maintenance work.
//
// Both types expose Run(ctx) which returns a func() error suitable for
// errgroup.Group.Go, so a service can supervise them next to its HTTP server:
//
//	pool := queue.NewPool(queue.WithWorkers(8), queue.WithQueueSize(1024))
//	retry := queue.NewPeriodic("webhook-retry", time.Minute, scheduler.Tick)
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(pool.Run(ctx))
//	g.Go(retry.Run(ctx))
//
// Pool.Submit never blocks: when the buffer is full it returns ErrPoolFull and
// the caller decides what to do with the job. Stop drains jobs that were
// already accepted before returning.
package queue
