package sched

import (
	"context"
	"sync"
	"time"
)

type preemptive struct {
	cfg Config
	wg  sync.WaitGroup
}

func newPreemptive(cfg Config) *preemptive {
	return &preemptive{cfg: cfg}
}

func (p *preemptive) Spawn(ctx context.Context, name string, task Task) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		guard(withEnv(ctx, p), p.cfg, name, task)
	}()
}

func (p *preemptive) Run(ctx context.Context, main Task) {
	guard(withEnv(ctx, p), p.cfg, "main", main)
}

func (p *preemptive) Join() {
	p.wg.Wait()
}

func (p *preemptive) Model() Model {
	return Preemptive
}

func (p *preemptive) yield(ctx context.Context) bool {
	return ctx.Err() == nil
}

func (p *preemptive) idle(ctx context.Context) bool {
	return sleep(ctx, p.cfg.PollInterval)
}

func (p *preemptive) pollTimeout() time.Duration {
	return p.cfg.QueueWait
}

func (p *preemptive) model() Model {
	return Preemptive
}
