package broadcaster

import (
	"context"
	"runtime/debug"
	"time"
)

// Ticker is the tick source driving one domain's polling.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Start launches one polling goroutine per domain. The loops run on a
// context detached from ctx so they outlive the request that started them.
func (b *Broadcaster) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	for _, name := range b.order {
		b.wg.Add(1)
		go b.run(runCtx, b.states[name])
	}
	return nil
}

// Stop halts all polling loops and cancels in-flight fetches.
func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel == nil {
		return ErrNotRunning
	}
	b.cancel()
	b.cancel = nil
	return nil
}

func (b *Broadcaster) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

// Wait blocks until every polling goroutine has exited.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

func (b *Broadcaster) run(ctx context.Context, st *domainState) {
	defer b.wg.Done()

	name := st.desc.Name
	period := st.desc.PollPeriod
	if period <= 0 {
		period = st.desc.Cooldown
	}
	if period <= 0 {
		period = 15 * time.Second
	}
	b.logger.Info("domain polling started", "domain", name, "period", period)

	b.safePoll(ctx, name)

	ticker := b.newTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("domain polling stopped", "domain", name)
			return
		case <-ticker.C():
			b.safePoll(ctx, name)
		}
	}
}

// safePoll keeps a panicking cycle from killing the domain's loop.
func (b *Broadcaster) safePoll(ctx context.Context, name string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("domain poll panicked",
				"domain", name, "error", r, "stack", string(debug.Stack()))
		}
	}()
	b.poll(ctx, name, false)
}
