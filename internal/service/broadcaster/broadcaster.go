// Package broadcaster keeps named upstream domains in sync and pushes a
// domain's snapshot to subscribers only when its content changes.
package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agreemo/dashboard/backend/internal/model"
)

var (
	ErrUnknownDomain  = errors.New("unknown domain")
	ErrAlreadyRunning = errors.New("broadcaster already running")
	ErrNotRunning     = errors.New("broadcaster not running")
)

const defaultFetchTimeout = 10 * time.Second

type fetcher interface {
	FetchKey(ctx context.Context, endpoint, key, kind string) (any, error)
}

type publisher interface {
	Publish(evt model.Event)
	SendTo(id string, evt model.Event) bool
	Unregister(id string)
}

type runRecorder interface {
	Record(ctx context.Context, run *model.PollRun) error
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// domainState is the mutable state of one domain. All fields are guarded by mu.
type domainState struct {
	desc model.Descriptor

	mu          sync.Mutex
	fingerprint string
	event       model.Event
	hasSnapshot bool
	isFetching  bool
	lastFetchAt time.Time

	lastChangeAt time.Time
	lastError    string
	fetches      int64
	publishes    int64
	errors       int64
}

type Broadcaster struct {
	fetcher      fetcher
	publisher    publisher
	recorder     runRecorder
	clock        Clock
	newTicker    TickerFunc
	fetchTimeout time.Duration
	logger       *slog.Logger

	// order and states are fixed at construction.
	order  []string
	states map[string]*domainState

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Broadcaster)

func WithClock(c Clock) Option {
	return func(b *Broadcaster) { b.clock = c }
}

func WithTicker(f TickerFunc) Option {
	return func(b *Broadcaster) { b.newTicker = f }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.fetchTimeout = d
		}
	}
}

// WithRecorder stores one PollRun per executed fetch cycle.
func WithRecorder(r runRecorder) Option {
	return func(b *Broadcaster) { b.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) { b.logger = l }
}

func New(f fetcher, p publisher, domains []model.Descriptor, opts ...Option) (*Broadcaster, error) {
	if len(domains) == 0 {
		return nil, errors.New("no domains configured")
	}

	b := &Broadcaster{
		fetcher:      f,
		publisher:    p,
		clock:        realClock{},
		newTicker:    NewRealTicker,
		fetchTimeout: defaultFetchTimeout,
		logger:       slog.Default(),
		states:       make(map[string]*domainState, len(domains)),
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, d := range domains {
		if d.Name == "" {
			return nil, errors.New("domain name is required")
		}
		if d.EventName == "" {
			return nil, fmt.Errorf("domain %s: event name is required", d.Name)
		}
		if !d.IsComposite() && d.Endpoint == "" {
			return nil, fmt.Errorf("domain %s: endpoint is required", d.Name)
		}
		if _, dup := b.states[d.Name]; dup {
			return nil, fmt.Errorf("domain %s: defined twice", d.Name)
		}
		b.order = append(b.order, d.Name)
		b.states[d.Name] = &domainState{desc: d}
	}
	return b, nil
}

// PollDomain runs one fetch cycle for name. Overlapping calls and calls
// inside the cooldown window return immediately. Upstream failures are
// logged and leave the stored snapshot untouched; the only error returned
// is ErrUnknownDomain.
func (b *Broadcaster) PollDomain(ctx context.Context, name string) error {
	return b.poll(ctx, name, true)
}

// poll is one fetch cycle. Scheduled cycles pass enforceCooldown=false:
// the ticker already spaces them, and a tick landing a hair before the
// cooldown boundary must not cost a whole period.
func (b *Broadcaster) poll(ctx context.Context, name string, enforceCooldown bool) error {
	st, ok := b.states[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDomain, name)
	}

	started := b.clock.Now()
	if !st.begin(started, enforceCooldown) {
		return nil
	}
	defer st.end()

	run := &model.PollRun{Domain: name, StartedAt: started}

	payload, err := b.fetch(ctx, st.desc)
	if err == nil {
		run.Fingerprint, err = Fingerprint(payload)
	}
	if err != nil {
		b.logger.Error("domain fetch failed", "domain", name, "error", err)
		st.fail(err)
		run.Error = err.Error()
	} else {
		run.Changed = b.commit(st, run.Fingerprint, payload)
	}

	run.DurationMs = b.clock.Now().Sub(started).Milliseconds()
	b.record(run)
	return nil
}

// commit stores the payload and publishes it if its fingerprint differs from
// the stored one. The publish happens under the domain lock so the stored
// fingerprint always matches the last published payload.
func (b *Broadcaster) commit(st *domainState, fp string, payload any) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.lastError = ""
	if st.hasSnapshot && st.fingerprint == fp {
		return false
	}

	st.fingerprint = fp
	st.event = envelope(st.desc, payload)
	st.hasSnapshot = true
	st.lastChangeAt = b.clock.Now()
	st.publishes++

	b.publisher.Publish(st.event)
	b.logger.Info("domain snapshot changed",
		"domain", st.desc.Name, "event", st.desc.EventName, "fingerprint", fp)
	return true
}

func (b *Broadcaster) record(run *model.PollRun) {
	if b.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.recorder.Record(ctx, run); err != nil {
		b.logger.Warn("failed to record poll run", "domain", run.Domain, "error", err)
	}
}

// OnSubscriberConnect sends every stored snapshot to the new subscriber only.
func (b *Broadcaster) OnSubscriberConnect(subscriberID string) {
	for _, name := range b.order {
		st := b.states[name]
		st.mu.Lock()
		if st.hasSnapshot {
			b.publisher.SendTo(subscriberID, st.event)
		}
		st.mu.Unlock()
	}
}

// OnSubscriberDisconnect removes the subscriber from fan-out. Safe to call
// for unknown or already removed subscribers.
func (b *Broadcaster) OnSubscriberDisconnect(subscriberID string) {
	b.publisher.Unregister(subscriberID)
}

// Snapshot returns the stored event of a domain and whether one exists.
func (b *Broadcaster) Snapshot(name string) (model.Event, bool, error) {
	st, ok := b.states[name]
	if !ok {
		return model.Event{}, false, fmt.Errorf("%w: %s", ErrUnknownDomain, name)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.event, st.hasSnapshot, nil
}

// Status lists every domain in configuration order.
func (b *Broadcaster) Status() []model.DomainStatus {
	out := make([]model.DomainStatus, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.states[name].status())
	}
	return out
}

// Domains returns the configured domain names in order.
func (b *Broadcaster) Domains() []string {
	return append([]string(nil), b.order...)
}

func envelope(d model.Descriptor, payload any) model.Event {
	if d.IsComposite() || d.DataKey == "" {
		return model.Event{Name: d.EventName, Data: payload}
	}
	return model.Event{Name: d.EventName, Data: map[string]any{d.DataKey: payload}}
}

// begin claims the domain for one cycle. It fails while another cycle is in
// flight or, when enforceCooldown is set, while the cooldown since the last
// attempt has not elapsed.
func (s *domainState) begin(now time.Time, enforceCooldown bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isFetching {
		return false
	}
	if enforceCooldown && !s.lastFetchAt.IsZero() && now.Sub(s.lastFetchAt) < s.desc.Cooldown {
		return false
	}
	s.isFetching = true
	s.lastFetchAt = now
	s.fetches++
	return true
}

func (s *domainState) end() {
	s.mu.Lock()
	s.isFetching = false
	s.mu.Unlock()
}

func (s *domainState) fail(err error) {
	s.mu.Lock()
	s.errors++
	s.lastError = err.Error()
	s.mu.Unlock()
}

func (s *domainState) status() model.DomainStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.DomainStatus{
		Name:        s.desc.Name,
		EventName:   s.desc.EventName,
		Fingerprint: s.fingerprint,
		HasSnapshot: s.hasSnapshot,
		IsFetching:  s.isFetching,
		LastError:   s.lastError,
		Fetches:     s.fetches,
		Publishes:   s.publishes,
		Errors:      s.errors,
	}
	if !s.lastFetchAt.IsZero() {
		t := s.lastFetchAt
		st.LastFetchAt = &t
	}
	if !s.lastChangeAt.IsZero() {
		t := s.lastChangeAt
		st.LastChangeAt = &t
	}
	return st
}
