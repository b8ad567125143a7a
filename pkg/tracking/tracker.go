// Package tracking records partial registration progress for funnel
// analytics. Sessions are created on first interaction, updated through a
// debouncer and deleted once registration completes. Sessions idle past
// their TTL are evicted from memory; their last snapshot stays upstream.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/model"
)

// ErrUnknownSession is returned for IDs the tracker does not hold.
var ErrUnknownSession = errors.New("tracking: unknown session")

// DefaultIdleTTL is how long a session survives without updates.
const DefaultIdleTTL = 30 * time.Minute

// Sink receives snapshots. *client.Tracking satisfies it.
type Sink interface {
	Put(ctx context.Context, snapshot client.TrackingSnapshot) error
	Delete(ctx context.Context, id string) error
}

// Session is one tracked registration attempt.
type Session struct {
	ID        string                  `json:"id"`
	Snapshot  client.TrackingSnapshot `json:"snapshot"`
	CreatedAt time.Time               `json:"createdAt"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// Tracker owns the live sessions of this process.
type Tracker struct {
	sink      Sink
	debouncer *Debouncer
	clock     clock.Clock
	logger    *zap.Logger
	timeout   time.Duration
	idleTTL   time.Duration

	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithDebounce sets the quiet period of updates.
func WithDebounce(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.debouncer = NewDebouncer(d)
		}
	}
}

// WithIdleTTL sets how long a session is kept after its last update.
func WithIdleTTL(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.idleTTL = d
		}
	}
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker creates a Tracker sending snapshots to sink.
func NewTracker(sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		sink:      sink,
		debouncer: NewDebouncer(DefaultDebounce),
		clock:     clock.System(),
		logger:    zap.NewNop(),
		timeout:   10 * time.Second,
		idleTTL:   DefaultIdleTTL,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Start creates a session and sends its first snapshot right away. The
// session is usable even when the send fails.
func (t *Tracker) Start(ctx context.Context, snapshot client.TrackingSnapshot) (Session, error) {
	now := t.clock.Now()
	snapshot.ID = uuid.NewString()
	session := &Session{ID: snapshot.ID, Snapshot: snapshot, CreatedAt: now, UpdatedAt: now}

	t.mu.Lock()
	t.sweepLocked(now)
	t.sessions[session.ID] = session
	out := *session
	t.mu.Unlock()

	if err := t.sink.Put(ctx, snapshot); err != nil {
		t.logger.Warn("tracking start failed", zap.String("session", session.ID), zap.Error(err))
		return out, fmt.Errorf("tracking: start %s: %w", session.ID, err)
	}
	return out, nil
}

// Update merges the non-empty fields of changes and schedules a debounced
// send of the merged snapshot.
func (t *Tracker) Update(id string, changes client.TrackingSnapshot) (Session, error) {
	now := t.clock.Now()
	t.mu.Lock()
	session, ok := t.liveLocked(id, now)
	if !ok {
		t.mu.Unlock()
		return Session{}, ErrUnknownSession
	}
	merge(&session.Snapshot, changes)
	session.UpdatedAt = now
	out := *session
	t.mu.Unlock()

	t.debouncer.Trigger(id, func() { t.send(id) })
	return out, nil
}

func (t *Tracker) send(id string) {
	t.mu.Lock()
	session, ok := t.sessions[id]
	var snapshot client.TrackingSnapshot
	if ok {
		snapshot = session.Snapshot
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.sink.Put(ctx, snapshot); err != nil {
		t.logger.Warn("tracking update failed", zap.String("session", id), zap.Error(err))
	}
}

// Get returns a copy of the session.
func (t *Tracker) Get(id string) (Session, bool) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.liveLocked(id, now)
	if !ok {
		return Session{}, false
	}
	return *session, true
}

// Len reports the number of sessions held, expired or not.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Sweep evicts every session idle past the TTL and returns how many went.
func (t *Tracker) Sweep() int {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictLocked(now)
}

func (t *Tracker) liveLocked(id string, now time.Time) (*Session, bool) {
	session, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	if t.idleLocked(session, now) {
		t.dropLocked(id)
		return nil, false
	}
	return session, true
}

func (t *Tracker) idleLocked(session *Session, now time.Time) bool {
	return now.Sub(session.UpdatedAt) >= t.idleTTL
}

// sweepLocked evicts idle sessions at most once per TTL/4 so Start stays
// cheap under load.
func (t *Tracker) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < t.idleTTL/4 {
		return
	}
	t.evictLocked(now)
}

func (t *Tracker) evictLocked(now time.Time) int {
	t.lastSweep = now
	evicted := 0
	for id, session := range t.sessions {
		if t.idleLocked(session, now) {
			t.dropLocked(id)
			evicted++
		}
	}
	if evicted > 0 {
		t.logger.Debug("tracking sessions evicted", zap.Int("count", evicted))
	}
	return evicted
}

func (t *Tracker) dropLocked(id string) {
	delete(t.sessions, id)
	t.debouncer.Cancel(id)
}

// Complete drops any pending update and deletes the session upstream.
func (t *Tracker) Complete(ctx context.Context, id string) error {
	t.debouncer.Cancel(id)
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
	if err := t.sink.Delete(ctx, id); err != nil {
		t.logger.Warn("tracking delete failed", zap.String("session", id), zap.Error(err))
		return fmt.Errorf("tracking: complete %s: %w", id, err)
	}
	return nil
}

// Flush sends every pending update now.
func (t *Tracker) Flush() { t.debouncer.Flush() }

// Close flushes pending updates and stops the debouncer.
func (t *Tracker) Close() { t.debouncer.Stop() }

// SnapshotFromValues picks the tracked fields out of registration values.
func SnapshotFromValues(values model.Values, step string) client.TrackingSnapshot {
	text := func(name string) string {
		value, _ := values[name].(string)
		return value
	}
	return client.TrackingSnapshot{
		Step:       step,
		FirstName:  text("firstName"),
		LastName:   text("lastName"),
		Email:      text("email"),
		Street:     text("street"),
		City:       text("city"),
		State:      text("state"),
		PostalCode: text("postalCode"),
	}
}

func merge(dst *client.TrackingSnapshot, src client.TrackingSnapshot) {
	set := func(target *string, value string) {
		if value != "" {
			*target = value
		}
	}
	set(&dst.Step, src.Step)
	set(&dst.FirstName, src.FirstName)
	set(&dst.LastName, src.LastName)
	set(&dst.Email, src.Email)
	set(&dst.Street, src.Street)
	set(&dst.City, src.City)
	set(&dst.State, src.State)
	set(&dst.PostalCode, src.PostalCode)
}
