package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decoder produces QR text, typically from a camera frame or uploaded image.
// It may block and must honour ctx.
type Decoder func(ctx context.Context) ([]byte, error)

// Session is an operator's scanning session. Decodes that finish after Stop
// are discarded without touching the ledger.
type Session struct {
	ID        string    `json:"id"`
	Operator  string    `json:"operator"`
	StartedAt time.Time `json:"started_at"`

	scanner *Scanner
	now     func() time.Time

	// mu is held across the ledger write only; Stop waits for that write
	// but not for roster lookups.
	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

// Submit decodes outside any lock, then records the payload if the session
// is still open.
func (s *Session) Submit(ctx context.Context, decode Decoder) (Result, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	raw, decodeErr := decode(dctx)

	if s.Closed() || s.ctx.Err() != nil {
		return Result{Outcome: OutcomeCancelled, Message: ErrSessionClosed.Error()}, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return Result{Outcome: OutcomeCancelled, Message: err.Error()}, err
	}
	if decodeErr != nil {
		err := fmt.Errorf("%w: %v", ErrDecodeFailure, decodeErr)
		return Result{Outcome: OutcomeDecodeFailure, Message: err.Error(), CurrentMeal: s.scanner.CurrentMeal(s.now())}, err
	}
	return s.scanner.scan(ctx, raw, s.now(), s.hold)
}

// hold takes the read lock for a ledger write if the session is still open.
func (s *Session) hold() (func(), error) {
	s.mu.RLock()
	if s.closed || s.ctx.Err() != nil {
		s.mu.RUnlock()
		return nil, ErrSessionClosed
	}
	return s.mu.RUnlock, nil
}

// Stop closes the session, cancelling in-flight decodes.
func (s *Session) Stop() {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Stop was called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Sessions tracks open scanning sessions.
type Sessions struct {
	scanner *Scanner
	now     func() time.Time

	mu   sync.Mutex
	open map[string]*Session
}

// NewSessions creates a registry. A nil clock means time.Now.
func NewSessions(scanner *Scanner, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{scanner: scanner, now: now, open: make(map[string]*Session)}
}

// Start opens a session for operator.
func (r *Sessions) Start(operator string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        uuid.NewString(),
		Operator:  operator,
		StartedAt: r.now(),
		scanner:   r.scanner,
		now:       r.now,
		ctx:       ctx,
		cancel:    cancel,
	}
	r.mu.Lock()
	r.open[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns an open session.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.open[id]
	return s, ok
}

// Stop closes and forgets a session. It reports whether the id was open.
func (r *Sessions) Stop(id string) bool {
	r.mu.Lock()
	s, ok := r.open[id]
	delete(r.open, id)
	r.mu.Unlock()
	if ok {
		s.Stop()
	}
	return ok
}

// List returns open sessions ordered by start time.
func (r *Sessions) List() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.open))
	for _, s := range r.open {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// StopAll closes every open session.
func (r *Sessions) StopAll() {
	r.mu.Lock()
	open := r.open
	r.open = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range open {
		s.Stop()
	}
}
