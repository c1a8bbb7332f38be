package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrGateTimeout is returned when the configured wait limit expires
	// before the model becomes free.
	ErrGateTimeout = errors.New("session: timed out waiting for the model")
	// ErrGateReentrant is returned when a session that already holds or
	// awaits the gate acquires again.
	ErrGateReentrant = errors.New("session: session already holds or awaits the gate")
	// ErrPermitReleased is returned when a permit is released twice.
	ErrPermitReleased = errors.New("session: permit already released")
)

// Gate grants one session at a time access to the recognition model.
// Waiters are served in arrival order.
type Gate struct {
	waitLimit time.Duration // 0 = wait forever

	mu     sync.Mutex
	holder string
	queue  []*gateWaiter
}

type gateWaiter struct {
	id      string
	ready   chan struct{}
	granted bool
}

// Permit proves gate ownership for one session. It must be released
// exactly once.
type Permit struct {
	gate     *Gate
	id       string
	released bool // guarded by gate.mu
}

// NewGate creates a gate. waitLimit bounds how long Acquire may queue;
// zero waits indefinitely.
func NewGate(waitLimit time.Duration) *Gate {
	return &Gate{waitLimit: waitLimit}
}

// Acquire blocks until sessionID holds the gate, the wait limit expires,
// or ctx is cancelled. A session holds at most one permit at a time.
func (g *Gate) Acquire(ctx context.Context, sessionID string) (*Permit, error) {
	g.mu.Lock()
	if g.holder == sessionID {
		g.mu.Unlock()
		return nil, ErrGateReentrant
	}
	for _, w := range g.queue {
		if w.id == sessionID {
			g.mu.Unlock()
			return nil, ErrGateReentrant
		}
	}
	if g.holder == "" && len(g.queue) == 0 {
		g.holder = sessionID
		g.mu.Unlock()
		return &Permit{gate: g, id: sessionID}, nil
	}

	w := &gateWaiter{id: sessionID, ready: make(chan struct{})}
	g.queue = append(g.queue, w)
	g.mu.Unlock()

	var limit <-chan time.Time
	if g.waitLimit > 0 {
		timer := time.NewTimer(g.waitLimit)
		defer timer.Stop()
		limit = timer.C
	}

	select {
	case <-w.ready:
		return &Permit{gate: g, id: sessionID}, nil
	case <-ctx.Done():
		return nil, g.bailOut(w, ctx.Err())
	case <-limit:
		return nil, g.bailOut(w, ErrGateTimeout)
	}
}

// bailOut abandons a queued waiter. When the grant raced ahead of the
// cancellation the permit is taken and released so the queue keeps
// moving.
func (g *Gate) bailOut(w *gateWaiter, cause error) error {
	g.mu.Lock()
	if !w.granted {
		for i, q := range g.queue {
			if q == w {
				g.queue = append(g.queue[:i], g.queue[i+1:]...)
				break
			}
		}
		g.mu.Unlock()
		return cause
	}
	g.mu.Unlock()

	<-w.ready
	p := &Permit{gate: g, id: w.id}
	p.Release()
	return cause
}

// SessionID returns the session this permit belongs to.
func (p *Permit) SessionID() string {
	return p.id
}

// Release frees the gate and wakes the next waiter. Releasing twice
// returns ErrPermitReleased.
func (p *Permit) Release() error {
	g := p.gate

	g.mu.Lock()
	defer g.mu.Unlock()

	if p.released {
		return ErrPermitReleased
	}
	p.released = true

	g.holder = ""
	if len(g.queue) > 0 {
		next := g.queue[0]
		g.queue = g.queue[1:]
		next.granted = true
		g.holder = next.id
		close(next.ready)
	}
	return nil
}

// Holder returns the session currently holding the gate, "" when free.
func (g *Gate) Holder() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder
}

// QueueLen returns the number of sessions waiting for the gate.
func (g *Gate) QueueLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}
