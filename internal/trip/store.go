package trip

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/charger"
	"github.com/evroute/evroute/internal/optimizer"
	"github.com/evroute/evroute/internal/routing"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = 2 * time.Hour

// Session is the live state of one planning session. All fields are guarded
// by mu; callers outside this package work with Snapshots.
type Session struct {
	mu sync.Mutex

	id                 string
	originAddress      string
	destinationAddress string
	origin             *routing.Coordinate
	destination        *routing.Coordinate
	route              *Route
	candidates         []charger.Candidate
	vehicle            *VehicleProfile
	optimized          *optimizer.Result
	ledger             Ledger
	selected           *charger.Candidate
	finalized          *Finalization
	createdAt          time.Time
	updatedAt          time.Time
	lastAccess         time.Time

	// version changes on every committed mutation.
	version uint64

	// Latest issued run per stage and the cancel func of the run in flight.
	planSeq    uint64
	planCancel context.CancelFunc
	optSeq     uint64
	optCancel  context.CancelFunc
}

func newSession(id string, now time.Time) *Session {
	return &Session{id: id, candidates: []charger.Candidate{}, createdAt: now, updatedAt: now, lastAccess: now}
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

func (s *Session) touchLocked(now time.Time) {
	s.version++
	s.updatedAt = now
}

// findLocked looks a candidate up among the candidates, then the stops.
func (s *Session) findLocked(id string) (charger.Candidate, bool) {
	for _, c := range s.candidates {
		if c.ID == id {
			return c, true
		}
	}
	for _, c := range s.ledger.stops {
		if c.ID == id {
			return c, true
		}
	}
	return charger.Candidate{}, false
}

// snapshotLocked copies the session. s.mu must be held.
func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:                 s.id,
		OriginAddress:      s.originAddress,
		DestinationAddress: s.destinationAddress,
		Route:              s.route,
		Candidates:         append([]charger.Candidate{}, s.candidates...),
		Stops:              s.ledger.Stops(),
		Finalized:          s.finalized,
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.updatedAt,
	}
	if s.origin != nil {
		o := *s.origin
		snap.Origin = &o
	}
	if s.destination != nil {
		d := *s.destination
		snap.Destination = &d
	}
	if s.vehicle != nil {
		v := *s.vehicle
		snap.Vehicle = &v
	}
	if s.optimized != nil {
		r := *s.optimized
		r.Stops = append([]charger.Candidate{}, s.optimized.Stops...)
		r.Hops = append([]optimizer.Hop{}, s.optimized.Hops...)
		snap.Optimized = &r
	}
	if s.selected != nil {
		c := *s.selected
		snap.Selected = &c
	}
	return snap
}

// cancelRunsLocked stops any in-flight plan or optimize run and invalidates
// their results. s.mu must be held.
func (s *Session) cancelRunsLocked() {
	s.planSeq++
	s.optSeq++
	if s.planCancel != nil {
		s.planCancel()
		s.planCancel = nil
	}
	if s.optCancel != nil {
		s.optCancel()
		s.optCancel = nil
	}
}

// Store holds live sessions.
type Store interface {
	// Create registers a new session.
	Create(ctx context.Context, s *Session) error

	// Get returns the live session or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session and cancels its runs. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error
}

// InMemoryStore keeps sessions in process memory and drops sessions idle for
// longer than the TTL. Plans do not survive a restart.
type InMemoryStore struct {
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryStore creates a store. A non-positive ttl uses DefaultSessionTTL.
func NewInMemoryStore(ttl time.Duration, logger zerolog.Logger) *InMemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &InMemoryStore{ttl: ttl, now: time.Now, logger: logger, sessions: make(map[string]*Session)}
}

// Create registers a new session.
func (m *InMemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.id] = s
	return nil
}

// Get returns the live session and refreshes its idle timer.
func (m *InMemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	now := m.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastAccess) > m.ttl {
		return nil, ErrSessionNotFound
	}
	s.lastAccess = now
	return s, nil
}

// Delete removes a session.
func (m *InMemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.mu.Lock()
		s.cancelRunsLocked()
		s.mu.Unlock()
	}
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes expired sessions and returns how many were dropped.
func (m *InMemoryStore) Sweep() int {
	now := m.now()

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		s.mu.Lock()
		if now.Sub(s.lastAccess) > m.ttl {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
		s.mu.Unlock()
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.mu.Lock()
		s.cancelRunsLocked()
		s.mu.Unlock()
	}
	if len(expired) > 0 {
		m.logger.Debug().Int("expired", len(expired)).Msg("trip sessions evicted")
	}
	return len(expired)
}

// RunJanitor sweeps every interval until ctx is done.
func (m *InMemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

var _ Store = (*InMemoryStore)(nil)
