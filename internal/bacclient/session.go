package bacclient

// Discovery session: one Who-Is broadcast plus a bounded collect loop

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tturner/bacscan/internal/logging"
)

// State is the lifecycle of a discovery session.
type State int

const (
	StateRunning State = iota
	StateTimedOut
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTimedOut:
		return "timed-out"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state-%d", int(s))
	}
}

// Query holds the immutable parameters of one discovery session.
type Query struct {
	DeviceIDMin uint32
	DeviceIDMax uint32
	// IdleTimeout bounds each receive call; an expired wait is a
	// normal loop tick, not an error.
	IdleTimeout time.Duration
	// SessionTimeout is the total collect budget. Only whole seconds
	// are counted.
	SessionTimeout time.Duration
}

// Validate checks the query bounds.
func (q Query) Validate() error {
	if q.DeviceIDMin > q.DeviceIDMax {
		return fmt.Errorf("instance range low %d exceeds high %d", q.DeviceIDMin, q.DeviceIDMax)
	}
	if q.DeviceIDMax > MaxInstance {
		return fmt.Errorf("instance range high %d exceeds maximum %d", q.DeviceIDMax, MaxInstance)
	}
	if q.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if q.SessionTimeout < 0 {
		return fmt.Errorf("session timeout must not be negative")
	}
	return nil
}

// Datalink is the transport a session drives. Receive fills buf with
// one inbound NPDU (BVLL already stripped) and returns n == 0 on idle
// timeout.
type Datalink interface {
	SendWhoIs(low, high uint32) error
	Receive(buf []byte, timeout time.Duration) (n int, src Address, err error)
}

// Progress is a point-in-time view of a running session, delivered to
// the observer from the polling goroutine.
type Progress struct {
	ElapsedSeconds int64
	Devices        []DeviceRecord
}

// Stats counts session traffic for the verbose summary.
type Stats struct {
	DatagramsReceived int
	DecodeErrors      int
	IAmReceived       int
	Duplicates        int
	Unrecognized      int
}

// Session runs one discovery exchange to a terminal state.
type Session struct {
	query      Query
	link       Datalink
	cache      *AddressCache
	dispatcher *Dispatcher
	log        *logging.Logger

	state    State
	stats    Stats
	observer func(Progress)

	// now is stubbed in tests; elapsed accounting works on Unix
	// seconds.
	now func() int64
}

// NewSession wires a session over the given datalink. The cache and
// dispatcher are owned by the session for its lifetime and must not be
// shared with another running session.
func NewSession(query Query, link Datalink, cache *AddressCache, dispatcher *Dispatcher, log *logging.Logger) *Session {
	return &Session{
		query:      query,
		link:       link,
		cache:      cache,
		dispatcher: dispatcher,
		log:        log,
		state:      StateRunning,
		now:        func() int64 { return time.Now().Unix() },
	}
}

// SetObserver registers a progress callback. It is invoked from the
// polling goroutine after each loop iteration with a snapshot of the
// cache, so receivers need no extra locking.
func (s *Session) SetObserver(fn func(Progress)) {
	s.observer = fn
}

// State returns the session state.
func (s *Session) State() State {
	return s.state
}

// Stats returns the traffic counters collected so far.
func (s *Session) Stats() Stats {
	st := s.stats
	st.IAmReceived = s.dispatcher.iAmCount
	st.Duplicates = s.dispatcher.duplicateCount
	st.Unrecognized = s.dispatcher.unrecognizedCount
	return st
}

// Run broadcasts the Who-Is once and collects replies until the budget
// is exhausted or a fatal protocol error is observed. The discovered
// device IDs are returned in discovery order for both terminal states:
// an abort ends collection, not reporting. Cancelling ctx closes the
// collect window early, like a timeout. Errors are returned only for
// transport failures; protocol-level aborts are not errors.
func (s *Session) Run(ctx context.Context) ([]uint32, State, error) {
	if err := s.query.Validate(); err != nil {
		return nil, s.state, err
	}

	// Fire-and-forget: the broadcast is never retried. If nothing
	// answers, the result is simply empty.
	if err := s.link.SendWhoIs(s.query.DeviceIDMin, s.query.DeviceIDMax); err != nil {
		return nil, s.state, fmt.Errorf("send Who-Is: %w", err)
	}

	buf := make([]byte, MaxMPDU)
	budget := int64(s.query.SessionTimeout / time.Second)
	var total int64
	last := s.now()

	for {
		if ctx.Err() != nil {
			s.log.Verbose("session cancelled after %d second(s)", total)
			s.state = StateTimedOut
			return s.results(), s.state, nil
		}

		// Timestamp before the receive: elapsed time accumulates in
		// whole-second deltas between iterations, so the first partial
		// second is never counted. Field behavior was tuned against
		// this accounting; do not replace it with a single deadline.
		current := s.now()

		n, src, err := s.link.Receive(buf, s.query.IdleTimeout)
		if err != nil {
			return s.results(), s.state, fmt.Errorf("receive: %w", err)
		}
		if n > 0 {
			s.stats.DatagramsReceived++
			ev, derr := DecodeDatagram(src, buf[:n])
			switch {
			case derr != nil:
				s.stats.DecodeErrors++
				s.log.Debug("discarding datagram from %s: %v", src, derr)
			case ev != nil:
				DispatchEvent(ev, s.dispatcher)
			}
		}

		// Checked every iteration so a flag raised during dispatch is
		// observed immediately, datagram or not.
		if s.dispatcher.FatalError() {
			s.state = StateAborted
			return s.results(), s.state, nil
		}

		total += current - last
		if total > budget {
			s.state = StateTimedOut
			return s.results(), s.state, nil
		}
		last = current

		if s.observer != nil {
			s.observer(Progress{ElapsedSeconds: total, Devices: s.cache.Records()})
		}
	}
}

func (s *Session) results() []uint32 {
	return slices.Collect(s.cache.DeviceIDs())
}
