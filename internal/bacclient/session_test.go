package bacclient

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

// fakeDatalink replays scripted datagrams. A nil entry is one idle
// timeout tick.
type fakeDatalink struct {
	queue   [][]byte
	src     Address
	sendErr error
	recvErr error

	whoIsLow  uint32
	whoIsHigh uint32
	whoIsSent int
}

func (f *fakeDatalink) SendWhoIs(low, high uint32) error {
	f.whoIsSent++
	f.whoIsLow = low
	f.whoIsHigh = high
	return f.sendErr
}

func (f *fakeDatalink) Receive(buf []byte, timeout time.Duration) (int, Address, error) {
	if f.recvErr != nil {
		return 0, Address{}, f.recvErr
	}
	if len(f.queue) == 0 {
		return 0, Address{}, nil
	}
	d := f.queue[0]
	f.queue = f.queue[1:]
	if d == nil {
		return 0, Address{}, nil
	}
	return copy(buf, d), f.src, nil
}

// tickingClock advances one second per reading.
type tickingClock struct{ t int64 }

func (c *tickingClock) now() int64 {
	c.t++
	return c.t
}

func iAmDatagram(id uint32) []byte {
	return append([]byte{0x01, 0x00}, EncodeIAm(id, 480, NoSegmentation, 7)...)
}

func abortDatagram(reason byte) []byte {
	return append([]byte{0x01, 0x00}, 0x70, 0x00, reason)
}

func newTestSession(t *testing.T, query Query, link Datalink) *Session {
	t.Helper()
	cache := NewAddressCache(16)
	log := silentLogger(t)
	sess := NewSession(query, link, cache, NewDispatcher(cache, log), log)
	sess.now = (&tickingClock{t: 100}).now
	return sess
}

func discoveryQuery(budget time.Duration) Query {
	return Query{
		DeviceIDMax:    MaxInstance,
		IdleTimeout:    100 * time.Millisecond,
		SessionTimeout: budget,
	}
}

func TestSessionDiscoversUntilTimeout(t *testing.T) {
	link := &fakeDatalink{
		queue: [][]byte{iAmDatagram(200), nil, iAmDatagram(100)},
		src:   cacheAddr(20),
	}
	sess := newTestSession(t, discoveryQuery(3*time.Second), link)

	ids, state, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state != StateTimedOut {
		t.Errorf("state = %s, want timed-out", state)
	}
	if !slices.Equal(ids, []uint32{200, 100}) {
		t.Errorf("ids = %v, want [200 100] in discovery order", ids)
	}
	if link.whoIsSent != 1 {
		t.Errorf("Who-Is sent %d times, want exactly 1", link.whoIsSent)
	}
	if link.whoIsLow != 0 || link.whoIsHigh != MaxInstance {
		t.Errorf("Who-Is range [%d, %d], want [0, %d]", link.whoIsLow, link.whoIsHigh, MaxInstance)
	}

	stats := sess.Stats()
	if stats.DatagramsReceived != 2 {
		t.Errorf("DatagramsReceived = %d, want 2", stats.DatagramsReceived)
	}
	if stats.IAmReceived != 2 {
		t.Errorf("IAmReceived = %d, want 2", stats.IAmReceived)
	}
}

func TestSessionAbortKeepsPartialResults(t *testing.T) {
	link := &fakeDatalink{
		queue: [][]byte{iAmDatagram(10), iAmDatagram(20), abortDatagram(4)},
		src:   cacheAddr(20),
	}
	sess := newTestSession(t, discoveryQuery(time.Minute), link)

	ids, state, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("an abort is a session outcome, not an error: %v", err)
	}
	if state != StateAborted {
		t.Errorf("state = %s, want aborted", state)
	}
	if !slices.Equal(ids, []uint32{10, 20}) {
		t.Errorf("ids = %v, want the devices seen before the abort", ids)
	}
	if sess.State() != StateAborted {
		t.Errorf("State() = %s after Run, want aborted", sess.State())
	}
}

func TestSessionZeroBudgetStillPollsOnce(t *testing.T) {
	// Whole seconds are counted between loop iterations, so the first
	// partial second is free even with a zero budget.
	link := &fakeDatalink{queue: [][]byte{iAmDatagram(5)}, src: cacheAddr(5)}
	sess := newTestSession(t, discoveryQuery(0), link)

	ids, state, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state != StateTimedOut {
		t.Errorf("state = %s, want timed-out", state)
	}
	if !slices.Equal(ids, []uint32{5}) {
		t.Errorf("ids = %v, want [5]", ids)
	}
}

func TestSessionEmptyNetwork(t *testing.T) {
	sess := newTestSession(t, discoveryQuery(2*time.Second), &fakeDatalink{})
	ids, state, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state != StateTimedOut {
		t.Errorf("state = %s, want timed-out", state)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want none", ids)
	}
}

func TestSessionCancelClosesWindowEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	link := &fakeDatalink{queue: [][]byte{iAmDatagram(1)}}
	sess := newTestSession(t, discoveryQuery(time.Hour), link)

	ids, state, err := sess.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state != StateTimedOut {
		t.Errorf("state = %s, want timed-out", state)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want none before the first poll", ids)
	}
}

func TestSessionQueryValidation(t *testing.T) {
	tests := []struct {
		name  string
		query Query
	}{
		{
			"low above high",
			Query{DeviceIDMin: 10, DeviceIDMax: 5, IdleTimeout: time.Millisecond},
		},
		{
			"high above max instance",
			Query{DeviceIDMax: MaxInstance + 1, IdleTimeout: time.Millisecond},
		},
		{
			"idle timeout not positive",
			Query{DeviceIDMax: MaxInstance},
		},
		{
			"negative session timeout",
			Query{DeviceIDMax: MaxInstance, IdleTimeout: time.Millisecond, SessionTimeout: -time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newTestSession(t, tt.query, &fakeDatalink{})
			if _, _, err := sess.Run(context.Background()); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestSessionCountsDecodeErrors(t *testing.T) {
	link := &fakeDatalink{
		queue: [][]byte{{0xFF, 0xFF, 0xFF}, iAmDatagram(77)},
		src:   cacheAddr(7),
	}
	sess := newTestSession(t, discoveryQuery(3*time.Second), link)

	ids, _, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("a malformed datagram must not fail the session: %v", err)
	}
	if !slices.Equal(ids, []uint32{77}) {
		t.Errorf("ids = %v, want [77]", ids)
	}
	if stats := sess.Stats(); stats.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", stats.DecodeErrors)
	}
}

func TestSessionTransportErrors(t *testing.T) {
	t.Run("send", func(t *testing.T) {
		link := &fakeDatalink{sendErr: errors.New("network is down")}
		sess := newTestSession(t, discoveryQuery(time.Second), link)
		if _, _, err := sess.Run(context.Background()); err == nil {
			t.Error("expected a send error")
		}
	})

	t.Run("receive", func(t *testing.T) {
		link := &fakeDatalink{recvErr: errors.New("use of closed network connection")}
		sess := newTestSession(t, discoveryQuery(time.Second), link)
		if _, _, err := sess.Run(context.Background()); err == nil {
			t.Error("expected a receive error")
		}
	})
}

func TestSessionObserverSeesSnapshots(t *testing.T) {
	link := &fakeDatalink{queue: [][]byte{iAmDatagram(8)}, src: cacheAddr(8)}
	sess := newTestSession(t, discoveryQuery(2*time.Second), link)

	var progress []Progress
	sess.SetObserver(func(p Progress) { progress = append(progress, p) })

	if _, _, err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(progress) == 0 {
		t.Fatal("observer never called")
	}
	last := progress[len(progress)-1]
	if len(last.Devices) != 1 || last.Devices[0].DeviceID != 8 {
		t.Errorf("final snapshot = %+v, want device 8", last.Devices)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i].ElapsedSeconds < progress[i-1].ElapsedSeconds {
			t.Errorf("elapsed went backwards: %d then %d",
				progress[i-1].ElapsedSeconds, progress[i].ElapsedSeconds)
		}
	}
}
