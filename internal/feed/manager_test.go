package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSession struct {
	msgs      chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		msgs:   make(chan Message, 8),
		closed: make(chan struct{}),
	}
}

func (s *fakeSession) Receive() (Message, error) {
	select {
	case msg := <-s.msgs:
		return msg, nil
	case <-s.closed:
		return Message{}, errors.New("session closed")
	}
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) fail() {
	s.Close()
}

type fakeTransport struct {
	mu        sync.Mutex
	failDials int
	sessions  []*fakeSession
	dials     int
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Dial(ctx context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.dials <= t.failDials {
		return nil, errors.New("dial refused")
	}
	s := newFakeSession()
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) session(i int) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.sessions) {
		return nil
	}
	return t.sessions[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startManager(t *testing.T, tr Transport, delay time.Duration, handler func(Message)) *Manager {
	t.Helper()
	if handler == nil {
		handler = func(Message) {}
	}
	m := NewManager(ManagerConfig{
		Transport:      tr,
		ReconnectDelay: delay,
		Handler:        handler,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	t.Cleanup(m.Stop)
	return m
}

func TestManagerDeliversMessages(t *testing.T) {
	tr := &fakeTransport{}

	var mu sync.Mutex
	var got []Message
	m := startManager(t, tr, 20*time.Millisecond, func(msg Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})

	waitFor(t, "channel open", func() bool { return m.Status() == Open })

	tr.session(0).msgs <- Message{Type: MsgText, Data: "你好"}
	tr.session(0).msgs <- Message{Type: MsgSegment, Data: "你好世界"}

	waitFor(t, "messages delivered", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if got[0].Type != MsgText || got[1].Data != "你好世界" {
		t.Fatalf("got %+v", got)
	}
}

func TestManagerReconnectsAfterSessionFailure(t *testing.T) {
	tr := &fakeTransport{}
	m := startManager(t, tr, 20*time.Millisecond, nil)

	waitFor(t, "first session", func() bool { return m.Status() == Open })
	if tr.dialCount() != 1 {
		t.Fatalf("dials = %d", tr.dialCount())
	}

	tr.session(0).fail()

	waitFor(t, "drop noticed", func() bool { return tr.dialCount() >= 2 || m.Status() == Disconnected })
	waitFor(t, "second session", func() bool { return tr.dialCount() == 2 && m.Status() == Open })
}

func TestManagerRetriesFailedDial(t *testing.T) {
	tr := &fakeTransport{failDials: 2}
	m := startManager(t, tr, 15*time.Millisecond, nil)

	waitFor(t, "eventual connection", func() bool { return m.Status() == Open })
	if tr.dialCount() != 3 {
		t.Fatalf("dials = %d, want 3", tr.dialCount())
	}
}

func TestManualReconnectTearsDownOldSession(t *testing.T) {
	tr := &fakeTransport{}
	m := startManager(t, tr, time.Minute, nil)

	waitFor(t, "first session", func() bool { return m.Status() == Open })

	m.Reconnect(context.Background())

	waitFor(t, "second session", func() bool { return tr.dialCount() == 2 && m.Status() == Open })

	select {
	case <-tr.session(0).closed:
	default:
		t.Fatal("old session left open after manual reconnect")
	}
}

func TestRetryTimerAbortsWhenAlreadyOpen(t *testing.T) {
	tr := &fakeTransport{}
	m := startManager(t, tr, 60*time.Millisecond, nil)

	waitFor(t, "first session", func() bool { return m.Status() == Open })

	// Kill the session so a retry is scheduled, then beat the timer with a
	// manual reconnect.
	tr.session(0).fail()
	waitFor(t, "disconnect noticed", func() bool { return m.Status() == Disconnected })
	m.Reconnect(context.Background())
	waitFor(t, "manual reconnect", func() bool { return m.Status() == Open })

	dials := tr.dialCount()
	time.Sleep(150 * time.Millisecond)

	// The pending timer was cancelled by the manual connect (or aborted at
	// fire time); either way no further dial may happen.
	if tr.dialCount() != dials {
		t.Fatalf("retry timer dialed anyway: %d -> %d", dials, tr.dialCount())
	}
	if m.Status() != Open {
		t.Fatalf("status = %v", m.Status())
	}
}

func TestSecondFailureInRetryWindowArmsOneTimer(t *testing.T) {
	tr := &fakeTransport{}
	m := startManager(t, tr, 80*time.Millisecond, nil)

	waitFor(t, "first session", func() bool { return m.Status() == Open })

	tr.session(0).fail()
	waitFor(t, "retry scheduled", func() bool { return m.Status() == Disconnected })

	// A second failure signal lands while the retry timer is already armed.
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	m.onSessionDown(context.Background(), gen, errors.New("duplicate failure"))

	waitFor(t, "reconnect", func() bool { return m.Status() == Open })
	time.Sleep(150 * time.Millisecond)

	// One dial at startup plus exactly one retry.
	if got := tr.dialCount(); got != 2 {
		t.Fatalf("dials = %d, want 2", got)
	}
}

func TestStopClosesSession(t *testing.T) {
	tr := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(ManagerConfig{
		Transport:      tr,
		ReconnectDelay: 10 * time.Millisecond,
		Handler:        func(Message) {},
	})
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	waitFor(t, "session open", func() bool { return m.Status() == Open })
	m.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	select {
	case <-tr.session(0).closed:
	default:
		t.Fatal("session not closed on stop")
	}
	if m.Status() != Disconnected {
		t.Fatalf("status = %v", m.Status())
	}
}
