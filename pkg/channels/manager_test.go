package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tgdesk/tgdesk/pkg/bus"
)

type fakeTransport struct {
	name     string
	startErr error
	sendErr  error

	mu      sync.Mutex
	started int
	stopped int
	sent    chan bus.OutboundMessage
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{name: name, sent: make(chan bus.OutboundMessage, 8)}
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeTransport) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent <- msg
	return nil
}

func (f *fakeTransport) counts() (started, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped
}

func TestRegisterAndNames(t *testing.T) {
	m := NewManager(bus.NewMessageBus())
	m.Register(newFakeTransport("alpha"))
	m.Register(newFakeTransport("beta"))

	names := m.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("Names() = %v, want [alpha beta]", names)
	}
	if _, ok := m.Get("alpha"); !ok {
		t.Fatal("Get(alpha) not found")
	}
	if _, ok := m.Get("gamma"); ok {
		t.Fatal("Get(gamma) should not be found")
	}
}

func TestStartAllAndStopAll(t *testing.T) {
	mb := bus.NewMessageBus()
	m := NewManager(mb)
	a := newFakeTransport("alpha")
	b := newFakeTransport("beta")
	m.Register(a)
	m.Register(b)

	ctx := context.Background()
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if st := m.Status(); st["alpha"] != "running" || st["beta"] != "running" {
		t.Fatalf("Status after start = %v", st)
	}

	m.StopAll(ctx)
	if st := m.Status(); st["alpha"] != "stopped" || st["beta"] != "stopped" {
		t.Fatalf("Status after stop = %v", st)
	}

	aStarted, aStopped := a.counts()
	if aStarted != 1 || aStopped != 1 {
		t.Fatalf("alpha started=%d stopped=%d, want 1/1", aStarted, aStopped)
	}
}

func TestStartAllAbortsOnFailure(t *testing.T) {
	mb := bus.NewMessageBus()
	m := NewManager(mb)
	bad := newFakeTransport("bad")
	bad.startErr = errors.New("no token")
	after := newFakeTransport("after")
	m.Register(bad)
	m.Register(after)

	err := m.StartAll(context.Background())
	if err == nil {
		t.Fatal("StartAll should fail when a transport fails to start")
	}
	if started, _ := after.counts(); started != 0 {
		t.Fatalf("transport after the failure was started %d times", started)
	}
}

func TestOutboundPumpRoutesByChannel(t *testing.T) {
	mb := bus.NewMessageBus()
	m := NewManager(mb)
	a := newFakeTransport("alpha")
	b := newFakeTransport("beta")
	m.Register(a)
	m.Register(b)

	ctx := context.Background()
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll(ctx)

	mb.PublishOutbound(bus.OutboundMessage{Channel: "beta", ChatID: "42", Text: "hi"})

	select {
	case msg := <-b.sent:
		if msg.ChatID != "42" || msg.Text != "hi" {
			t.Fatalf("beta received %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("beta transport never received the outbound message")
	}

	select {
	case msg := <-a.sent:
		t.Fatalf("alpha should not have received %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOutboundForUnknownChannelIsDropped(t *testing.T) {
	mb := bus.NewMessageBus()
	m := NewManager(mb)
	a := newFakeTransport("alpha")
	m.Register(a)

	ctx := context.Background()
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll(ctx)

	mb.PublishOutbound(bus.OutboundMessage{Channel: "ghost", ChatID: "1", Text: "lost"})
	mb.PublishOutbound(bus.OutboundMessage{Channel: "alpha", ChatID: "2", Text: "kept"})

	select {
	case msg := <-a.sent:
		if msg.Text != "kept" {
			t.Fatalf("alpha received %+v, want the kept message", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pump stalled after a message for an unknown channel")
	}
}

func TestStopAllWithoutStart(t *testing.T) {
	m := NewManager(bus.NewMessageBus())
	m.Register(newFakeTransport("alpha"))
	// Must not panic or block.
	m.StopAll(context.Background())
}
