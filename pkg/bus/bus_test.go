package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsumeInbound(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishInbound(InboundMessage{Channel: "telegram", Event: "message", Text: "/start", HasText: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("ConsumeInbound returned false")
	}
	if msg.Channel != "telegram" || msg.Text != "/start" {
		t.Errorf("got %+v", msg)
	}
}

func TestConsumeInboundHonorsContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Error("ConsumeInbound returned true on a cancelled context")
	}
}

func TestInboundTapReceivesCopies(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	tap := mb.SubscribeInboundTap("ops")
	mb.PublishInbound(InboundMessage{Channel: "console", Event: "message"})

	select {
	case raw := <-tap:
		msg, ok := raw.(InboundMessage)
		if !ok || msg.Channel != "console" {
			t.Errorf("tap received %#v", raw)
		}
	case <-time.After(time.Second):
		t.Fatal("tap received nothing")
	}

	// The primary consumer still sees the message.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); !ok {
		t.Error("primary consumer starved by tap")
	}
}

func TestSystemEventsFanOut(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	a := mb.SubscribeSystem("a")
	b := mb.SubscribeSystem("b")
	mb.PublishSystem(SystemEvent{Type: "module.enabled", Source: "loader"})

	for name, ch := range map[string]<-chan interface{}{"a": a, "b": b} {
		select {
		case raw := <-ch:
			ev, ok := raw.(SystemEvent)
			if !ok || ev.Type != "module.enabled" {
				t.Errorf("subscriber %s received %#v", name, raw)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s received nothing", name)
		}
	}
}

func TestPublishInboundDropsOldestWhenFull(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	// Fill the queue past capacity; the earliest messages must give way.
	for i := 0; i < 150; i++ {
		mb.PublishInbound(InboundMessage{MessageID: string(rune('A' + i%26))})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	count := 0
	for {
		shortCtx, shortCancel := context.WithTimeout(ctx, 50*time.Millisecond)
		_, ok := mb.ConsumeInbound(shortCtx)
		shortCancel()
		if !ok {
			break
		}
		count++
	}
	if count == 0 || count > 100 {
		t.Errorf("drained %d messages, want between 1 and the queue capacity", count)
	}
}

func TestPublishAfterCloseIsNoOp(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close() // idempotent

	// Must not panic on closed channels.
	mb.PublishInbound(InboundMessage{})
	mb.PublishOutbound(OutboundMessage{})
	mb.PublishSystem(SystemEvent{})
}
