package modules

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/tgdesk/tgdesk/pkg/commands"
)

// evCtx records handler activity across a dispatch round.
type evCtx struct {
	hits []string
}

func (c *evCtx) MessageText() (string, bool) { return "", false }

func hitHandler(label string) EventHandler[*evCtx] {
	return func(ctx context.Context, c *evCtx) error {
		c.hits = append(c.hits, label)
		return nil
	}
}

func simpleModule(name string, handlers ...HandlerDefinition[*evCtx]) Module[*evCtx] {
	return Module[*evCtx]{
		Name:     name,
		Enabled:  true,
		Handlers: handlers,
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	l := NewLoader[*evCtx]()
	if err := l.Register(simpleModule("tickets")); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := l.Register(simpleModule("tickets"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError for duplicate, got %v", err)
	}
	if verr.Module != "tickets" {
		t.Errorf("error names module %q, want tickets", verr.Module)
	}
}

func TestRegisterRejectsStructuralIssues(t *testing.T) {
	l := NewLoader[*evCtx]()
	bad := Module[*evCtx]{
		Name:    "",
		Enabled: true,
	}
	err := l.Register(bad)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestRegisterKeepsSlicesShared(t *testing.T) {
	l := NewLoader[*evCtx]()
	cmds := []commands.Definition[*evCtx]{
		{Name: "ping", Description: "v1", Handler: func(ctx context.Context, c *evCtx) error { return nil }},
	}
	m := Module[*evCtx]{Name: "core", Enabled: true, Commands: cmds}
	if err := l.Register(m); err != nil {
		t.Fatal(err)
	}

	// The record holds the caller's slices, not deep copies.
	cmds[0].Description = "v2"
	got, ok := l.Get("core")
	if !ok {
		t.Fatal("module not found")
	}
	if got.Commands[0].Description != "v2" {
		t.Error("commands slice was copied, want it shared with the caller")
	}
}

func TestEnableDisableLeaveOthersAlone(t *testing.T) {
	l := NewLoader[*evCtx]()
	l.Register(simpleModule("a"))
	l.Register(simpleModule("b"))

	if !l.Disable("a") {
		t.Fatal("Disable(a) reported not found")
	}
	a, _ := l.Get("a")
	b, _ := l.Get("b")
	if a.Enabled {
		t.Error("a still enabled after Disable")
	}
	if !b.Enabled {
		t.Error("b was touched by Disable(a)")
	}

	if !l.Enable("a") {
		t.Fatal("Enable(a) reported not found")
	}
	if !a.Enabled {
		t.Error("Enable not visible through the live record")
	}

	if l.Disable("missing") || l.Enable("missing") {
		t.Error("enable/disable of an unknown module reported found")
	}
}

func TestEnabledReturnsExactSubset(t *testing.T) {
	l := NewLoader[*evCtx]()
	l.Register(simpleModule("a"))
	l.Register(Module[*evCtx]{Name: "b", Enabled: false})
	l.Register(simpleModule("c"))

	var names []string
	for _, m := range l.Enabled() {
		names = append(names, m.Name)
	}
	if !reflect.DeepEqual(names, []string{"a", "c"}) {
		t.Errorf("Enabled() = %v, want [a c]", names)
	}
}

func TestInfoAllCounts(t *testing.T) {
	l := NewLoader[*evCtx]()
	l.Register(Module[*evCtx]{
		Name:    "tickets",
		Enabled: true,
		Commands: []commands.Definition[*evCtx]{
			{Name: "ticket", Description: "open", Handler: func(ctx context.Context, c *evCtx) error { return nil }},
			{Name: "close", Description: "close", Handler: func(ctx context.Context, c *evCtx) error { return nil }},
		},
		Handlers: []HandlerDefinition[*evCtx]{
			{Name: "collect", Event: "message", Handler: hitHandler("collect")},
		},
	})
	l.Register(Module[*evCtx]{Name: "idle", Enabled: false})

	infos := l.InfoAll()
	if len(infos) != 2 {
		t.Fatalf("InfoAll returned %d entries, want 2 (disabled included)", len(infos))
	}
	want := Info{Name: "tickets", Enabled: true, CommandCount: 2, HandlerCount: 1}
	if infos[0] != want {
		t.Errorf("infos[0] = %+v, want %+v", infos[0], want)
	}
	if infos[1].Enabled {
		t.Error("disabled module reported as enabled")
	}
}

func TestUnregister(t *testing.T) {
	l := NewLoader[*evCtx]()
	l.Register(simpleModule("a"))
	if !l.Unregister("a") {
		t.Error("Unregister(a) reported not found")
	}
	if _, ok := l.Get("a"); ok {
		t.Error("module still present after Unregister")
	}
	if l.Unregister("a") {
		t.Error("second Unregister reported found")
	}
	// The name is free again.
	if err := l.Register(simpleModule("a")); err != nil {
		t.Errorf("re-register after Unregister: %v", err)
	}
}

func TestDispatchIsolatesFailingModule(t *testing.T) {
	l := NewLoader[*evCtx]()
	boom := errors.New("boom")

	l.Register(simpleModule("first", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message", Handler: hitHandler("first"),
	}))
	l.Register(simpleModule("broken", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message",
		Handler: func(ctx context.Context, c *evCtx) error { return boom },
	}))
	l.Register(simpleModule("third", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message", Handler: hitHandler("third"),
	}))

	c := &evCtx{}
	errs := l.Dispatch(context.Background(), "message", c, nil)

	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if errs[0].Module != "broken" || !errors.Is(errs[0], boom) {
		t.Errorf("error = %+v, want module broken wrapping boom", errs[0])
	}
	if !reflect.DeepEqual(c.hits, []string{"first", "third"}) {
		t.Errorf("hits = %v, want [first third]", c.hits)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	l := NewLoader[*evCtx]()
	wrapped := errors.New("wrapped panic")

	l.Register(simpleModule("panics_value", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message",
		Handler: func(ctx context.Context, c *evCtx) error { panic("raw failure") },
	}))
	l.Register(simpleModule("panics_error", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message",
		Handler: func(ctx context.Context, c *evCtx) error { panic(wrapped) },
	}))
	l.Register(simpleModule("survivor", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message", Handler: hitHandler("survivor"),
	}))

	c := &evCtx{}
	errs := l.Dispatch(context.Background(), "message", c, nil)

	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
	if errs[0].Module != "panics_value" || errs[0].Err.Error() != "raw failure" {
		t.Errorf("non-error panic not coerced: %+v", errs[0])
	}
	if errs[1].Module != "panics_error" || !errors.Is(errs[1], wrapped) {
		t.Errorf("error panic not preserved: %+v", errs[1])
	}
	if !reflect.DeepEqual(c.hits, []string{"survivor"}) {
		t.Errorf("later module did not run after panics: %v", c.hits)
	}
}

func TestDispatchMatchesEventLabelOnly(t *testing.T) {
	l := NewLoader[*evCtx]()
	l.Register(simpleModule("multi",
		HandlerDefinition[*evCtx]{Name: "on_message", Event: "message", Handler: hitHandler("message")},
		HandlerDefinition[*evCtx]{Name: "on_callback", Event: "callback_query", Handler: hitHandler("callback")},
	))

	c := &evCtx{}
	if errs := l.Dispatch(context.Background(), "message", c, nil); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !reflect.DeepEqual(c.hits, []string{"message"}) {
		t.Errorf("hits = %v, want only the message handler", c.hits)
	}
}

func TestDispatchSkipsDisabledModules(t *testing.T) {
	l := NewLoader[*evCtx]()
	l.Register(simpleModule("on", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message", Handler: hitHandler("on"),
	}))
	l.Register(simpleModule("off", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message",
		Handler: func(ctx context.Context, c *evCtx) error { return errors.New("must never run") },
	}))
	l.Disable("off")

	c := &evCtx{}
	errs := l.Dispatch(context.Background(), "message", c, nil)
	if len(errs) != 0 {
		t.Errorf("disabled module produced errors: %v", errs)
	}
	if !reflect.DeepEqual(c.hits, []string{"on"}) {
		t.Errorf("hits = %v, want [on]", c.hits)
	}
}

func TestDispatchOrderIsDeterministic(t *testing.T) {
	l := NewLoader[*evCtx]()
	l.Register(simpleModule("m1",
		HandlerDefinition[*evCtx]{Name: "h1", Event: "message", Handler: hitHandler("m1.h1")},
		HandlerDefinition[*evCtx]{Name: "h2", Event: "message", Handler: hitHandler("m1.h2")},
	))
	l.Register(simpleModule("m2",
		HandlerDefinition[*evCtx]{Name: "h1", Event: "message", Handler: hitHandler("m2.h1")},
	))

	c := &evCtx{}
	l.Dispatch(context.Background(), "message", c, nil)
	want := []string{"m1.h1", "m1.h2", "m2.h1"}
	if !reflect.DeepEqual(c.hits, want) {
		t.Errorf("dispatch order = %v, want %v", c.hits, want)
	}
}

func TestDispatchOnErrorCallback(t *testing.T) {
	l := NewLoader[*evCtx]()
	l.Register(simpleModule("a", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message",
		Handler: func(ctx context.Context, c *evCtx) error { return errors.New("a failed") },
	}))
	l.Register(simpleModule("b", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message",
		Handler: func(ctx context.Context, c *evCtx) error { return errors.New("b failed") },
	}))

	var seen []string
	errs := l.Dispatch(context.Background(), "message", &evCtx{}, func(e ExecutionError) {
		seen = append(seen, e.Module)
	})
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2", len(errs))
	}
	if !reflect.DeepEqual(seen, []string{"a", "b"}) {
		t.Errorf("onError saw %v, want [a b] in production order", seen)
	}
}

func TestDispatchChecksEnabledAtArrival(t *testing.T) {
	l := NewLoader[*evCtx]()
	l.Register(simpleModule("gate", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message",
		Handler: func(ctx context.Context, c *evCtx) error {
			c.hits = append(c.hits, "gate")
			l.Disable("late")
			return nil
		},
	}))
	l.Register(simpleModule("late", HandlerDefinition[*evCtx]{
		Name: "h", Event: "message", Handler: hitHandler("late"),
	}))

	c := &evCtx{}
	l.Dispatch(context.Background(), "message", c, nil)
	if !reflect.DeepEqual(c.hits, []string{"gate"}) {
		t.Errorf("hits = %v, want [gate]: a module disabled mid-round must not run", c.hits)
	}
}

func TestExecutionErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	e := ExecutionError{Module: "m", Err: inner}
	if !errors.Is(e, inner) {
		t.Error("ExecutionError should unwrap to the original error")
	}
	if e.Error() != `module "m": inner` {
		t.Errorf("Error() = %q", e.Error())
	}
}
