package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/config"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		jobs    []config.JobConfig
		wantErr bool
	}{
		{"no jobs", nil, false},
		{"valid", []config.JobConfig{{Name: "sweep", Cron: "0 4 * * *"}}, false},
		{"every minute", []config.JobConfig{{Name: "beat", Cron: "* * * * *"}}, false},
		{"missing name", []config.JobConfig{{Cron: "* * * * *"}}, true},
		{"bad expression", []config.JobConfig{{Name: "x", Cron: "not cron"}}, true},
		{"too few fields", []config.JobConfig{{Name: "x", Cron: "* *"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.jobs, bus.NewMessageBus(), func(context.Context, string) {})
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunDueFiresMatchingJobs(t *testing.T) {
	var fired []string
	jobs := []config.JobConfig{
		{Name: "daily_sweep", Cron: "0 4 * * *"},
		{Name: "heartbeat", Cron: "* * * * *"},
	}
	s := New(jobs, bus.NewMessageBus(), func(_ context.Context, job string) {
		fired = append(fired, job)
	})

	four := time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)
	s.runDue(context.Background(), four)
	if len(fired) != 2 || fired[0] != "daily_sweep" || fired[1] != "heartbeat" {
		t.Fatalf("at 04:00 fired = %v, want [daily_sweep heartbeat]", fired)
	}

	fired = nil
	halfPast := time.Date(2026, 8, 25, 5, 30, 0, 0, time.UTC)
	s.runDue(context.Background(), halfPast)
	if len(fired) != 1 || fired[0] != "heartbeat" {
		t.Fatalf("at 05:30 fired = %v, want [heartbeat]", fired)
	}
}

func TestRunDuePublishesJobFired(t *testing.T) {
	mb := bus.NewMessageBus()
	sysCh := mb.SubscribeSystem("test")

	jobs := []config.JobConfig{{Name: "heartbeat", Cron: "* * * * *"}}
	s := New(jobs, mb, func(context.Context, string) {})
	s.runDue(context.Background(), time.Date(2026, 8, 25, 5, 30, 0, 0, time.UTC))

	select {
	case raw := <-sysCh:
		evt, ok := raw.(bus.SystemEvent)
		if !ok {
			t.Fatalf("system event type %T", raw)
		}
		if evt.Type != "job.fired" || evt.Source != "scheduler" {
			t.Fatalf("event = %+v", evt)
		}
	default:
		t.Fatal("no system event published for the due job")
	}
}

func TestStartRejectsBadJobs(t *testing.T) {
	s := New([]config.JobConfig{{Name: "x", Cron: "bogus"}}, bus.NewMessageBus(), func(context.Context, string) {})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start accepted an invalid cron expression")
	}
}

func TestStartAndStopWithJobs(t *testing.T) {
	s := New([]config.JobConfig{{Name: "beat", Cron: "* * * * *"}}, bus.NewMessageBus(), func(context.Context, string) {})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	// A second Stop must be a no-op.
	s.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	s := New(nil, bus.NewMessageBus(), func(context.Context, string) {})
	s.Stop()
}
