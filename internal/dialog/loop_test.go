package dialog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/field-worklog-bot/internal/dialog"
	"github.com/field-worklog-bot/internal/models"
	"github.com/rs/zerolog"
)

func TestLoop_HandlesEventsInOrder(t *testing.T) {
	f := newFixture(t)
	loop := dialog.NewLoop(f.machine, 8, zerolog.Nop())

	events := []string{"menu:new", "date:2024-06-03", "hours:8"}
	for _, tok := range events {
		if err := loop.Submit(&models.ChatEvent{ChatID: testChat, UserID: workerID, Choice: tok}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for f.sender.Calls() < len(events) {
		select {
		case <-deadline:
			t.Fatal("Expected all events to be rendered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	f.expectState(dialog.StatePickWorkKind)
}

func TestLoop_SubmitReportsFullBuffer(t *testing.T) {
	f := newFixture(t)
	loop := dialog.NewLoop(f.machine, 1, zerolog.Nop())

	ev := &models.ChatEvent{ChatID: testChat, UserID: workerID, Choice: "start"}
	if err := loop.Submit(ev); err != nil {
		t.Fatalf("Expected first event to be queued, got %v", err)
	}
	if err := loop.Submit(ev); !errors.Is(err, dialog.ErrLoopBusy) {
		t.Errorf("Expected ErrLoopBusy, got %v", err)
	}
}
