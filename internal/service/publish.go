package service

import (
	"context"
	"log/slog"

	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/timer"
)

// eventEmitter publishes domain events on a best effort basis. A failed publish
// is logged and never undoes the state change that caused it.
type eventEmitter struct {
	publisher event.Publisher
	clock     timer.Timer
	logger    *slog.Logger
}

func (e eventEmitter) emit(ctx context.Context, t event.Type, payload any) {
	if e.publisher == nil {
		return
	}
	evt, err := event.New(t, e.clock.Now(), payload)
	if err != nil {
		e.logger.ErrorContext(ctx, "build domain event", "type", t, "error", err)
		return
	}
	if err := e.publisher.Publish(ctx, evt); err != nil {
		e.logger.WarnContext(ctx, "publish domain event", "type", t, "error", err)
	}
}
