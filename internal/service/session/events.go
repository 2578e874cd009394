package session

import (
	"context"

	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/models"
)

// EventSink receives events after the state they describe is committed
type EventSink interface {
	Emit(ctx context.Context, events ...models.Event)
}

type LogSink struct {
	logger logger.Logger
}

func NewLogSink(l logger.Logger) *LogSink {
	return &LogSink{logger: l.WithGroup("event")}
}

func (s *LogSink) Emit(_ context.Context, events ...models.Event) {
	for _, e := range events {
		s.logger.Info("domain event", "name", e.EventName(), "payload", e)
	}
}
