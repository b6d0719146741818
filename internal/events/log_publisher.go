package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// LogPublisher writes every event as a structured log entry. It is the
// default sink when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher wraps the given logger.
func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.log.Info("event", zap.String("topic", topic), zap.ByteString("payload", data))
	return nil
}

var _ Publisher = (*LogPublisher)(nil)
