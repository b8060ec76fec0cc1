package mailer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is one outgoing email as handed to the provider.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	ReplyTo string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

var ErrNoRecipient = errors.New("message has no recipient")

// LogSender logs messages instead of sending them. It is used when no
// provider key is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	id := uuid.NewString()
	s.Logger.Info("email not sent, no provider configured",
		zap.String("provider_id", id),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return id, nil
}
