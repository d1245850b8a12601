package push

import (
	"context"
	"log/slog"
)

// Sender delivers one push notification to a device token.
type Sender interface {
	Send(ctx context.Context, token, title, body string) error
}

// Message is the payload handed to the push gateway.
type Message struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// LogSender only logs notifications. Used when no gateway is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, token, title, body string) error {
	s.logger.Info("push notification", "token", redact(token), "title", title, "body", body)
	return nil
}

// redact keeps the last four characters of a token for log correlation.
func redact(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
