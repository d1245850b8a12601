package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoDevices is returned when a user has no registered device token.
var ErrNoDevices = errors.New("no device tokens for user")

// TokenStore resolves registered device tokens.
type TokenStore interface {
	TokensForUser(ctx context.Context, username string) ([]string, error)
}

// UserNotifier sends a notification to every device of a user.
type UserNotifier struct {
	tokens TokenStore
	sender Sender
	logger *slog.Logger
}

func NewUserNotifier(tokens TokenStore, sender Sender, logger *slog.Logger) *UserNotifier {
	return &UserNotifier{tokens: tokens, sender: sender, logger: logger}
}

// Notify succeeds if at least one device received the notification.
func (n *UserNotifier) Notify(ctx context.Context, username, title, body string) error {
	tokens, err := n.tokens.TokensForUser(ctx, username)
	if err != nil {
		return fmt.Errorf("looking up devices for %s: %w", username, err)
	}
	if len(tokens) == 0 {
		return ErrNoDevices
	}

	var errs []error
	for _, tok := range tokens {
		if err := n.sender.Send(ctx, tok, title, body); err != nil {
			n.logger.Warn("push to device failed", "user", username, "token", redact(tok), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(tokens) {
		return fmt.Errorf("all %d sends failed: %w", len(tokens), errors.Join(errs...))
	}
	return nil
}
