package application

import (
	"context"
	"log/slog"

	"github.com/example/gymdesk-client/internal/apperror"
)

// Notifier receives transient success and failure signals for the user.
type Notifier interface {
	Success(ctx context.Context, message string)
	Failure(ctx context.Context, err error)
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier backed by logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: defaultLogger(logger)}
}

// Success logs message at info level.
func (n *LogNotifier) Success(ctx context.Context, message string) {
	n.logger.InfoContext(ctx, message, "notification", "success")
}

// Failure logs err at warn level.
func (n *LogNotifier) Failure(ctx context.Context, err error) {
	n.logger.WarnContext(ctx, err.Error(), "notification", "failure", "error_kind", apperror.Label(err))
}

type discardNotifier struct{}

func (discardNotifier) Success(context.Context, string) {}
func (discardNotifier) Failure(context.Context, error)  {}
