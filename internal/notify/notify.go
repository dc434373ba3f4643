package notify

import (
	"context"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/100x-Engineers100/ugc-tracker/internal/pkg/logger"
	"github.com/rs/zerolog"
)

// Log writes every notification to the structured log. This sink is always
// on; the broker publisher is layered on top via Fanout.
type Log struct {
	log zerolog.Logger
}

func NewLog() *Log {
	return &Log{log: logger.Logger.With().Str("component", "notify").Logger()}
}

func (l *Log) Notify(ctx context.Context, n domain.Notification) {
	ev := l.log.Info()
	if n.Severity == domain.SeverityError {
		ev = l.log.Warn()
	}
	ev.Str("severity", string(n.Severity)).
		Str("title", n.Title).
		Str("description", n.Description).
		Msg("notification")
}

// Fanout delivers one notification to every sink in order. Sinks must not
// block; delivery is fire and forget.
type Fanout struct {
	sinks []domain.Notifier
}

func NewFanout(sinks ...domain.Notifier) *Fanout {
	out := make([]domain.Notifier, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

func (f *Fanout) Notify(ctx context.Context, n domain.Notification) {
	for _, s := range f.sinks {
		s.Notify(ctx, n)
	}
}
