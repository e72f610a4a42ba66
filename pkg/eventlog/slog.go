package eventlog

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogAdapter mirrors events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("category", event.Category.String()),
	}
	if event.Reader != "" {
		attrs = append(attrs, slog.String("reader", event.Reader))
	}

	switch {
	case event.Exchange != nil:
		x := event.Exchange
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("size", x.Size),
		)
		if len(x.Header) > 0 {
			attrs = append(attrs, slog.String("header", fmt.Sprintf("%X", x.Header)))
		}
		if event.Direction == DirectionIn {
			attrs = append(attrs, slog.String("sw", fmt.Sprintf("%04X", x.Status)))
		}
		if x.Opaque {
			attrs = append(attrs, slog.Bool("encrypted", true))
		}
		if x.Redacted {
			attrs = append(attrs, slog.Bool("redacted", true))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("op", event.Error.Op),
			slog.String("error", event.Error.Message),
		)
		if event.Error.Status != nil {
			attrs = append(attrs, slog.String("sw", fmt.Sprintf("%04X", *event.Error.Status)))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "card", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
