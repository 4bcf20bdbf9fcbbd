package mes

import (
	"log/slog"
	"time"
)

// Event describes a request that failed after exhausting its retries.
// The client only emits the payload; formatting and delivery belong to
// whatever notifier is plugged in.
type Event struct {
	URL        string
	Attempts   int
	LastStatus int
	Snippet    string
	Elapsed    time.Duration
	At         time.Time
}

// Notifier receives failure events for out-of-band alerting.
type Notifier interface {
	Notify(Event)
}

// LogNotifier writes failure events to structured logs. It is the default
// notifier when nothing else is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(e Event) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("request failed after retries",
		"url", e.URL,
		"attempts", e.Attempts,
		"last_status", e.LastStatus,
		"snippet", e.Snippet,
		"elapsed", e.Elapsed,
	)
}
