// Package ratelimit warns when a server's API quota runs low.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/naka-gawa/github-trailer/internal/domain"
)

// Warning describes a quota problem on one server. Blocking warnings mean no
// further requests can succeed until the quota resets.
type Warning struct {
	Server    string
	Remaining int
	Limit     int
	ResetAt   time.Time
	Blocking  bool
}

func (w Warning) String() string {
	if w.Blocking {
		return fmt.Sprintf("%s: API quota exhausted, resets at %s", w.Server, w.ResetAt.Local().Format(time.Kitchen))
	}
	return fmt.Sprintf("%s: API quota low (%d of %d left), resets at %s", w.Server, w.Remaining, w.Limit, w.ResetAt.Local().Format(time.Kitchen))
}

// Check inspects one server's quota. It returns false when there is nothing to
// report, including servers without valid credentials or a known limit.
func Check(server domain.Server, lowWaterMark float64) (Warning, bool) {
	q := server.Quota
	if !server.GoodToGo || q.Limit <= 0 {
		return Warning{}, false
	}
	w := Warning{Server: server.Label, Remaining: q.Remaining, Limit: q.Limit, ResetAt: q.ResetAt}
	switch {
	case q.Remaining <= 0:
		w.Blocking = true
		return w, true
	case float64(q.Remaining)/float64(q.Limit) < lowWaterMark:
		return w, true
	default:
		return Warning{}, false
	}
}

// Warner receives quota warnings.
type Warner interface {
	Warn(ctx context.Context, w Warning)
}

// LogWarner reports warnings through the logger.
type LogWarner struct {
	Logger *slog.Logger
}

func (l LogWarner) Warn(ctx context.Context, w Warning) {
	level := slog.LevelWarn
	if w.Blocking {
		level = slog.LevelError
	}
	l.Logger.Log(ctx, level, w.String(),
		"server", w.Server,
		"remaining", w.Remaining,
		"limit", w.Limit,
		"reset_at", w.ResetAt,
	)
}

// Monitor runs the check over every server once per cycle.
type Monitor struct {
	warner       Warner
	lowWaterMark float64
}

// NewMonitor creates a Monitor.
func NewMonitor(warner Warner, lowWaterMark float64) *Monitor {
	return &Monitor{warner: warner, lowWaterMark: lowWaterMark}
}

// Inspect checks every server and returns the warnings it emitted.
func (m *Monitor) Inspect(ctx context.Context, servers []domain.Server) []Warning {
	var warnings []Warning
	for _, s := range servers {
		if w, ok := Check(s, m.lowWaterMark); ok {
			m.warner.Warn(ctx, w)
			warnings = append(warnings, w)
		}
	}
	return warnings
}
