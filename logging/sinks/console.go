package sinks

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"formation/server/logging"
)

// ConsoleSink prints one line per event through a standard logger.
type ConsoleSink struct {
	logger *log.Logger
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{logger: log.New(w, "", log.LstdFlags)}
}

// Publish lets the sink double as a logging.Publisher for callers that do
// not need fan-out.
func (s *ConsoleSink) Publish(_ context.Context, event logging.Event) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("[%s] turn=%d actor=%s severity=%s%s", event.Type, event.Turn, formatEntity(event.Actor), formatSeverity(event.Severity), formatExtra(event.Extra))
}

func formatSeverity(sev logging.Severity) string {
	switch sev {
	case logging.SeverityDebug:
		return "debug"
	case logging.SeverityInfo:
		return "info"
	case logging.SeverityWarn:
		return "warn"
	case logging.SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatExtra(extra map[string]any) string {
	if len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, extra[key]))
	}
	return " " + strings.Join(parts, " ")
}
