package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// field is one flattened key/value; group names are folded into key with
// dots.
type field struct {
	key   string
	value slog.Value
}

// consoleHandler writes one human-oriented line per record:
//
//	2026-01-02 15:04:05 INFO [workflow] Job 01234567 (render, attempt 2) - message key=value
//
// Attrs from WithAttrs are flattened once when attached, so Handle only walks
// the record's own attrs.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool
	color     bool
	prefix    string
	attached  []field
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource, color bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, addSource: addSource, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]field, 0, len(h.attached)+record.NumAttrs())
	fields = append(fields, h.attached...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.prefix, attr)
		return true
	})

	// The header fields are pulled out of the key=value tail.
	var hdr header
	tail := fields[:0:0]
	for _, f := range lastWins(fields) {
		if !hdr.take(f) {
			tail = append(tail, f)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(h.paint(ansiDim, consoleTime(ts)))
	b.WriteByte(' ')
	b.WriteString(h.paint(levelColor(record.Level), levelLabel(record.Level)))
	if hdr.component != "" {
		fmt.Fprintf(&b, " [%s]", hdr.component)
	}
	if subject := hdr.subject(); subject != "" {
		b.WriteByte(' ')
		b.WriteString(h.paint(ansiCyan, subject))
	}
	b.WriteString(" - ")
	if msg := strings.TrimSpace(record.Message); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString("(no message)")
	}
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range tail {
		b.WriteByte(' ')
		b.WriteString(h.paint(ansiDim, f.key+"="))
		b.WriteString(quotedValue(f.value))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attached = append([]field(nil), h.attached...)
	for _, attr := range attrs {
		next.attached = appendField(next.attached, h.prefix, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *consoleHandler) paint(code, text string) string {
	if !h.color || code == "" || text == "" {
		return text
	}
	return code + text + ansiReset
}

// header holds the fields shown before the message rather than as pairs.
type header struct {
	component, jobID, stage, attempt string
}

func (hd *header) take(f field) bool {
	var slot *string
	switch f.key {
	case FieldComponent:
		slot = &hd.component
	case FieldJobID:
		slot = &hd.jobID
	case FieldStage:
		slot = &hd.stage
	case FieldAttempt:
		slot = &hd.attempt
	default:
		return false
	}
	*slot = strings.TrimSpace(plainValue(f.value))
	return true
}

// subject renders "Job <short id> (<stage>, attempt <n>)", dropping the parts
// that are absent.
func (hd header) subject() string {
	var detail []string
	if hd.stage != "" {
		detail = append(detail, hd.stage)
	}
	if hd.attempt != "" && hd.jobID != "" {
		detail = append(detail, "attempt "+hd.attempt)
	}
	if hd.jobID == "" {
		return strings.Join(detail, ", ")
	}
	id := hd.jobID
	if len(id) > 8 {
		id = id[:8]
	}
	if len(detail) == 0 {
		return "Job " + id
	}
	return "Job " + id + " (" + strings.Join(detail, ", ") + ")"
}

func appendField(dst []field, prefix string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = prefix + attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			dst = appendField(dst, inner, member)
		}
		return dst
	}
	if attr.Key == "" {
		return dst
	}
	return append(dst, field{key: prefix + attr.Key, value: attr.Value})
}

// lastWins keeps the final value for each key at the position where the key
// first appeared, so a job-scoped logger can override an inherited attr.
func lastWins(fields []field) []field {
	seen := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if i, ok := seen[f.key]; ok {
			out[i] = f
			continue
		}
		seen[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level < slog.LevelInfo:
		return ansiDim
	default:
		return ""
	}
}
