package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestCompactHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	r := slog.NewRecord(time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC), slog.LevelWarn, "relationship dropped", 0)
	r.AddAttrs(
		slog.String("jobID", "0123456789abcdef"),
		slog.String("src", "Albert Einstein"),
		slog.Int("dropped", 2),
	)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	got := buf.String()
	want := `[WARN]  13:04:05 relationship dropped | job=01234567 src="Albert Einstein" dropped=2` + "\n"
	if got != want {
		t.Errorf("unexpected output\n got: %q\nwant: %q", got, want)
	}
}

func TestCompactHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	h := NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestCompactHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	base := NewCompactHandler(&buf, nil)
	h := base.WithAttrs([]slog.Attr{slog.String("component", "stream")}).WithGroup("msg")

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "decoded", 0)
	r.AddAttrs(slog.String("type", "pong"))
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=stream") {
		t.Errorf("missing handler attr in %q", got)
	}
	if !strings.Contains(got, "msg.type=pong") {
		t.Errorf("missing grouped attr in %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"trace", LevelTrace, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
