package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithAccountID(ctx, "acc-1")

	log.Error(ctx, "boom", errors.New("boom"))

	for _, field := range []string{"\"request_id\"", "\"account_id\"", "\"stack\"", "\"error\""} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack when warn stack enabled; entry=%s", buf.String())
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	quiet.Warn(context.Background(), "warny")
	if bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected no stack when warn stack disabled; entry=%s", buf.String())
	}
}

func TestWithFieldsDoesNotLeakIntoParentContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := context.Background()
	child := log.WithFields(parent, map[string]any{"job": "recurring-charges"})

	log.Info(parent, "parent")
	if bytes.Contains(buf.Bytes(), []byte("recurring-charges")) {
		t.Fatalf("parent context should not carry child fields; entry=%s", buf.String())
	}

	buf.Reset()
	log.Info(child, "child")
	if !bytes.Contains(buf.Bytes(), []byte("recurring-charges")) {
		t.Fatalf("child context should carry fields; entry=%s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", lvl)
	}
}

func TestLoggerCarriesEnvironmentAndFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "cron-worker", Environment: "prod", Output: buf})

	log.Debug(context.Background(), "skipped")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level; entry=%s", buf.String())
	}

	log.Info(log.WithJob(context.Background(), "billing-daily"), "job started")
	for _, field := range []string{`"env":"prod"`, `"service":"cron-worker"`, `"job":"billing-daily"`} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestLoggerConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Format: "console", Output: buf})
	log.Info(context.Background(), "listening")
	if bytes.HasPrefix(bytes.TrimSpace(buf.Bytes()), []byte("{")) {
		t.Fatalf("console format should not emit JSON; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("listening")) {
		t.Fatalf("expected message in console output; entry=%s", buf.String())
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var log *Logger
	ctx := log.WithRequestID(context.Background(), "req-9")
	ctx = log.WithFields(ctx, map[string]any{"payment_id": "p-1"})
	log.Debug(ctx, "quiet")
	log.Info(ctx, "quiet")
	log.Warn(ctx, "quiet")
	log.Error(ctx, "quiet", errors.New("ignored"))

	if got := RequestID(ctx); got != "req-9" {
		t.Fatalf("request id should survive a nil logger, got %q", got)
	}
}
