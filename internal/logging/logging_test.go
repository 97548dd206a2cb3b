package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.WithField("store_id", "main-store").Debug("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if entry["store_id"] != "main-store" || entry["msg"] != "hello" || entry["level"] != "debug" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestLogErrorIncludesOperation(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, "info", "text")
	LogError(logger, "inventory", "DeductTransaction", map[string]string{"tx": "tx-1"}, errors.New("boom"))

	out := buf.String()
	for _, want := range []string{"DeductTransaction failed", "component=inventory", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q: %s", want, out)
		}
	}
	LogError(logrus.New(), "inventory", "noop", nil, nil)
}
