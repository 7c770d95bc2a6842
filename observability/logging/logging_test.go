package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewRenamesStandardKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: "escrowd", Env: "test", Level: "debug"})
	logger.Debug("listing created", "listingId", 7)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("expected key %q in %v", key, line)
		}
	}
	if line["severity"] != "DEBUG" {
		t.Fatalf("unexpected severity %v", line["severity"])
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatalf("expected info level fallback")
	}
	if ParseLevel(" WARN ") != slog.LevelWarn {
		t.Fatalf("expected warn level")
	}
}

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://escrow:s3cret@db:5432/journal": "postgres://escrow:" + RedactedValue + "@db:5432/journal",
		"host=db user=escrow password=s3cret":      "host=db user=escrow password=" + RedactedValue,
		"file:journal.db":                          "file:journal.db",
	}
	for in, want := range cases {
		got := RedactDSN(in)
		if strings.Contains(in, "s3cret") && strings.Contains(got, "s3cret") {
			t.Fatalf("password leaked for %q: %q", in, got)
		}
		if !strings.Contains(in, "://") && got != want {
			t.Fatalf("RedactDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskFieldHonoursAllowlist(t *testing.T) {
	if got := MaskField("action", "buy_listing").Value.String(); got != "buy_listing" {
		t.Fatalf("allowlisted field masked: %q", got)
	}
	if got := MaskField("dsn", "secret").Value.String(); got != RedactedValue {
		t.Fatalf("expected mask, got %q", got)
	}
}
