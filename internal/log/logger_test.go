package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestInitWriter_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("prod", &buf)

	log.Info().Str("room_id", "abc").Msg("joined")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["room_id"] != "abc" || entry["message"] != "joined" {
		t.Errorf("unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry has no timestamp")
	}
}

func TestInitWriter_DevIsConsole(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("dev", &buf)

	log.Debug().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Fatalf("debug line missing in dev: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("dev output should not be JSON: %q", out)
	}
}
