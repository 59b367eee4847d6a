package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupWriterJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", false)

	log.Info().Msg("hidden")
	log.Warn().Str("game_id", "g1").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["game_id"] != "g1" || entry["level"] != "warn" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSetupWriterUnknownLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	SetupWriter(&bytes.Buffer{}, "chatty", false)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("level = %s, want info", zerolog.GlobalLevel())
	}
}
