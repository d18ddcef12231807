package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rexfever/showmethestock-sub000/pkg/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel zerolog.Level
	}{
		{"debug level", "debug", zerolog.DebugLevel},
		{"info level", "info", zerolog.InfoLevel},
		{"warn level", "warn", zerolog.WarnLevel},
		{"error level", "error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := &config.Config{Env: "development", LogLevel: tt.level, LogFormat: "json"}

			log := NewWithWriter(cfg, &buf)
			if log == nil {
				t.Fatal("Expected logger to be created")
			}
			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("Expected global level %v, got %v", tt.wantLevel, zerolog.GlobalLevel())
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"invalid", zerolog.InfoLevel}, // Default
		{"", zerolog.InfoLevel},        // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnvField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "staging", LogLevel: "debug"}, &buf)

	log.Info("started")

	entry := decodeLine(t, &buf)
	if entry["env"] != "staging" {
		t.Errorf("Expected env=staging, got %v", entry["env"])
	}
	if entry["message"] != "started" {
		t.Errorf("Expected message 'started', got %v", entry["message"])
	}
}

func TestAlert(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log := &Logger{zlog: zerolog.New(&buf)}

	log.WithField("ticker", "005930").Alert("duplicate active recommendations")

	entry := decodeLine(t, &buf)
	if entry["level"] != "error" {
		t.Errorf("Expected level error, got %v", entry["level"])
	}
	if entry["severity"] != "critical" {
		t.Errorf("Expected severity critical, got %v", entry["severity"])
	}
	if entry["alert"] != true {
		t.Errorf("Expected alert=true, got %v", entry["alert"])
	}
	if entry["ticker"] != "005930" {
		t.Errorf("Expected ticker field, got %v", entry["ticker"])
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log := &Logger{zlog: zerolog.New(&buf)}

	log.WithComponent("lifecycle.engine").WithFields(map[string]interface{}{
		"ticker": "005930",
		"price":  72300,
	}).Info("transition applied")

	entry := decodeLine(t, &buf)
	if entry["component"] != "lifecycle.engine" {
		t.Errorf("Expected component field, got %v", entry["component"])
	}
	if entry["ticker"] != "005930" {
		t.Errorf("Expected ticker to be 005930, got %v", entry["ticker"])
	}
	if entry["price"] != float64(72300) {
		t.Errorf("Expected price to be 72300, got %v", entry["price"])
	}
}

func TestWithRecommendation(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log := &Logger{zlog: zerolog.New(&buf)}

	log.WithRecommendation("rec-1", "005930").Warn("record skipped")

	entry := decodeLine(t, &buf)
	if entry["recommendation_id"] != "rec-1" {
		t.Errorf("Expected recommendation_id rec-1, got %v", entry["recommendation_id"])
	}
	if entry["ticker"] != "005930" {
		t.Errorf("Expected ticker 005930, got %v", entry["ticker"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := &Logger{zlog: zerolog.New(&buf)}

	log.WithError(errors.New("price lookup timed out")).Error("record skipped")

	entry := decodeLine(t, &buf)
	if entry["error"] != "price lookup timed out" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
}

func TestNop(t *testing.T) {
	// Nop must be safe to use anywhere a logger is required
	log := Nop()
	log.WithFields(map[string]interface{}{"k": "v"}).Info("ignored")
	log.Alert("ignored")
}
