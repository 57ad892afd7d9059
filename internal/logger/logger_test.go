package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleus-sweep/internal/models"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"", zerolog.InfoLevel, false},
		{" INFO ", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"off", zerolog.Disabled, false},
		{"verbose", zerolog.NoLevel, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestZerologAdapterFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.DebugLevel)

	log.Info("Sweep", "combo scored", map[string]interface{}{
		"combo":    "Otsu-Bernsen",
		"duration": 1500 * time.Millisecond,
	})

	line := decodeLine(t, &buf)
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "Sweep", line["component"])
	assert.Equal(t, "combo scored", line["message"])
	assert.Equal(t, "Otsu-Bernsen", line["combo"])
}

func TestZerologAdapterErrorKind(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.InfoLevel)

	log.Error("Evaluator", fmt.Errorf("score a.png: %w", models.ErrDimensionMismatch), nil)

	line := decodeLine(t, &buf)
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "DimensionMismatch", line["kind"])
	assert.Contains(t, line["error"], "dimension mismatch")
}

func TestZerologAdapterLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.WarnLevel)

	log.Debug("Sweep", "hidden", nil)
	log.Info("Sweep", "hidden", nil)
	assert.Zero(t, buf.Len())

	log.Warning("Sweep", "shown", nil)
	assert.NotZero(t, buf.Len())
}

func TestNop(t *testing.T) {
	var l Logger = NewNop()
	l.Info("x", "y", nil)
	l.Error("x", models.ErrLoad, nil)
}
