package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json output carries service attribute", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, "json", "info").Info("hello", "k", "v")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "medorder", line["service"])
		assert.Equal(t, "v", line["k"])
	})

	t.Run("level filters debug", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, "text", "warn").Info("dropped")
		assert.Empty(t, buf.String())
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, "text", "loud").Info("kept")
		assert.Contains(t, buf.String(), "kept")
	})
}
