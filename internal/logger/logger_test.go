package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestDomainLevels(t *testing.T) {
	t.Parallel()

	b := NewTestBuilder()
	assert.False(t, b.Enabled(InstallDomain, zapcore.DebugLevel))
	assert.True(t, b.Enabled(InstallDomain, zapcore.InfoLevel))

	b.SetDomainLevel("install", zapcore.DebugLevel)
	assert.True(t, b.Enabled(InstallDomain, zapcore.DebugLevel))
	assert.False(t, b.Enabled(HTTPSDomain, zapcore.DebugLevel))

	b.SetDomainLevel("all", zapcore.DebugLevel)
	assert.True(t, b.Enabled(HTTPSDomain, zapcore.DebugLevel))

	b.SetDomainLevel("does-not-exist", zapcore.ErrorLevel)
	assert.True(t, b.Enabled(HTTPSDomain, zapcore.DebugLevel))
}

func TestEncoderOutput(t *testing.T) { //nolint:paralleltest // Toggles the global color.NoColor.
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var out bytes.Buffer
	b := NewBuilder(zapcore.AddSync(&out))
	b.SetDomainLevel("all", zapcore.DebugLevel)
	log := b.Domain(InstallDomain)

	log.Info("Installed formula.", zap.String("formula", "taru-bin"))
	log.Error("Failed to install formula.", zap.String("formula", "taru-bin"), zap.String("path", "/usr/local/bin/taru"))
	log.With(zap.String("formula", "other")).Debug("Removed file.")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if assert.Len(t, lines, 4) {
		assert.Contains(t, lines[0], "install")
		assert.Contains(t, lines[0], "[taru-bin] Installed formula.")

		assert.Contains(t, lines[1], "[taru-bin] Failed to install formula.")
		assert.Contains(t, lines[2], `"path": "/usr/local/bin/taru"`)
		assert.NotContains(t, lines[2], "formula")
		assert.True(t, strings.HasPrefix(lines[2], "  "), "fields should be rendered on an indented line")

		assert.Contains(t, lines[3], "[other] Removed file.")
	}
}

func TestDomains(t *testing.T) {
	t.Parallel()

	d := Domains()
	assert.Contains(t, d, "all")
	assert.Contains(t, d, "verify")
	assert.IsIncreasing(t, d)
}
