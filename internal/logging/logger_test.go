package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		level      string
		want       zapcore.Level
	}{
		{"production default", true, "", zapcore.InfoLevel},
		{"development default", false, "", zapcore.DebugLevel},
		{"explicit level", true, "warn", zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.production, tt.level)
			require.NoError(t, err)
			require.True(t, logger.Core().Enabled(tt.want))
			require.False(t, logger.Core().Enabled(tt.want-1))
		})
	}
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(true, "loud")
	require.Error(t, err)
}
