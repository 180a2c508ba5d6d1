package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		json, debug bool
		level       zapcore.Level
	}{
		{json: false, debug: false, level: zapcore.InfoLevel},
		{json: true, debug: true, level: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		l, err := New(tt.json, tt.debug)
		if err != nil {
			t.Fatalf("New(%t, %t): %v", tt.json, tt.debug, err)
		}
		if !l.Core().Enabled(tt.level) || l.Core().Enabled(tt.level-1) {
			t.Fatalf("New(%t, %t): expected minimum level %s", tt.json, tt.debug, tt.level)
		}
	}
}
