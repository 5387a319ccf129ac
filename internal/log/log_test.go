// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigure(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	tests := []struct {
		name    string
		level   string
		format  string
		wantErr string
		enabled zapcore.Level
	}{
		{name: "text debug", level: "debug", format: "text", enabled: zapcore.DebugLevel},
		{name: "json warn", level: "WARN", format: "json", enabled: zapcore.WarnLevel},
		{name: "empty format defaults to console", level: "info", format: "", enabled: zapcore.InfoLevel},
		{name: "bad level", level: "loud", format: "text", wantErr: "invalid log level"},
		{name: "bad format", level: "info", format: "xml", wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Configure(tt.level, tt.format)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Same(t, l, Logger())
			assert.True(t, l.Core().Enabled(tt.enabled))
			if tt.enabled > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.enabled-1))
			}
		})
	}
}

func TestSetLogger_NilInstallsNop(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(nil)
	require.NotNil(t, Logger())
	assert.False(t, Logger().Core().Enabled(zapcore.ErrorLevel))

	SetLogger(zap.NewExample())
	assert.NotNil(t, Named("viewport"))
}
