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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDataDir(t *testing.T) {
	t.Run("default to ~/.planeview", func(t *testing.T) {
		t.Setenv(DataDirEnv, "")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, ".planeview"), GetDataDir())
	})

	t.Run("use PLANEVIEW_DATA_DIR when set", func(t *testing.T) {
		t.Setenv(DataDirEnv, "/srv/planeview")
		assert.Equal(t, "/srv/planeview", GetDataDir())
	})

	t.Run("expand ~", func(t *testing.T) {
		t.Setenv(DataDirEnv, "~/pv")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, "pv"), GetDataDir())
	})

	t.Run("relative path made absolute", func(t *testing.T) {
		t.Setenv(DataDirEnv, "relative/path")

		dataDir := GetDataDir()
		assert.True(t, filepath.IsAbs(dataDir))
		assert.True(t, strings.HasSuffix(dataDir, filepath.Join("relative", "path")))
	})
}

func TestSubDirAndDatabasePath(t *testing.T) {
	t.Setenv(DataDirEnv, "/srv/planeview")

	assert.Equal(t, filepath.Join("/srv/planeview", "exports"), GetSubDir("exports"))
	assert.Equal(t, filepath.Join("/srv/planeview", DefaultDatabaseFile), DefaultDatabasePath())
}

func TestExpandPath_Home(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, homeDir, ExpandPath("~"))
}
