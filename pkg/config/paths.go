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

// Package config resolves where planeview keeps its data on disk.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DataDirEnv overrides the data directory.
	DataDirEnv = "PLANEVIEW_DATA_DIR"
	// DefaultConfigFileName is the config file base name (planeview.yaml).
	DefaultConfigFileName = "planeview"
	// DefaultDatabaseFile is the annotation database file name.
	DefaultDatabaseFile = "annotations.db"
)

// GetDataDir returns the planeview data directory.
//
// Priority:
//  1. PLANEVIEW_DATA_DIR (if set and non-empty)
//  2. ~/.planeview
//
// The result is absolute; a leading ~ is expanded. It reads the environment
// directly rather than viper because it is needed to locate the config file.
//
//	PLANEVIEW_DATA_DIR=/srv/planeview -> /srv/planeview
//	PLANEVIEW_DATA_DIR=~/pv           -> /home/user/pv
//	PLANEVIEW_DATA_DIR not set        -> /home/user/.planeview
func GetDataDir() string {
	if dataDir := os.Getenv(DataDirEnv); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".planeview"
	}
	return filepath.Join(homeDir, ".planeview")
}

// GetSubDir returns a subdirectory within the data directory.
func GetSubDir(subdir string) string {
	return filepath.Join(GetDataDir(), subdir)
}

// DefaultDatabasePath returns the annotation database path inside the data
// directory.
func DefaultDatabasePath() string {
	return filepath.Join(GetDataDir(), DefaultDatabaseFile)
}

// ExpandPath expands a leading ~ and makes path absolute. Paths that cannot
// be resolved are returned unchanged.
func ExpandPath(path string) string {
	return expandPath(path)
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
