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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/internal/log"
	"github.com/teradata-labs/planeview/internal/version"
	pvconfig "github.com/teradata-labs/planeview/pkg/config"
	"github.com/teradata-labs/planeview/pkg/viewer"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "planeview",
	Short: "planeview - multi-planar viewer core for medical image series",
	Long: `planeview classifies uploaded image files into series, decides whether a
series can be shown as a 3-D volume, renders stack and multi-planar views and
serves the annotation persistence API.`,
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $PLANEVIEW_DATA_DIR/planeview.yaml)")

	rootCmd.PersistentFlags().String("db", pvconfig.DefaultDatabasePath(), "annotation database path")
	rootCmd.PersistentFlags().String("context", viewer.DefaultContextName, "rendering context name")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("viewer.context_name", rootCmd.PersistentFlags().Lookup("context"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if _, err := log.Configure(config.Logging.Level, config.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %v\n", err)
		os.Exit(1)
	}
}

// newViewer builds a viewer from the loaded configuration.
func newViewer(deps viewer.Dependencies) (*viewer.Viewer, error) {
	v, err := viewer.New(config.ViewerConfig(log.Named("viewer")), deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create viewer: %w", err)
	}
	return v, nil
}

// closeViewer releases every session and context of v.
func closeViewer(v *viewer.Viewer) {
	res := v.Close(context.Background())
	if !res.Applied() {
		log.Debug("Viewer closed with absorbed errors", zap.Stringer("outcome", res))
	}
	_ = log.Sync()
}
