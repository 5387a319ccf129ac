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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	pvconfig "github.com/teradata-labs/planeview/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage planeview configuration",
	Long:  `Manage the planeview configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate example configuration file",
	Long:  `Generate an example planeview.yaml configuration file in the data directory.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration (merged from all sources).`,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing configuration file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")

	dataDir := pvconfig.GetDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, pvconfig.DefaultConfigFileName+".yaml")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content, err := GenerateExampleConfig()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created example config at: %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	return writeYAML(cmd.OutOrStdout(), config)
}
