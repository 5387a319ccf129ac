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
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/planeview/internal/log"
	"github.com/teradata-labs/planeview/pkg/persistence"
)

var annotationsCmd = &cobra.Command{
	Use:     "annotations",
	Aliases: []string{"ann"},
	Short:   "Query and maintain stored annotations",
}

var annotationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the annotations of a study from a running server",
	RunE:  runAnnotationsList,
}

var annotationsBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a verified copy of the annotation database",
	RunE:  runAnnotationsBackup,
}

var annotationsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored annotation payload sizes",
	RunE:  runAnnotationsStats,
}

func init() {
	annotationsListCmd.Flags().String("study", "", "study id (required)")
	annotationsListCmd.Flags().String("endpoint", "", "annotation API base URL")
	_ = annotationsListCmd.MarkFlagRequired("study")
	_ = viper.BindPFlag("annotations.endpoint", annotationsListCmd.Flags().Lookup("endpoint"))

	annotationsCmd.AddCommand(annotationsListCmd)
	annotationsCmd.AddCommand(annotationsBackupCmd)
	annotationsCmd.AddCommand(annotationsStatsCmd)
	rootCmd.AddCommand(annotationsCmd)
}

type annotationView struct {
	ID        string `yaml:"id"`
	UserID    string `yaml:"user"`
	Type      string `yaml:"type"`
	CreatedAt string `yaml:"created_at"`
	Data      string `yaml:"data"`
}

func runAnnotationsList(cmd *cobra.Command, _ []string) error {
	study, _ := cmd.Flags().GetString("study")
	client, err := persistence.NewClient(config.Annotations.Endpoint,
		persistence.WithLogger(log.Named("client")))
	if err != nil {
		return err
	}
	records, err := client.List(cmd.Context(), study)
	if err != nil {
		return fmt.Errorf("failed to list annotations: %w", err)
	}
	out := make([]annotationView, 0, len(records))
	for _, r := range records {
		out = append(out, annotationView{
			ID:        r.ID,
			UserID:    r.UserID,
			Type:      r.Type,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
			Data:      string(r.Data),
		})
	}
	return writeYAML(cmd.OutOrStdout(), out)
}

func runAnnotationsBackup(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	path, err := store.Backup(cmd.Context())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backup written to: %s\n", path)
	return nil
}

func runAnnotationsStats(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	raw, compressed, err := store.StoredBytes(cmd.Context())
	if err != nil {
		return err
	}
	return writeYAML(cmd.OutOrStdout(), map[string]int64{
		"raw_bytes":        raw,
		"compressed_bytes": compressed,
	})
}
