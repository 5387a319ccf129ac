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
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/internal/log"
	"github.com/teradata-labs/planeview/pkg/persistence"
	"github.com/teradata-labs/planeview/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the annotation persistence API",
	Long: `Serve the annotation persistence API over HTTP.

Endpoints:
  GET  /health                 liveness probe
  POST /annotations            store one annotation record
  GET  /annotations?studyId=   list the records of a study
  GET  /annotations/events     server-sent events for new records`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "listen host")
	serveCmd.Flags().IntP("port", "p", 5080, "listen port")
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

// openStore opens the configured annotation database, creating its
// directory if needed.
func openStore(ctx context.Context) (*persistence.SQLiteStore, error) {
	path := config.Database.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := persistence.OpenSQLite(ctx, path, log.Named("persistence"))
	if err != nil {
		return nil, fmt.Errorf("failed to open annotation store: %w", err)
	}
	return store, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Error closing annotation store", zap.Error(err))
		}
	}()

	if spec := config.Database.BackupSchedule; spec != "" {
		backups, err := persistence.NewBackupSchedule(spec, store, log.Named("backup"))
		if err != nil {
			return err
		}
		backups.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := backups.Stop(stopCtx); err != nil {
				log.Warn("Backup still running at shutdown", zap.Error(err))
			}
		}()
	}

	srv, err := server.NewHTTPServerWithCORS(store, config.Server.Addr(), log.Named("server"), config.Server.ServerCORS())
	if err != nil {
		return err
	}

	log.Info("Annotation API ready",
		zap.String("addr", config.Server.Addr()),
		zap.String("database", config.Database.Path))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("Shut down")
	_ = log.Sync()
	return nil
}
