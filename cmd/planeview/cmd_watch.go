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
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/internal/log"
	"github.com/teradata-labs/planeview/pkg/series"
	"github.com/teradata-labs/planeview/pkg/viewer"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Rebuild and report the series of a directory on every change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", 500*time.Millisecond, "quiet period before a rebuild")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	debounce, _ := cmd.Flags().GetDuration("debounce")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := newViewer(viewer.Dependencies{})
	if err != nil {
		return err
	}
	defer closeViewer(v)

	out := cmd.OutOrStdout()
	w, err := series.NewWatcher(args[0], v.Builder(), series.WatcherConfig{
		Debounce: debounce,
		Logger:   log.Named("watcher"),
		OnSeries: func(s *series.Series) {
			_, _ = fmt.Fprintln(out, "---")
			if err := writeYAML(out, buildReport(ctx, v, s)); err != nil {
				log.Warn("Failed to write report", zap.Error(err))
			}
			// The watcher destroys s after this returns.
			v.Cache().EvictAll(s.Identifiers)
			for _, id := range s.Identifiers {
				v.Probe().Invalidate(id)
			}
		},
		OnError: func(err error) {
			log.Warn("Series rebuild failed", zap.Error(err))
		},
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}
