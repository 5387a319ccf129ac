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
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/planeview/pkg/blob"
	"github.com/teradata-labs/planeview/pkg/imageid"
	"github.com/teradata-labs/planeview/pkg/metadata"
	"github.com/teradata-labs/planeview/pkg/series"
	"github.com/teradata-labs/planeview/pkg/viewer"
	"github.com/teradata-labs/planeview/pkg/volume"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <dir | file...>",
	Short: "Classify files and explain how the series would be shown",
	Long: `Classify the given files (or the files of one directory) into a series,
probe the metadata of the first image and explain whether the series can be
shown as a volume. The report is printed as YAML.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

type rejectedFile struct {
	Name   string `yaml:"name"`
	Reason string `yaml:"reason"`
}

type inspectReport struct {
	Series      string                   `yaml:"series"`
	Format      series.Kind              `yaml:"format"`
	Viewer      series.ViewerType        `yaml:"viewer"`
	DICOMDIR    bool                     `yaml:"dicomdir,omitempty"`
	Files       []string                 `yaml:"files"`
	Identifiers []string                 `yaml:"identifiers"`
	Rejected    []rejectedFile           `yaml:"rejected,omitempty"`
	Decision    volume.Decision          `yaml:"decision"`
	Summary     string                   `yaml:"summary"`
	Metadata    *metadata.SeriesMetadata `yaml:"metadata,omitempty"`
}

// openInputs opens the files named by args, or the files of a single
// directory argument.
func openInputs(args []string) ([]*blob.RawFile, error) {
	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			return series.ScanDir(args[0])
		}
	}
	files := make([]*blob.RawFile, 0, len(args))
	for _, path := range args {
		f, err := blob.OpenRawFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func buildReport(ctx context.Context, v *viewer.Viewer, s *series.Series) inspectReport {
	r := inspectReport{
		Series:      s.ID,
		Format:      s.Format,
		Viewer:      s.Viewer,
		DICOMDIR:    s.FromDICOMDIR,
		Files:       s.Names,
		Identifiers: imageid.Strings(s.Identifiers),
	}
	for _, rej := range s.Rejected {
		r.Rejected = append(r.Rejected, rejectedFile{Name: rej.Name, Reason: rej.Reason})
	}
	r.Decision = v.Explain(ctx, s)
	r.Summary = r.Decision.String()
	if s.Len() > 0 {
		if md, err := v.Probe().Get(ctx, s.Identifiers[0]); err == nil {
			r.Metadata = &md
		}
	}
	return r
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func runInspect(cmd *cobra.Command, args []string) error {
	files, err := openInputs(args)
	if err != nil {
		return err
	}
	v, err := newViewer(viewer.Dependencies{})
	if err != nil {
		return err
	}
	defer closeViewer(v)

	sess, err := v.Open(files)
	if err != nil {
		return fmt.Errorf("no series: %w", err)
	}
	report := buildReport(cmd.Context(), v, sess.Series())
	return writeYAML(cmd.OutOrStdout(), report)
}
