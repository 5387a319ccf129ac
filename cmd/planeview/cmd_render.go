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
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/internal/log"
	pvconfig "github.com/teradata-labs/planeview/pkg/config"
	"github.com/teradata-labs/planeview/pkg/engine"
	"github.com/teradata-labs/planeview/pkg/engine/software"
	"github.com/teradata-labs/planeview/pkg/viewer"
)

var renderCmd = &cobra.Command{
	Use:   "render <dir | file...>",
	Short: "Mount a series and write the rendered views as PNG",
	Long: `Mount the series built from the given files on in-memory surfaces and
write one PNG per viewport to the output directory. With --layout mpr a
volume-capable series is shown in axial, sagittal and coronal planes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().String("layout", string(viewer.LayoutSingle), "viewport layout (single, mpr)")
	renderCmd.Flags().StringP("out", "o", "", "output directory (default: $PLANEVIEW_DATA_DIR/renders)")
	renderCmd.Flags().Int("width", viewer.DefaultSurfaceSize, "surface width in pixels")
	renderCmd.Flags().Int("height", viewer.DefaultSurfaceSize, "surface height in pixels")
	_ = viper.BindPFlag("viewer.surface_width", renderCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("viewer.surface_height", renderCmd.Flags().Lookup("height"))
	rootCmd.AddCommand(renderCmd)
}

type renderReport struct {
	Status  string   `yaml:"status"`
	Mode    string   `yaml:"mode"`
	Layout  string   `yaml:"layout"`
	Cause   string   `yaml:"cause,omitempty"`
	Outputs []string `yaml:"outputs"`
}

func runRender(cmd *cobra.Command, args []string) error {
	layout, _ := cmd.Flags().GetString("layout")
	outDir, _ := cmd.Flags().GetString("out")
	if outDir == "" {
		outDir = pvconfig.GetSubDir("renders")
	}
	switch viewer.Layout(layout) {
	case viewer.LayoutSingle, viewer.LayoutMPR:
	default:
		return fmt.Errorf("unknown layout %q (supported: single, mpr)", layout)
	}

	files, err := openInputs(args)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
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
	res, err := sess.Mount(cmd.Context(), viewer.MountOptions{Layout: viewer.Layout(layout)})
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}

	report := renderReport{
		Status: res.Status.String(),
		Mode:   string(res.Mode),
		Layout: string(res.Layout),
	}
	if res.Cause != nil {
		report.Cause = res.Cause.Error()
	}
	for _, view := range res.Views {
		path := filepath.Join(outDir, string(view.Orientation)+".png")
		if err := writePNG(path, view.Surface); err != nil {
			return err
		}
		report.Outputs = append(report.Outputs, path)
		log.Debug("View written", zap.String("viewport", view.ViewportID), zap.String("path", path))
	}
	return writeYAML(cmd.OutOrStdout(), report)
}

func writePNG(path string, surface engine.Surface) error {
	img, ok := surface.(*software.ImageSurface)
	if !ok {
		return fmt.Errorf("surface of %s cannot be encoded", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := img.EncodePNG(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
