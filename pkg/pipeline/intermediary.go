package pipeline

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"mvprep/internal/models"
	"mvprep/pkg/mask"
	"mvprep/pkg/stl"
	"mvprep/pkg/visualization"
)

// saveIntermediaryResult saves an intermediary result during the masking process.
// Images and masks are saved as <stage>/NNN.png; a volume is saved as its Z
// slices plus a hull.stl mesh.
func (r *run) saveIntermediaryResult(stage string, data interface{}, index int) error {
	if !r.params.SaveIntermediaryResults {
		return nil
	}

	stageDir := filepath.Join(r.params.IntermediaryDir, stage)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create intermediary directory")
	}

	switch v := data.(type) {
	case *mask.Mask:
		return v.Save(filepath.Join(stageDir, fmt.Sprintf("%03d.png", index)))

	case image.Image:
		return imaging.Save(v, filepath.Join(stageDir, fmt.Sprintf("%03d.png", index)))

	case *models.Volume:
		viewer := visualization.NewViewer(v)
		if err := viewer.SaveSliceSequence(visualization.AxisZ, stageDir); err != nil {
			return err
		}
		triangles := stl.NewHullMesher(v, 0.5).GenerateTriangles()
		return stl.SaveToSTL(filepath.Join(stageDir, "hull.stl"), triangles)

	default:
		return errors.Errorf("unsupported intermediary result %T", data)
	}
}
