package dataset

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"mvprep/internal/models"
	"mvprep/pkg/posemath"
)

// DumpOptions controls Dump.
type DumpOptions struct {
	// CopyImagesTo, when set, receives a copy of every frame image
	CopyImagesTo string

	// CopyMasksTo, when set, receives a copy of every final frame mask
	CopyMasksTo string

	// Workers bounds concurrent file copies; 0 means unbounded
	Workers int
}

type record struct {
	Source string        `json:"source"`
	Up     [3]float64    `json:"up"`
	Frames []frameRecord `json:"frames"`
}

type frameRecord struct {
	FilePath    string        `json:"file_path"`
	OrgPath     string        `json:"org_path"`
	MaskPath    string        `json:"mask_path,omitempty"`
	SegMaskPath string        `json:"seg_mask_path,omitempty"`
	C2W         [4][4]float64 `json:"c2w"`
	W           int           `json:"w"`
	H           int           `json:"h"`
	Fx          float64       `json:"fx"`
	Fy          float64       `json:"fy"`
	Cx          float64       `json:"cx"`
	Cy          float64       `json:"cy"`
	Model       string        `json:"camera_param_model"`
	Distortion  []float64     `json:"distortion,omitempty"`
}

// Dump writes the dataset as JSON at jsonPath, with file paths relative to the
// JSON's directory, and a sidecar jsonPath+".txt" holding the JSON's basename.
// It returns the dataset with paths rewritten to any copy destinations.
func (d *Dataset) Dump(jsonPath string, opts DumpOptions) (*Dataset, error) {
	out := d.Clone()
	if opts.CopyImagesTo != "" {
		if err := copyFrameFiles(out.Frames, opts.CopyImagesTo, opts.Workers, func(f *models.Frame) *string { return &f.ImagePath }); err != nil {
			return nil, errors.Wrap(err, "failed to copy images")
		}
	}
	if opts.CopyMasksTo != "" {
		if err := copyFrameFiles(out.Frames, opts.CopyMasksTo, opts.Workers, func(f *models.Frame) *string { return &f.MaskPath }); err != nil {
			return nil, errors.Wrap(err, "failed to copy masks")
		}
	}

	base := filepath.Dir(jsonPath)
	up := out.Up()
	rec := record{Source: out.Source, Up: [3]float64{up.X, up.Y, up.Z}, Frames: []frameRecord{}}
	for _, f := range out.Frames {
		fr := frameRecord{
			C2W:        f.Pose,
			W:          f.Camera.Width,
			H:          f.Camera.Height,
			Fx:         f.Camera.Fx,
			Fy:         f.Camera.Fy,
			Cx:         f.Camera.Cx,
			Cy:         f.Camera.Cy,
			Model:      string(f.Camera.Model),
			Distortion: f.Camera.Distortion,
		}
		var err error
		if fr.FilePath, err = relPath(base, f.ImagePath); err != nil {
			return nil, err
		}
		if fr.OrgPath, err = relPath(base, f.OrgPath); err != nil {
			return nil, err
		}
		if fr.MaskPath, err = relPath(base, f.MaskPath); err != nil {
			return nil, err
		}
		if fr.SegMaskPath, err = relPath(base, f.SegmentationMaskPath); err != nil {
			return nil, err
		}
		rec.Frames = append(rec.Frames, fr)
	}

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal dataset")
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return nil, errors.Wrap(err, "failed to write dataset")
	}
	if err := os.WriteFile(jsonPath+".txt", []byte(filepath.Base(jsonPath)), 0644); err != nil {
		return nil, errors.Wrap(err, "failed to write sidecar")
	}
	return out, nil
}

// Load reads a dataset written by Dump, resolving paths against the JSON's directory.
func Load(jsonPath string) (*Dataset, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read dataset")
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", jsonPath)
	}

	base := filepath.Dir(jsonPath)
	frames := make([]models.Frame, len(rec.Frames))
	for i, fr := range rec.Frames {
		frames[i] = models.Frame{
			ImagePath:            absPath(base, fr.FilePath),
			OrgPath:              absPath(base, fr.OrgPath),
			MaskPath:             absPath(base, fr.MaskPath),
			SegmentationMaskPath: absPath(base, fr.SegMaskPath),
			Pose:                 posemath.Pose(fr.C2W),
			Camera: models.Camera{
				Width:      fr.W,
				Height:     fr.H,
				Fx:         fr.Fx,
				Fy:         fr.Fy,
				Cx:         fr.Cx,
				Cy:         fr.Cy,
				Model:      models.CameraModel(fr.Model),
				Distortion: fr.Distortion,
			},
		}
	}
	return New(rec.Source, frames), nil
}

func relPath(base, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", path)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", base)
	}
	rel, err := filepath.Rel(absBase, abs)
	if err != nil {
		return "", errors.Wrapf(err, "failed to relativize %s", path)
	}
	return rel, nil
}

func absPath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// copyFrameFiles copies the file selected by field for every frame into dir and
// points the field at the copy. Frames with an empty field are skipped.
func copyFrameFiles(frames []models.Frame, dir string, workers int, field func(*models.Frame) *string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range frames {
		p := field(&frames[i])
		if *p == "" {
			continue
		}
		src, dst := *p, filepath.Join(dir, filepath.Base(*p))
		*p = dst
		g.Go(func() error {
			return copyFile(src, dst)
		})
	}
	return g.Wait()
}

func copyFile(src, dst string) (err error) {
	if src == dst {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()
	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "copy %s", src)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
