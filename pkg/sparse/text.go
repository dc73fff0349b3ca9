package sparse

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"mvprep/internal/models"
)

// Names of the COLMAP text model files.
const (
	CamerasFile  = "cameras.txt"
	ImagesFile   = "images.txt"
	Points3DFile = "points3D.txt"
)

// ReadText loads a COLMAP text model from dir.
func ReadText(dir string) (*Reconstruction, error) {
	r := New()
	if err := readLines(filepath.Join(dir, CamerasFile), r.parseCameras); err != nil {
		return nil, err
	}
	if err := readLines(filepath.Join(dir, ImagesFile), r.parseImages); err != nil {
		return nil, err
	}
	if err := readLines(filepath.Join(dir, Points3DFile), r.parsePoints); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteText saves the model to dir in COLMAP text format.
func (r *Reconstruction) WriteText(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create sparse directory")
	}
	if err := writeFile(filepath.Join(dir, CamerasFile), r.writeCameras); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, ImagesFile), r.writeImages); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, Points3DFile), r.writePoints)
}

// readLines feeds every non-comment line to parse. Blank lines are kept because
// images.txt uses them for images without keypoints.
func readLines(path string, parse func(lines []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<26)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	if err := parse(lines); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	return nil
}

func (r *Reconstruction) parseCameras(lines []string) error {
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 4 {
			return errors.Errorf("camera line %q: expected at least 4 fields", line)
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return errors.Wrap(err, "camera id")
		}
		w, err := strconv.Atoi(fields[2])
		if err != nil {
			return errors.Wrap(err, "camera width")
		}
		h, err := strconv.Atoi(fields[3])
		if err != nil {
			return errors.Wrap(err, "camera height")
		}
		params, err := parseFloats(fields[4:])
		if err != nil {
			return errors.Wrapf(err, "camera %d params", id)
		}
		r.Cameras[id] = &Camera{ID: id, Model: models.CameraModel(fields[1]), Width: w, Height: h, Params: params}
	}
	return nil
}

func (r *Reconstruction) parseImages(lines []string) error {
	for i := 0; i < len(lines); i++ {
		fields := strings.Fields(lines[i])
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 10 {
			return errors.Errorf("image line %q: expected 10 fields", lines[i])
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return errors.Wrap(err, "image id")
		}
		vals, err := parseFloats(fields[1:8])
		if err != nil {
			return errors.Wrapf(err, "image %d pose", id)
		}
		camID, err := strconv.Atoi(fields[8])
		if err != nil {
			return errors.Wrapf(err, "image %d camera id", id)
		}
		im := &Image{
			ID:       id,
			QVec:     [4]float64{vals[0], vals[1], vals[2], vals[3]},
			TVec:     r3.Vector{X: vals[4], Y: vals[5], Z: vals[6]},
			CameraID: camID,
			Name:     strings.Join(fields[9:], " "),
		}
		// The keypoint line always follows the header, even when empty.
		if i+1 < len(lines) {
			i++
			pts := strings.Fields(lines[i])
			if len(pts)%3 != 0 {
				return errors.Errorf("image %d: keypoint line has %d fields", id, len(pts))
			}
			for j := 0; j < len(pts); j += 3 {
				xy, err := parseFloats(pts[j : j+2])
				if err != nil {
					return errors.Wrapf(err, "image %d keypoint", id)
				}
				pid, err := strconv.ParseInt(pts[j+2], 10, 64)
				if err != nil {
					return errors.Wrapf(err, "image %d keypoint point id", id)
				}
				im.Points2D = append(im.Points2D, Point2D{X: xy[0], Y: xy[1], Point3DID: pid})
			}
		}
		r.Images[id] = im
	}
	return nil
}

func (r *Reconstruction) parsePoints(lines []string) error {
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 8 || (len(fields)-8)%2 != 0 {
			return errors.Errorf("point line %q: malformed", line)
		}
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return errors.Wrap(err, "point id")
		}
		xyz, err := parseFloats(fields[1:4])
		if err != nil {
			return errors.Wrapf(err, "point %d xyz", id)
		}
		p := &Point3D{ID: id, XYZ: r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}}
		for c := 0; c < 3; c++ {
			v, err := strconv.ParseUint(fields[4+c], 10, 8)
			if err != nil {
				return errors.Wrapf(err, "point %d color", id)
			}
			p.RGB[c] = uint8(v)
		}
		if p.Error, err = strconv.ParseFloat(fields[7], 64); err != nil {
			return errors.Wrapf(err, "point %d error", id)
		}
		for j := 8; j < len(fields); j += 2 {
			imgID, err1 := strconv.Atoi(fields[j])
			idx, err2 := strconv.Atoi(fields[j+1])
			if err := multierr.Combine(err1, err2); err != nil {
				return errors.Wrapf(err, "point %d track", id)
			}
			p.Track = append(p.Track, TrackElement{ImageID: imgID, Point2DIdx: idx})
		}
		r.Points[id] = p
	}
	return nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func writeFile(path string, write func(w io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return bw.Flush()
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (r *Reconstruction) writeCameras(w io.Writer) error {
	ids := make([]int, 0, len(r.Cameras))
	for id := range r.Cameras {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fmt.Fprintln(w, "# Camera list with one line of data per camera:")
	fmt.Fprintln(w, "#   CAMERA_ID, MODEL, WIDTH, HEIGHT, PARAMS[]")
	for _, id := range ids {
		c := r.Cameras[id]
		parts := []string{strconv.Itoa(c.ID), string(c.Model), strconv.Itoa(c.Width), strconv.Itoa(c.Height)}
		for _, p := range c.Params {
			parts = append(parts, fmtFloat(p))
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconstruction) writeImages(w io.Writer) error {
	ids := make([]int, 0, len(r.Images))
	for id := range r.Images {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fmt.Fprintln(w, "# Image list with two lines of data per image:")
	fmt.Fprintln(w, "#   IMAGE_ID, QW, QX, QY, QZ, TX, TY, TZ, CAMERA_ID, NAME")
	fmt.Fprintln(w, "#   POINTS2D[] as (X, Y, POINT3D_ID)")
	for _, id := range ids {
		im := r.Images[id]
		head := []string{strconv.Itoa(im.ID)}
		for _, q := range im.QVec {
			head = append(head, fmtFloat(q))
		}
		head = append(head, fmtFloat(im.TVec.X), fmtFloat(im.TVec.Y), fmtFloat(im.TVec.Z), strconv.Itoa(im.CameraID), im.Name)
		pts := make([]string, 0, 3*len(im.Points2D))
		for _, p := range im.Points2D {
			pts = append(pts, fmtFloat(p.X), fmtFloat(p.Y), strconv.FormatInt(p.Point3DID, 10))
		}
		if _, err := fmt.Fprintf(w, "%s\n%s\n", strings.Join(head, " "), strings.Join(pts, " ")); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconstruction) writePoints(w io.Writer) error {
	ids := make([]int64, 0, len(r.Points))
	for id := range r.Points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fmt.Fprintln(w, "# 3D point list with one line of data per point:")
	fmt.Fprintln(w, "#   POINT3D_ID, X, Y, Z, R, G, B, ERROR, TRACK[] as (IMAGE_ID, POINT2D_IDX)")
	for _, id := range ids {
		p := r.Points[id]
		parts := []string{
			strconv.FormatInt(p.ID, 10),
			fmtFloat(p.XYZ.X), fmtFloat(p.XYZ.Y), fmtFloat(p.XYZ.Z),
			strconv.Itoa(int(p.RGB[0])), strconv.Itoa(int(p.RGB[1])), strconv.Itoa(int(p.RGB[2])),
			fmtFloat(p.Error),
		}
		for _, t := range p.Track {
			parts = append(parts, strconv.Itoa(t.ImageID), strconv.Itoa(t.Point2DIdx))
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return err
		}
	}
	return nil
}
