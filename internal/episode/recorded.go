package episode

import (
	"encoding/csv"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "image/jpeg"

	"github.com/san-kum/actsched/internal/action"
)

// Camera directories inside a recorded episode.
var cameraDirs = [3]string{"ego", "left", "right"}

const (
	proprioFile = "proprio.csv"
	actionsFile = "actions.csv"
)

// Recorded reads an episode directory:
//
//	ego/000000.png  left/000000.png  right/000000.png  ...
//	proprio.csv     one row per frame
//	actions.csv     optional reference actions, one row per frame
//
// Images are decoded on demand.
type Recorded struct {
	dir     string
	images  [3][]string
	proprio []action.Vector
	actions []action.Vector
	length  int
}

func OpenRecorded(dir string) (*Recorded, error) {
	r := &Recorded{dir: dir}
	for c, name := range cameraDirs {
		files, err := listImages(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		r.images[c] = files
	}

	var err error
	if r.proprio, err = readRows(filepath.Join(dir, proprioFile)); err != nil {
		return nil, err
	}
	r.actions, err = readRows(filepath.Join(dir, actionsFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	r.length = len(r.proprio)
	for _, files := range r.images {
		r.length = min(r.length, len(files))
	}
	if r.length == 0 {
		return nil, fmt.Errorf("episode %s: no complete frames", dir)
	}
	return r, nil
}

func (r *Recorded) Len() int { return r.length }

func (r *Recorded) Frame(i int) (action.Frame, error) {
	if i < 0 || i >= r.length {
		return action.Frame{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, r.length)
	}
	var imgs [3]image.Image
	for c := range imgs {
		img, err := decodeImage(r.images[c][i])
		if err != nil {
			return action.Frame{}, err
		}
		imgs[c] = img
	}
	return action.Frame{
		Ego:        imgs[0],
		LeftWrist:  imgs[1],
		RightWrist: imgs[2],
		Proprio:    r.proprio[i].Clone(),
	}, nil
}

func (r *Recorded) Reference(i int) (action.Vector, bool) {
	if i < 0 || i >= len(r.actions) {
		return nil, false
	}
	return r.actions[i].Clone(), true
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// readRows parses a CSV of floats, skipping rows that do not parse (such
// as a header).
func readRows(path string) ([]action.Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	records, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	rows := make([]action.Vector, 0, len(records))
	for _, rec := range records {
		row := make(action.Vector, 0, len(rec))
		ok := true
		for _, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				ok = false
				break
			}
			row = append(row, v)
		}
		if ok && len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Record writes the first n frames of src as a recorded episode in dir.
func Record(dir string, src Source, n int) error {
	n = min(n, src.Len())
	for _, name := range cameraDirs {
		if err := os.MkdirAll(filepath.Join(dir, name), 0755); err != nil {
			return err
		}
	}

	proprio := make([][]string, 0, n)
	actions := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		f, err := src.Frame(i)
		if err != nil {
			return err
		}
		for c, img := range []image.Image{f.Ego, f.LeftWrist, f.RightWrist} {
			path := filepath.Join(dir, cameraDirs[c], fmt.Sprintf("%06d.png", i))
			if err := writePNG(path, img); err != nil {
				return err
			}
		}
		proprio = append(proprio, formatRow(f.Proprio))
		if ref, ok := src.Reference(i); ok {
			actions = append(actions, formatRow(ref))
		}
	}

	if err := writeCSV(filepath.Join(dir, proprioFile), proprio); err != nil {
		return err
	}
	if len(actions) > 0 {
		return writeCSV(filepath.Join(dir, actionsFile), actions)
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatRow(v action.Vector) []string {
	row := make([]string, len(v))
	for i, x := range v {
		row[i] = strconv.FormatFloat(x, 'f', -1, 64)
	}
	return row
}
