// Package storage persists motion runs as a metadata.json file and a
// trajectory.csv file under one directory per run.
package storage

import (
	"cmp"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/san-kum/dynodom/internal/chassis"
	"github.com/san-kum/dynodom/internal/pose"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
)

var ErrNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	Target     Pose               `json:"target"`
	Result     string             `json:"result"`
	Timestamp  time.Time          `json:"timestamp"`
	Elapsed    float64            `json:"elapsed"`
	Steps      int                `json:"steps"`
	Final      Pose               `json:"final"`
	Truth      *Pose              `json:"truth,omitempty"`
	Error      float64            `json:"error"`
	Traveled   float64            `json:"traveled"`
	Seed       int64              `json:"seed"`
	Label      string             `json:"label,omitempty"`
	Integrator string             `json:"integrator,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Pose is the stored form of a pose, theta in radians.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

func fromPose(p pose.Pose) Pose { return Pose{X: p.X, Y: p.Y, Theta: p.Theta} }
func (p Pose) Pose() pose.Pose  { return pose.New(p.X, p.Y, p.Theta) }

// Run is everything saved for one motion.
type Run struct {
	Report     chassis.Report
	Samples    []Sample
	Truth      *pose.Pose
	Seed       int64
	Label      string
	Integrator string
	Metrics    map[string]float64
}

func (s *Store) Save(run Run) (string, error) {
	rep := run.Report
	runID := rep.ID.String()
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Kind:       rep.Kind.String(),
		Target:     fromPose(rep.Target),
		Result:     rep.Result.String(),
		Timestamp:  time.Now(),
		Elapsed:    rep.Elapsed.Seconds(),
		Steps:      rep.Steps,
		Final:      fromPose(rep.Final),
		Error:      rep.Error,
		Traveled:   rep.Traveled,
		Seed:       run.Seed,
		Label:      run.Label,
		Integrator: run.Integrator,
		Metrics:    run.Metrics,
	}
	if run.Truth != nil {
		t := fromPose(*run.Truth)
		meta.Truth = &t
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeTrajectory(filepath.Join(runDir, trajectoryFile), run.Samples); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var trajectoryHeader = []string{
	"time", "x", "y", "theta", "lateral", "angular", "left", "right", "error",
	"true_x", "true_y", "true_theta",
}

func writeTrajectory(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(trajectoryHeader); err != nil {
		return err
	}
	for _, s := range samples {
		vals := []float64{
			s.Elapsed.Seconds(), s.Pose.X, s.Pose.Y, s.Pose.Theta,
			s.Lateral, s.Angular, s.Left, s.Right, s.Error,
			s.Truth.X, s.Truth.Y, s.Truth.Theta,
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = strconv.FormatFloat(v, 'f', 6, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.ID, b.ID))
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadTrajectory reads the samples of a run. Rows that fail to parse are
// skipped.
func (s *Store) LoadTrajectory(runID string) ([]Sample, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Sample{}, nil
	}

	samples := make([]Sample, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < len(trajectoryHeader) {
			continue
		}
		vals := make([]float64, len(record))
		ok := true
		for i, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		samples = append(samples, Sample{
			Step: chassis.Step{
				Elapsed: time.Duration(vals[0] * float64(time.Second)),
				Pose:    pose.New(vals[1], vals[2], vals[3]),
				Lateral: vals[4],
				Angular: vals[5],
				Left:    vals[6],
				Right:   vals[7],
				Error:   vals[8],
			},
			Truth: pose.New(vals[9], vals[10], vals[11]),
		})
	}
	return samples, nil
}

type exportData struct {
	RunMetadata
	Trajectory []exportSample `json:"trajectory"`
}

type exportSample struct {
	Time    float64 `json:"time"`
	Pose    Pose    `json:"pose"`
	Truth   Pose    `json:"truth"`
	Lateral float64 `json:"lateral"`
	Angular float64 `json:"angular"`
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
	Error   float64 `json:"error"`
}

// Export writes a run and its trajectory to w as one JSON document.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	samples, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	data := exportData{RunMetadata: *meta, Trajectory: make([]exportSample, len(samples))}
	for i, smp := range samples {
		data.Trajectory[i] = exportSample{
			Time:    smp.Elapsed.Seconds(),
			Pose:    fromPose(smp.Pose),
			Truth:   fromPose(smp.Truth),
			Lateral: smp.Lateral,
			Angular: smp.Angular,
			Left:    smp.Left,
			Right:   smp.Right,
			Error:   smp.Error,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
