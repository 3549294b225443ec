package export

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/dynodom/internal/chassis"
	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/storage"
)

func TestFrameKeepsAspect(t *testing.T) {
	f := newFrame([]pose.Pose{pose.New(0, 0, 0), pose.New(10, 20, 0)}, 400, 400)

	x0, y0 := f.point(0, 0)
	x1, y1 := f.point(10, 20)
	if y1 >= y0 {
		t.Errorf("expected +Y up, got y %.1f -> %.1f", y0, y1)
	}
	if dx, dy := x1-x0, y0-y1; math.Abs(dy-2*dx) > 1e-9 {
		t.Errorf("expected equal scale, got dx %.2f dy %.2f", dx, dy)
	}
	if x1 > 400 || y0 > 400 {
		t.Errorf("point outside canvas: (%.1f, %.1f) (%.1f, %.1f)", x0, y0, x1, y1)
	}
}

func TestTrajectorySVG(t *testing.T) {
	meta := &storage.RunMetadata{ID: "abc", Kind: "pose", Result: "completed", Target: storage.Pose{X: 0, Y: 10}}
	samples := []storage.Sample{
		{Step: chassis.Step{Pose: pose.New(0, 0, 0)}, Truth: pose.New(0, 0, 0)},
		{Step: chassis.Step{Pose: pose.New(0, 5, 0)}, Truth: pose.New(0.1, 5, 0)},
		{Step: chassis.Step{Pose: pose.New(0, 10, 0)}, Truth: pose.New(0.2, 10, 0)},
	}

	var buf bytes.Buffer
	if err := TrajectorySVG(&buf, meta, samples, 300, 200); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "<?xml") || !strings.HasSuffix(out, "</svg>\n") {
		t.Errorf("not an svg document:\n%s", out)
	}
	if n := strings.Count(out, "<path"); n != 2 {
		t.Errorf("expected 2 paths, got %d", n)
	}
	if n := strings.Count(out, "<line"); n != 3 {
		t.Errorf("expected 3 heading arrows, got %d", n)
	}
	for _, want := range []string{EstimateColor, TruthColor, TargetColor, "completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("svg missing %q", want)
		}
	}
}

func TestTrajectorySVGNeedsSamples(t *testing.T) {
	var buf bytes.Buffer
	err := TrajectorySVG(&buf, &storage.RunMetadata{}, []storage.Sample{{}}, 100, 100)
	if err == nil {
		t.Error("expected error for a single sample")
	}
}
