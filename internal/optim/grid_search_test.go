package optim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/san-kum/dynodom/internal/chassis"
)

func TestNewGridSearchValidates(t *testing.T) {
	tests := []struct {
		name   string
		params []string
		ranges [][]float64
	}{
		{"no params", nil, nil},
		{"length mismatch", []string{"a", "b"}, [][]float64{{1}}},
		{"empty range", []string{"a"}, [][]float64{{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGridSearch(tt.params, tt.ranges); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPoints(t *testing.T) {
	g, err := NewGridSearch([]string{"a", "b"}, [][]float64{{1, 2}, {10, 20, 30}})
	if err != nil {
		t.Fatal(err)
	}
	points := g.Points()
	if len(points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(points))
	}
	if points[0]["a"] != 1 || points[0]["b"] != 10 || points[5]["a"] != 2 || points[5]["b"] != 30 {
		t.Errorf("unexpected order: first %v, last %v", points[0], points[5])
	}
}

func TestSearchFindsMinimum(t *testing.T) {
	g, _ := NewGridSearch([]string{"x", "y"}, [][]float64{Range(-2, 2, 5), Range(-2, 2, 5)})
	bowl := func(_ context.Context, p map[string]float64) (float64, error) {
		if p["x"] == -2 {
			return 0, errors.New("diverged")
		}
		return math.Pow(p["x"]-1, 2) + math.Pow(p["y"]+1, 2), nil
	}

	res, err := g.Search(context.Background(), bowl, 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Params["x"] != 1 || res.Params["y"] != -1 || res.Cost != 0 {
		t.Errorf("expected minimum at (1, -1), got %v cost %v", res.Params, res.Cost)
	}
	if res.Evaluated != 25 || res.Failed != 5 {
		t.Errorf("evaluated %d failed %d, want 25 and 5", res.Evaluated, res.Failed)
	}
}

func TestSearchAllFailed(t *testing.T) {
	g, _ := NewGridSearch([]string{"x"}, [][]float64{{1, 2}})
	_, err := g.Search(context.Background(), func(context.Context, map[string]float64) (float64, error) {
		return math.NaN(), nil
	}, 0)
	if err == nil {
		t.Error("expected error when no point succeeds")
	}
}

func TestSearchCancelled(t *testing.T) {
	g, _ := NewGridSearch([]string{"x"}, [][]float64{{1, 2, 3}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Search(ctx, func(context.Context, map[string]float64) (float64, error) { return 1, nil }, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRouteCost(t *testing.T) {
	reports := []chassis.Report{
		{Result: chassis.Completed, Elapsed: 2 * time.Second, Error: -0.5},
		{Result: chassis.Timeout, Elapsed: time.Second, Error: 3},
	}
	if got, want := RouteCost(reports), 2+0.5+1+3+Penalty; got != want {
		t.Errorf("RouteCost = %v, want %v", got, want)
	}
}

func TestRange(t *testing.T) {
	tests := []struct {
		lo, hi float64
		n      int
		want   []float64
	}{
		{0, 1, 3, []float64{0, 0.5, 1}},
		{5, 9, 1, []float64{5}},
		{2, 2, 0, []float64{2}},
	}
	for _, tt := range tests {
		got := Range(tt.lo, tt.hi, tt.n)
		if len(got) != len(tt.want) {
			t.Fatalf("Range(%v, %v, %d) = %v", tt.lo, tt.hi, tt.n, got)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Range(%v, %v, %d) = %v, want %v", tt.lo, tt.hi, tt.n, got, tt.want)
			}
		}
	}
}
