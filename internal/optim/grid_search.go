// Package optim searches motion tuning parameters against a cost measured
// on simulated routes.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/dynodom/internal/chassis"
)

// Objective scores one parameter set, lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters for %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Points is the cartesian product of the ranges, first parameter slowest.
func (g *GridSearch) Points() []map[string]float64 {
	points := []map[string]float64{{}}
	for i, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(points)*len(g.ranges[i]))
		for _, p := range points {
			for _, v := range g.ranges[i] {
				q := make(map[string]float64, len(p)+1)
				for k, pv := range p {
					q[k] = pv
				}
				q[name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

type Result struct {
	Params    map[string]float64
	Cost      float64
	Evaluated int
	Failed    int
}

// Search evaluates every grid point, at most workers at a time. Points
// whose objective fails are counted and skipped. It is an error when no
// point succeeds.
func (g *GridSearch) Search(ctx context.Context, obj Objective, workers int) (Result, error) {
	var (
		mu  sync.Mutex
		res = Result{Cost: math.Inf(1)}
	)

	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for _, p := range g.Points() {
		eg.Go(func() error {
			cost, err := obj(ctx, p)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			res.Evaluated++
			if err != nil || math.IsNaN(cost) {
				res.Failed++
				return nil
			}
			if cost < res.Cost {
				res.Cost, res.Params = cost, p
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return res, err
	}
	if res.Params == nil {
		return res, errors.New("optim: every grid point failed")
	}
	return res, nil
}

// Penalty is the cost of a motion that did not complete.
const Penalty = 10.0

// RouteCost sums elapsed seconds and final error of each motion, adding
// Penalty for every motion that timed out or was cancelled.
func RouteCost(reports []chassis.Report) float64 {
	cost := 0.0
	for _, r := range reports {
		cost += r.Elapsed.Seconds() + math.Abs(r.Error)
		if r.Result != chassis.Completed {
			cost += Penalty
		}
	}
	return cost
}

// Range returns n evenly spaced values from lo to hi inclusive.
func Range(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	return out
}

