package core

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signalsfoundry/coverage-planner/model"
)

type recordedPlacement struct {
	strategy       string
	placed, scored int
}

type fakeRecorder struct {
	calls []recordedPlacement
}

func (r *fakeRecorder) ObservePlacement(strategy string, placed, scored int, _ time.Duration) {
	r.calls = append(r.calls, recordedPlacement{strategy, placed, scored})
}

func seeded(seed int64) OptimizerOption {
	return WithRand(rand.New(rand.NewSource(seed)))
}

func assertSpacing(t *testing.T, pts []model.Point, minSpacing float64) {
	t.Helper()
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			if d := pts[i].DistanceTo(pts[j]); d < minSpacing {
				t.Fatalf("positions %d and %d are %.3f apart, want >= %.3f", i, j, d, minSpacing)
			}
		}
	}
}

func TestMinSeparation(t *testing.T) {
	f := model.Floor{Width: 20, Height: 10}
	want := math.Sqrt(500) / 4 * 0.7
	if got := MinSeparation(f, 3); math.Abs(got-want) > 1e-9 {
		t.Fatalf("MinSeparation(20x10, 3) = %v, want %v", got, want)
	}
	if got := MinSeparation(model.Floor{Width: 6, Height: 6}, 9); got != minAntennaSeparation {
		t.Fatalf("MinSeparation floor = %v, want %v", got, minAntennaSeparation)
	}
}

func TestOptimizeEmptyFloorPlacesThree(t *testing.T) {
	pc := emptyFloor(20, 10)
	opt := NewPlacementOptimizer(pc, seeded(1))

	res := opt.Plan(context.Background(), 3)
	if len(res.Positions) != 3 {
		t.Fatalf("placed %d antennas, want 3", len(res.Positions))
	}
	if res.Strategy != StrategyRegional {
		t.Fatalf("strategy = %s, want %s", res.Strategy, StrategyRegional)
	}
	if res.Partial() {
		t.Fatalf("result unexpectedly partial")
	}
	assertSpacing(t, res.Positions, res.MinSpacing)
	for _, p := range res.Positions {
		if !pc.IsFree(p, candidateMinObstacle, 0) {
			t.Fatalf("position %+v is not in the free region", p)
		}
	}
	if res.Scored == 0 {
		t.Fatalf("no candidates were scored")
	}
}

func TestOptimizeSpacingWithWalls(t *testing.T) {
	pc := emptyFloor(30, 20)
	pc.Walls = []model.Wall{
		{P1: &model.Point{X: 15, Y: 0}, P2: &model.Point{X: 15, Y: 14}},
		{Points: []model.Point{{X: 0, Y: 10}, {X: 8, Y: 10}}},
	}
	for _, n := range []int{1, 2, 5, 8} {
		res := NewPlacementOptimizer(pc, seeded(int64(n))).Plan(context.Background(), n)
		if len(res.Positions) > n {
			t.Fatalf("n=%d: placed %d", n, len(res.Positions))
		}
		assertSpacing(t, res.Positions, res.MinSpacing)
	}
}

func TestOptimizeDeterministicWithSeed(t *testing.T) {
	pc := emptyFloor(24, 16)
	a := NewPlacementOptimizer(pc, seeded(42)).Optimize(context.Background(), 4)
	b := NewPlacementOptimizer(pc, seeded(42)).Optimize(context.Background(), 4)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different placements (-a +b):\n%s", diff)
	}
}

func TestOptimizeLeavesContextUntouched(t *testing.T) {
	live := []model.Antenna{{ID: "existing", X: 4, Y: 4, TxDBm: 15, Enabled: true}}
	pc := NewPlanningContext(model.Floor{Width: 20, Height: 10}, nil, live, distanceModel)
	NewPlacementOptimizer(pc, seeded(3)).Optimize(context.Background(), 2)
	if diff := cmp.Diff(live, pc.Antennas); diff != "" {
		t.Fatalf("live antennas changed:\n%s", diff)
	}
}

func TestOptimizeFallsBackWhenRegionsAreTooSmall(t *testing.T) {
	// Nine 2x2 regions leave no room once the 1 m inset is applied.
	pc := emptyFloor(6, 6)
	rec := &fakeRecorder{}
	res := NewPlacementOptimizer(pc, seeded(7), WithPlacementRecorder(rec)).Plan(context.Background(), 9)

	if res.Strategy != StrategyFallback {
		t.Fatalf("strategy = %s, want %s", res.Strategy, StrategyFallback)
	}
	// The pool is {1,3}x{1,3}; every pair is closer than the 3 m floor.
	if len(res.Positions) != 1 {
		t.Fatalf("placed %d, want 1", len(res.Positions))
	}
	if !res.Partial() {
		t.Fatalf("expected a partial result")
	}
	if len(rec.calls) != 1 || rec.calls[0].strategy != string(StrategyFallback) || rec.calls[0].placed != 1 {
		t.Fatalf("recorder calls = %+v", rec.calls)
	}
}

func TestOptimizeNothingToDo(t *testing.T) {
	walled := emptyFloor(4, 4)
	walled.Walls = []model.Wall{{Points: []model.Point{{X: 0, Y: 2}, {X: 4, Y: 2}}, Thickness: 2.5}}

	cases := []struct {
		name  string
		pc    PlanningContext
		count int
	}{
		{"zero count", emptyFloor(20, 10), 0},
		{"negative count", emptyFloor(20, 10), -2},
		{"invalid floor", emptyFloor(0, 10), 3},
		{"no free samples", walled, 2},
	}
	for _, tc := range cases {
		rec := &fakeRecorder{}
		res := NewPlacementOptimizer(tc.pc, seeded(1), WithPlacementRecorder(rec)).Plan(context.Background(), tc.count)
		if len(res.Positions) != 0 || res.Strategy != StrategyNone {
			t.Errorf("%s: got %+v", tc.name, res)
		}
		if len(rec.calls) != 1 {
			t.Errorf("%s: recorder called %d times, want 1", tc.name, len(rec.calls))
		}
	}
}

func TestOptimizeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := NewPlacementOptimizer(emptyFloor(20, 10), seeded(1)).Optimize(ctx, 3); len(got) != 0 {
		t.Fatalf("cancelled run placed %v", got)
	}
}

func TestMaxCandidatesThinsRegions(t *testing.T) {
	pc := emptyFloor(40, 40)
	o := NewPlacementOptimizer(pc, seeded(1), WithGridSpacing(1), WithMaxCandidates(50))
	total := 0
	for _, r := range o.regionCandidates(4) {
		total += len(r)
	}
	if total == 0 || total > 60 {
		t.Fatalf("thinned candidate total = %d", total)
	}
}

func TestPenalizeIsSignAware(t *testing.T) {
	if got := penalize(100); got != 80 {
		t.Fatalf("penalize(100) = %v, want 80", got)
	}
	if got := penalize(-100); got != -120 {
		t.Fatalf("penalize(-100) = %v, want -120", got)
	}
}

func TestShuffledOrderIsPermutation(t *testing.T) {
	o := NewPlacementOptimizer(emptyFloor(10, 10), seeded(5))
	order := o.shuffledOrder(12)
	seen := make(map[int]bool)
	for _, v := range order {
		if v < 0 || v >= 12 || seen[v] {
			t.Fatalf("not a permutation: %v", order)
		}
		seen[v] = true
	}
}
