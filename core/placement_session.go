package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/coverage-planner/model"
)

// placementSession owns the running antenna set of one optimizer run.
// It starts from a copy of the live antennas and grows with every
// committed placement; the caller's context is never modified.
type placementSession struct {
	pc         PlanningContext
	samples    []model.Point
	minSpacing float64

	antennas []model.Antenna
	selected []model.Point
	used     map[int]bool
	scratch  []model.Antenna
	scored   int
}

func newPlacementSession(pc PlanningContext, samples []model.Point, minSpacing float64) *placementSession {
	return &placementSession{
		pc:         pc,
		samples:    samples,
		minSpacing: minSpacing,
		antennas:   append([]model.Antenna(nil), pc.Antennas...),
		used:       make(map[int]bool),
	}
}

// tooClose reports whether p violates the spacing floor against any
// position already selected in this run.
func (s *placementSession) tooClose(p model.Point) bool {
	for _, q := range s.selected {
		if p.DistanceTo(q) < s.minSpacing {
			return true
		}
	}
	return false
}

// score evaluates the running set plus a hypothetical antenna at p.
func (s *placementSession) score(p model.Point) float64 {
	s.scratch = append(s.scratch[:0], s.antennas...)
	s.scratch = append(s.scratch, s.pc.Defaults.NewAntenna(hypotheticalAntennaID, p))
	s.scored++
	return s.pc.Score(s.samples, s.scratch)
}

type pick struct {
	point  model.Point
	region int
}

// bestInUnusedRegion scans unused regions in the shuffled order and
// returns the best candidate of the first region that yields any
// admissible candidate.
func (s *placementSession) bestInUnusedRegion(regions [][]CandidatePosition, order []int) (pick, bool) {
	best := pick{region: -1}
	bestScore := math.Inf(-1)
	for _, ri := range order {
		if s.used[ri] {
			continue
		}
		for _, c := range regions[ri] {
			if s.tooClose(c.Point) {
				continue
			}
			if v := s.score(c.Point); v > bestScore {
				bestScore = v
				best = pick{point: c.Point, region: ri}
			}
		}
		if best.region >= 0 {
			return best, true
		}
	}
	return best, false
}

// bestAnyRegion scans every region in natural order, penalising regions
// that already hold an antenna.
func (s *placementSession) bestAnyRegion(regions [][]CandidatePosition) (pick, bool) {
	best := pick{region: -1}
	bestScore := math.Inf(-1)
	for ri, cands := range regions {
		for _, c := range cands {
			if s.tooClose(c.Point) {
				continue
			}
			v := s.score(c.Point)
			if s.used[ri] {
				v = penalize(v)
			}
			if v > bestScore {
				bestScore = v
				best = pick{point: c.Point, region: ri}
			}
		}
	}
	return best, best.region >= 0
}

// commit records a placement and adds it to the running antenna set.
func (s *placementSession) commit(p pick) {
	s.selected = append(s.selected, p.point)
	if p.region >= 0 {
		s.used[p.region] = true
	}
	id := fmt.Sprintf("planned-%d", len(s.selected))
	s.antennas = append(s.antennas, s.pc.Defaults.NewAntenna(id, p.point))
}
