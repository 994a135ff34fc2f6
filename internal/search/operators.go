package search

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"routeopt/internal/constraint"
	"routeopt/internal/routing"
	"routeopt/internal/score"
)

// shawWindowWeight converts minutes of window overlap into metres of
// relatedness.
const shawWindowWeight = 10.0

type run struct {
	p   *routing.Problem
	rng *rand.Rand
	// derived marks vehicles whose departure follows the head of the route.
	derived map[*routing.Vehicle]bool
}

func newRun(p *routing.Problem, rng *rand.Rand) *run {
	r := &run{p: p, rng: rng, derived: map[*routing.Vehicle]bool{}}
	for _, v := range p.Vehicles {
		if v.PreferredDepartureTime == nil {
			r.derived[v] = true
		}
	}
	return r
}

type option struct {
	vehicle *routing.Vehicle
	pos     int
	score   score.Score
}

// place inserts and propagates.
func (r *run) place(id string, v *routing.Vehicle, pos int) error {
	if pos == 0 && r.derived[v] {
		v.PreferredDepartureTime = nil
	}
	touched, err := r.p.Insert(id, v.ID, pos)
	if err != nil {
		return err
	}
	_, err = routing.PropagateAll(r.p, touched)
	return err
}

// take removes and propagates.
func (r *run) take(id string) error {
	v := r.p.VehicleOf(id)
	if v == nil {
		return fmt.Errorf("%w: %s", routing.ErrNotAssigned, id)
	}
	pos := r.p.Position(id)
	touched, err := r.p.Remove(id)
	if err != nil {
		return err
	}
	if pos == 0 && r.derived[v] {
		v.PreferredDepartureTime = nil
	}
	_, err = routing.PropagateAll(r.p, touched)
	return err
}

// trial scores the problem with id placed at pos and undoes the placement.
func (r *run) trial(id string, v *routing.Vehicle, pos int) (score.Score, error) {
	saved := v.PreferredDepartureTime
	if err := r.place(id, v, pos); err != nil {
		return score.Score{}, err
	}
	s := constraint.Evaluate(r.p)
	touched, err := r.p.Remove(id)
	if err != nil {
		return score.Score{}, err
	}
	v.PreferredDepartureTime = saved
	if _, err := routing.PropagateAll(r.p, touched); err != nil {
		return score.Score{}, err
	}
	return s, nil
}

// bestTwo returns the best and second best placements of id. ok2 is false
// when only one placement exists.
func (r *run) bestTwo(id string) (best, second option, ok2 bool, err error) {
	found := false
	for _, v := range r.p.Vehicles {
		for pos := 0; pos <= v.Len(); pos++ {
			s, err := r.trial(id, v, pos)
			if err != nil {
				return option{}, option{}, false, err
			}
			o := option{vehicle: v, pos: pos, score: s}
			switch {
			case !found:
				best, found = o, true
			case s.Better(best.score):
				second, ok2 = best, true
				best = o
			case !ok2 || s.Better(second.score):
				second, ok2 = o, true
			}
		}
	}
	return best, second, ok2, nil
}

// construct places every unassigned customer, in order, at its cheapest
// position.
func (r *run) construct(ctx context.Context) error {
	for _, id := range r.p.Unassigned() {
		if err := ctx.Err(); err != nil {
			return err
		}
		best, _, _, err := r.bestTwo(id)
		if err != nil {
			return err
		}
		if err := r.place(id, best.vehicle, best.pos); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) assigned() []string {
	var out []string
	for _, v := range r.p.Vehicles {
		for _, c := range v.Customers() {
			out = append(out, c.ID)
		}
	}
	return out
}

func (r *run) randomRemoval(k int) []string {
	all := r.assigned()
	r.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

// shawRemoval picks a random seed customer and the k-1 customers most
// related to it by distance and window overlap.
func (r *run) shawRemoval(k int) []string {
	all := r.assigned()
	if len(all) == 0 {
		return nil
	}
	seedID := all[r.rng.Intn(len(all))]
	seed, _ := r.p.Customer(seedID)

	type pair struct {
		id  string
		rel float64
	}
	rel := make([]pair, 0, len(all)-1)
	for _, id := range all {
		if id == seedID {
			continue
		}
		c, _ := r.p.Customer(id)
		rel = append(rel, pair{id: id, rel: relatedness(seed, c)})
	}
	sort.SliceStable(rel, func(i, j int) bool { return rel[i].rel < rel[j].rel })

	removed := []string{seedID}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].id)
	}
	return removed
}

// relatedness is lower for closer customers with overlapping windows.
func relatedness(a, b *routing.Customer) float64 {
	return float64(a.Visit.DistanceTo(b.Visit)) - shawWindowWeight*windowOverlap(a, b).Minutes()
}

func windowOverlap(a, b *routing.Customer) time.Duration {
	if !a.HasWindow() || !b.HasWindow() {
		return 0
	}
	start := *a.ReadyTime
	if b.ReadyTime.After(start) {
		start = *b.ReadyTime
	}
	end := *a.DueTime
	if b.DueTime.Before(end) {
		end = *b.DueTime
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

func (r *run) removeAll(ids []string) error {
	for _, id := range ids {
		if err := r.take(id); err != nil {
			return err
		}
	}
	return nil
}

// greedyInsert repeatedly places the customer whose cheapest placement is
// best overall.
func (r *run) greedyInsert(ids []string) error {
	pending := append([]string(nil), ids...)
	for len(pending) > 0 {
		pick := -1
		var chosen option
		for i, id := range pending {
			best, _, _, err := r.bestTwo(id)
			if err != nil {
				return err
			}
			if pick < 0 || best.score.Better(chosen.score) {
				pick, chosen = i, best
			}
		}
		if err := r.place(pending[pick], chosen.vehicle, chosen.pos); err != nil {
			return err
		}
		pending = append(pending[:pick], pending[pick+1:]...)
	}
	return nil
}

// regretInsert places first the customer that loses most by not getting its
// best placement. A customer with a single placement has unbounded regret.
func (r *run) regretInsert(ids []string) error {
	pending := append([]string(nil), ids...)
	for len(pending) > 0 {
		pick := -1
		var chosen option
		var chosenRegret score.Score
		chosenUnbounded := false
		for i, id := range pending {
			best, second, ok2, err := r.bestTwo(id)
			if err != nil {
				return err
			}
			unbounded := !ok2
			var regret score.Score
			if ok2 {
				regret = diff(best.score, second.score)
			}
			better := false
			switch {
			case pick < 0:
				better = true
			case unbounded != chosenUnbounded:
				better = unbounded
			case unbounded:
				better = best.score.Better(chosen.score)
			default:
				c := regret.Compare(chosenRegret)
				better = c > 0 || (c == 0 && best.score.Better(chosen.score))
			}
			if better {
				pick, chosen, chosenRegret, chosenUnbounded = i, best, regret, unbounded
			}
		}
		if err := r.place(pending[pick], chosen.vehicle, chosen.pos); err != nil {
			return err
		}
		pending = append(pending[:pick], pending[pick+1:]...)
	}
	return nil
}

func diff(a, b score.Score) score.Score {
	return score.Score{Hard: a.Hard - b.Hard, Medium: a.Medium - b.Medium, Soft: a.Soft - b.Soft}
}
