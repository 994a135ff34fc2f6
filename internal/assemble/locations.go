package assemble

import (
	"routeopt/internal/model"
	"routeopt/internal/routing"
)

// locationSet deduplicates locations by id, keeping insertion order. A
// location seen as both depot and destination carries both roles.
type locationSet struct {
	visits    []*routing.Visit
	byID      map[string]*routing.Visit
	conflicts []string
}

func newLocationSet() *locationSet {
	return &locationSet{byID: map[string]*routing.Visit{}}
}

func (s *locationSet) add(l *model.Location, depot bool) {
	if l == nil {
		return
	}
	v, ok := s.byID[l.ID]
	if !ok {
		v = routing.NewVisit(l.ID, routing.Position{Latitude: l.Latitude, Longitude: l.Longitude})
		s.byID[l.ID] = v
		s.visits = append(s.visits, v)
	} else if v.Latitude != l.Latitude || v.Longitude != l.Longitude {
		s.conflicts = append(s.conflicts, l.ID)
	}
	if depot {
		v.Depot = true
	} else {
		v.Stop = true
	}
}

func (s *locationSet) get(l *model.Location) (*routing.Visit, bool) {
	if l == nil {
		return nil, false
	}
	v, ok := s.byID[l.ID]
	return v, ok
}
