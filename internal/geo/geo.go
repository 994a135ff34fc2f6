// Package geo computes travel distance and duration between locations,
// either as a great-circle estimate or through a routing service.
package geo

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind selects a provider.
type Kind string

const (
	AirDistance  Kind = "AIR_DISTANCE"
	RoadDistance Kind = "ROAD_DISTANCE"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case AirDistance, RoadDistance:
		return k, nil
	}
	return "", fmt.Errorf("unknown distance matrix type %q", s)
}

// Point is an identified coordinate.
type Point struct {
	ID        string
	Latitude  float64
	Longitude float64
}

func (p Point) sameAs(o Point) bool {
	return p.ID == o.ID && p.Latitude == o.Latitude && p.Longitude == o.Longitude
}

// Leg is one travel result. Distance is in kilometres.
type Leg struct {
	Distance float64
	Duration time.Duration
}

// Matrix holds legs keyed by origin id then destination id.
type Matrix map[string]map[string]Leg

func (m Matrix) Set(from, to string, l Leg) {
	row, ok := m[from]
	if !ok {
		row = map[string]Leg{}
		m[from] = row
	}
	row[to] = l
}

func (m Matrix) Get(from, to string) (Leg, bool) {
	l, ok := m[from][to]
	return l, ok
}

// Provider computes legs between points.
type Provider interface {
	Kind() Kind
	Between(ctx context.Context, from, to Point) (Leg, error)
	Matrix(ctx context.Context, from, to []Point) (Matrix, error)
}
