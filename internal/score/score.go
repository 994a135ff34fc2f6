// Package score holds the three-level penalty score and constraint weights.
package score

import (
	"fmt"
	"strings"
)

type Level int

const (
	Hard Level = iota
	Medium
	Soft
)

func (l Level) String() string {
	switch l {
	case Hard:
		return "Hard"
	case Medium:
		return "Medium"
	case Soft:
		return "Soft"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel accepts Hard, Medium or Soft in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hard":
		return Hard, nil
	case "medium":
		return Medium, nil
	case "soft":
		return Soft, nil
	}
	return 0, fmt.Errorf("unknown constraint level %q", s)
}

// Score accumulates penalties as negative numbers; zero is perfect and a
// negative hard part means the solution is infeasible.
type Score struct {
	Hard   int64
	Medium int64
	Soft   int64
}

func (s Score) Add(o Score) Score {
	return Score{Hard: s.Hard + o.Hard, Medium: s.Medium + o.Medium, Soft: s.Soft + o.Soft}
}

// Penalty returns the score contribution of magnitude m at level l.
func Penalty(l Level, m int64) Score {
	switch l {
	case Hard:
		return Score{Hard: -m}
	case Medium:
		return Score{Medium: -m}
	default:
		return Score{Soft: -m}
	}
}

// Of returns the component of s at level l.
func (s Score) Of(l Level) int64 {
	switch l {
	case Hard:
		return s.Hard
	case Medium:
		return s.Medium
	default:
		return s.Soft
	}
}

// Compare orders scores lexicographically: -1 when s is worse than o, 1 when
// better, 0 when equal.
func (s Score) Compare(o Score) int {
	for _, p := range [][2]int64{{s.Hard, o.Hard}, {s.Medium, o.Medium}, {s.Soft, o.Soft}} {
		switch {
		case p[0] < p[1]:
			return -1
		case p[0] > p[1]:
			return 1
		}
	}
	return 0
}

func (s Score) Better(o Score) bool { return s.Compare(o) > 0 }

func (s Score) Feasible() bool { return s.Hard >= 0 }

func (s Score) String() string {
	return fmt.Sprintf("%dhard/%dmedium/%dsoft", s.Hard, s.Medium, s.Soft)
}
