package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareIsLexicographic(t *testing.T) {
	tests := []struct {
		name string
		a, b Score
		want int
	}{
		{"equal", Score{-1, -2, -3}, Score{-1, -2, -3}, 0},
		{"hard dominates medium and soft", Score{Hard: 0, Medium: -1000, Soft: -1000}, Score{Hard: -1}, 1},
		{"medium breaks hard tie", Score{Medium: -1}, Score{Medium: -2, Soft: 100}, 1},
		{"soft breaks medium tie", Score{Soft: -5}, Score{Soft: -4}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
		})
	}
}

func TestPenaltyAndFeasibility(t *testing.T) {
	s := Penalty(Hard, 3).Add(Penalty(Medium, 2)).Add(Penalty(Soft, 1))
	assert.Equal(t, Score{Hard: -3, Medium: -2, Soft: -1}, s)
	assert.False(t, s.Feasible())
	assert.True(t, Score{Soft: -10}.Feasible())
	assert.Equal(t, "-3hard/-2medium/-1soft", s.String())
	assert.Equal(t, int64(-2), s.Of(Medium))
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	require.Len(t, w, 12)
	for _, c := range All {
		assert.Equal(t, int64(1), w[c].Value, c)
	}
	assert.Equal(t, Soft, w[TravelTime].Level)
	assert.Equal(t, Soft, w[TravelDistance].Level)
	assert.Equal(t, Medium, w[EarlyArrival].Level)
	assert.Equal(t, Medium, w[LateDeparture].Level)
	assert.Equal(t, Medium, w[VirtualVehicle].Level)
	assert.Equal(t, Hard, w[LateArrival].Level)
	assert.Equal(t, Hard, w[Requirements].Level)

	assert.False(t, Weights{}.Get(MaximumOrders).Active())
	assert.Equal(t, Hard, Weights{}.Get(MaximumOrders).Level)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel(" soft ")
	require.NoError(t, err)
	assert.Equal(t, Soft, l)
	_, err = ParseLevel("critical")
	assert.Error(t, err)
}
