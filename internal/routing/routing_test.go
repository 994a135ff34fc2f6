package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeopt/internal/score"
)

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func at(h, m int) *time.Time {
	t := time.Date(2024, 3, 1, h, m, 0, 0, time.UTC)
	return &t
}

func f64(v float64) *float64 { return &v }

// connect gives every ordered pair of visits the same leg.
func connect(km float64, d time.Duration, visits ...*Visit) {
	for _, a := range visits {
		for _, b := range visits {
			a.SetTravel(b.ID, km, d)
		}
	}
}

type fixture struct {
	p       *Problem
	depot   *Visit
	truck   *Vehicle
	a, b, c *Customer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	depot := NewVisit("depot", Position{Latitude: 1, Longitude: 1})
	depot.Depot = true
	va := NewVisit("va", Position{Latitude: 1.1, Longitude: 1.1})
	vb := NewVisit("vb", Position{Latitude: 1.2, Longitude: 1.2})
	vc := NewVisit("vc", Position{Latitude: 1.3, Longitude: 1.3})
	for _, v := range []*Visit{va, vb, vc} {
		v.Stop = true
	}
	connect(5, 10*time.Minute, depot, va, vb, vc)

	dep := base
	truck := &Vehicle{ID: "truck", Depot: depot, BackToOrigin: true, PreferredDepartureTime: &dep}
	a := &Customer{ID: "a", Visit: va, ServiceDuration: 5 * time.Minute, Weight: f64(2)}
	b := &Customer{ID: "b", Visit: vb, ReadyTime: at(9, 0), DueTime: at(9, 30), Weight: f64(3), Volume: f64(1.5)}
	c := &Customer{ID: "c", Visit: vc, Requirements: []string{"frozen"}}

	p, err := NewProblem("p1", []*Visit{depot, va, vb, vc}, []*Vehicle{truck}, []*Customer{a, b, c}, score.DefaultWeights())
	require.NoError(t, err)
	return fixture{p: p, depot: depot, truck: truck, a: a, b: b, c: c}
}

func (f fixture) insert(t *testing.T, id string, pos int) {
	t.Helper()
	touched, err := f.p.Insert(id, f.truck.ID, pos)
	require.NoError(t, err)
	_, err = PropagateAll(f.p, touched)
	require.NoError(t, err)
}

func TestPropagateChain(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "a", 0)
	f.insert(t, "b", 1)
	f.insert(t, "c", 2)

	assert.Equal(t, *at(8, 10), *f.a.ArrivalTime)
	assert.Equal(t, *at(8, 15), *f.a.DepartureTime())
	assert.Equal(t, *at(8, 25), *f.b.ArrivalTime)
	assert.Equal(t, int64(35), f.b.WaitingMinutes())
	assert.Equal(t, *at(9, 0), *f.b.DepartureTime())
	assert.Equal(t, *at(9, 10), *f.c.ArrivalTime)

	var prev *time.Time
	for pos, c := range f.truck.Customers() {
		require.NotNil(t, c.ArrivalTime)
		if prev != nil {
			assert.False(t, c.ArrivalTime.Before(*prev))
		}
		var feed time.Time
		if pos == 0 {
			feed = *f.truck.PreferredDepartureTime
		} else {
			feed = *f.truck.Customers()[pos-1].DepartureTime()
		}
		assert.Equal(t, feed.Add(10*time.Minute), *c.ArrivalTime)
		prev = c.ArrivalTime
	}
}

func TestPropagateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "a", 0)
	f.insert(t, "b", 1)
	f.insert(t, "c", 2)

	for _, id := range []string{"a", "b", "c"} {
		n, err := Propagate(f.p, id)
		require.NoError(t, err)
		assert.Zero(t, n, id)
	}
}

func TestPropagateStopsAtFixedPoint(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "b", 0)
	f.insert(t, "c", 1)

	// a arrives well before b opens, so b's service start and everything
	// after it stays put.
	touched, err := f.p.Insert("a", f.truck.ID, 0)
	require.NoError(t, err)
	n, err := PropagateAll(f.p, touched)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, *at(9, 10), *f.c.ArrivalTime)
}

func TestRemoveClearsArrivalAndShiftsSuccessor(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "a", 0)
	f.insert(t, "b", 1)
	f.insert(t, "c", 2)

	touched, err := f.p.Remove("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, touched)
	_, err = PropagateAll(f.p, touched)
	require.NoError(t, err)

	assert.Nil(t, f.b.ArrivalTime)
	assert.Nil(t, f.p.VehicleOf("b"))
	assert.Equal(t, *at(8, 25), *f.c.ArrivalTime)
	assert.Equal(t, f.a, f.p.Previous("c"))
	assert.Nil(t, f.p.Next("c"))
	assert.Equal(t, []string{"b"}, f.p.Unassigned())
}

func TestMoveReordersRoute(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "a", 0)
	f.insert(t, "c", 1)

	touched, err := f.p.Move("a", f.truck.ID, 1)
	require.NoError(t, err)
	_, err = PropagateAll(f.p, touched)
	require.NoError(t, err)

	assert.Equal(t, 0, f.p.Position("c"))
	assert.Equal(t, 1, f.p.Position("a"))
	assert.True(t, f.p.Assigned("a"))
	assert.False(t, f.p.Assigned("b"))
	assert.Equal(t, *at(8, 10), *f.c.ArrivalTime)
	assert.Equal(t, *at(8, 20), *f.a.ArrivalTime)
}

func TestDerivedDepartureIsPersisted(t *testing.T) {
	t.Run("from window start", func(t *testing.T) {
		f := newFixture(t)
		f.truck.PreferredDepartureTime = nil
		f.insert(t, "b", 0)
		require.NotNil(t, f.truck.PreferredDepartureTime)
		assert.Equal(t, *at(8, 50), *f.truck.PreferredDepartureTime)
		assert.Equal(t, *at(9, 0), *f.b.ArrivalTime)
	})
	t.Run("from clock", func(t *testing.T) {
		f := newFixture(t)
		f.truck.PreferredDepartureTime = nil
		f.p.Now = func() time.Time { return base }
		f.insert(t, "a", 0)
		assert.Equal(t, *at(9, 0), *f.truck.PreferredDepartureTime)
		assert.Equal(t, *at(9, 10), *f.a.ArrivalTime)
	})
}

func TestVehicleTotals(t *testing.T) {
	f := newFixture(t)
	assert.Zero(t, f.truck.TotalTime())
	assert.Zero(t, f.truck.TotalDrivingDistance())

	f.insert(t, "a", 0)
	f.insert(t, "b", 1)

	assert.Equal(t, int64(1800), f.truck.TotalDrivingTime())
	assert.Equal(t, int64(15000), f.truck.TotalDrivingDistance())
	// 3 legs + 5m service at a + 35m waiting at b
	assert.Equal(t, int64(1800+300+2100), f.truck.TotalTime())
	assert.Equal(t, 5.0, f.truck.TotalWeight())
	assert.Equal(t, 1.5, f.truck.TotalVolume())
	assert.Equal(t, int64(5000), f.truck.DistanceFromPrevious(1))
	assert.Equal(t, int64(600), f.truck.DrivingTimeFromPrevious(0))

	f.truck.BackToOrigin = false
	assert.Equal(t, int64(1200), f.truck.TotalDrivingTime())
}

func TestVehicleExcess(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "a", 0)
	f.insert(t, "b", 1)

	assert.Zero(t, f.truck.ExcessOrders())
	f.truck.Limits.MaxOrders = 1
	assert.Equal(t, int64(1), f.truck.ExcessOrders())

	f.truck.Limits.MaxDistance = 10000
	assert.Equal(t, int64(5000), f.truck.ExcessDistance())

	f.truck.Limits.MaxTime = 4200
	assert.Zero(t, f.truck.ExcessTime())
	f.truck.Limits.MaxTime = 4000
	assert.Equal(t, int64(200), f.truck.ExcessTime())

	f.truck.Limits.MaxWeight = f64(4.5)
	assert.Equal(t, int64(50), f.truck.ExcessWeight())
	f.truck.Limits.MaxVolume = f64(2)
	assert.Zero(t, f.truck.ExcessVolume())
}

func TestWindowExcess(t *testing.T) {
	c := &Customer{ID: "x", ReadyTime: at(9, 0), DueTime: at(9, 30), ServiceDuration: 20 * time.Minute}
	c.ArrivalTime = at(9, 20)
	assert.Zero(t, c.WaitingMinutes())
	assert.Zero(t, c.LateArrivalMinutes())
	assert.Equal(t, int64(10), c.LateDepartureMinutes())

	c.ArrivalTime = at(9, 45)
	assert.Equal(t, int64(15), c.LateArrivalMinutes())
	assert.Equal(t, int64(35), c.LateDepartureMinutes())
}

func TestMissingRequirements(t *testing.T) {
	f := newFixture(t)
	assert.Zero(t, f.c.MissingRequirements(nil))
	assert.Equal(t, int64(1), f.c.MissingRequirements(f.truck))
	f.truck.Attributes = []string{"frozen"}
	assert.Zero(t, f.c.MissingRequirements(f.truck))
	assert.Zero(t, f.a.MissingRequirements(f.truck))
}

func TestInsertErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Insert("zz", "truck", 0)
	assert.ErrorIs(t, err, ErrUnknownCustomer)
	_, err = f.p.Insert("a", "van", 0)
	assert.ErrorIs(t, err, ErrUnknownVehicle)
	_, err = f.p.Insert("a", "truck", 3)
	assert.ErrorIs(t, err, ErrPosition)
	f.insert(t, "a", 0)
	_, err = f.p.Insert("a", "truck", 0)
	assert.ErrorIs(t, err, ErrAssigned)
	_, err = f.p.Remove("b")
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestSnapshotRestoreAndClone(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "a", 0)
	snap := f.p.Snapshot()

	clone := f.p.Clone()
	f.insert(t, "b", 1)
	require.Equal(t, 2, f.truck.Len())

	cv, _ := clone.Vehicle("truck")
	assert.Equal(t, 1, cv.Len())
	cb, _ := clone.Customer("b")
	assert.Nil(t, cb.ArrivalTime)

	f.p.Restore(snap)
	assert.Equal(t, 1, f.truck.Len())
	assert.Nil(t, f.b.ArrivalTime)
	assert.Nil(t, f.p.VehicleOf("b"))
	assert.Equal(t, 0, f.p.Position("a"))
}

func TestRoleViews(t *testing.T) {
	f := newFixture(t)
	assert.Len(t, f.p.Depots(), 1)
	assert.Len(t, f.p.Visits(), 3)
}
