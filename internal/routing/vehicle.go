package routing

import "time"

// Limits caps a vehicle. A value that is not positive means no limit.
// MaxTime is in seconds, MaxDistance in metres.
type Limits struct {
	MaxOrders   int
	MaxTime     int64
	MaxDistance int64
	MaxVolume   *float64
	MaxWeight   *float64
}

// Vehicle owns its route as an ordered slice of indices into the problem's
// customers. The slice is mutated only through Problem operations.
type Vehicle struct {
	ID                     string
	Depot                  *Visit
	BackToOrigin           bool
	PreferredDepartureTime *time.Time
	Limits                 Limits
	Attributes             []string
	Virtual                bool
	VirtualGroupID         string

	Route []int

	customers []*Customer
}

func (v *Vehicle) HasAttribute(tag string) bool {
	for _, a := range v.Attributes {
		if a == tag {
			return true
		}
	}
	return false
}

func (v *Vehicle) Len() int { return len(v.Route) }

func (v *Vehicle) HasCustomers() bool { return len(v.Route) > 0 }

// Customers returns the route in visiting order.
func (v *Vehicle) Customers() []*Customer {
	out := make([]*Customer, len(v.Route))
	for i, idx := range v.Route {
		out[i] = v.customers[idx]
	}
	return out
}

func (v *Vehicle) at(pos int) *Customer { return v.customers[v.Route[pos]] }

// DepartureTime is the preferred departure, or the instant implied by the
// first arrival when none was set.
func (v *Vehicle) DepartureTime() *time.Time {
	if v.PreferredDepartureTime != nil {
		return v.PreferredDepartureTime
	}
	if len(v.Route) == 0 {
		return nil
	}
	first := v.at(0)
	if first.ArrivalTime == nil {
		return nil
	}
	t := first.ArrivalTime.Add(-v.Depot.DurationTo(first.Visit))
	return &t
}

// DistanceFromPrevious is the metres driven to reach the stop at pos from
// the depot or the previous stop.
func (v *Vehicle) DistanceFromPrevious(pos int) int64 {
	return previousVisit(v, pos).DistanceTo(v.at(pos).Visit)
}

// DrivingTimeFromPrevious is the seconds driven to reach the stop at pos.
func (v *Vehicle) DrivingTimeFromPrevious(pos int) int64 {
	return previousVisit(v, pos).TimeTo(v.at(pos).Visit)
}

// legs calls fn for each travelled leg including the return to depot.
func (v *Vehicle) legs(fn func(from, to *Visit, c *Customer)) {
	if len(v.Route) == 0 {
		return
	}
	prev := v.Depot
	for _, idx := range v.Route {
		c := v.customers[idx]
		fn(prev, c.Visit, c)
		prev = c.Visit
	}
	if v.BackToOrigin {
		fn(prev, v.Depot, nil)
	}
}

// TotalTime is driving plus service plus waiting, in seconds.
func (v *Vehicle) TotalTime() int64 {
	var total int64
	v.legs(func(from, to *Visit, c *Customer) {
		total += from.TimeTo(to)
		if c != nil {
			total += int64(c.ServiceDuration / time.Second)
			total += int64(c.WaitingDuration() / time.Second)
		}
	})
	return total
}

// TotalDrivingTime is in seconds.
func (v *Vehicle) TotalDrivingTime() int64 {
	var total int64
	v.legs(func(from, to *Visit, _ *Customer) { total += from.TimeTo(to) })
	return total
}

// TotalDrivingDistance is in metres.
func (v *Vehicle) TotalDrivingDistance() int64 {
	var total int64
	v.legs(func(from, to *Visit, _ *Customer) { total += from.DistanceTo(to) })
	return total
}

func (v *Vehicle) TotalVolume() float64 {
	var total float64
	for _, idx := range v.Route {
		if c := v.customers[idx]; c.Volume != nil {
			total += *c.Volume
		}
	}
	return total
}

func (v *Vehicle) TotalWeight() float64 {
	var total float64
	for _, idx := range v.Route {
		if c := v.customers[idx]; c.Weight != nil {
			total += *c.Weight
		}
	}
	return total
}

func (v *Vehicle) ExcessOrders() int64 {
	return excess(int64(len(v.Route)), int64(v.Limits.MaxOrders))
}

func (v *Vehicle) ExcessTime() int64 {
	return excess(v.TotalTime(), v.Limits.MaxTime)
}

func (v *Vehicle) ExcessDistance() int64 {
	return excess(v.TotalDrivingDistance(), v.Limits.MaxDistance)
}

// ExcessVolume and ExcessWeight are scaled by 100 to keep two decimals.
func (v *Vehicle) ExcessVolume() int64 {
	return excessScaled(v.TotalVolume(), v.Limits.MaxVolume)
}

func (v *Vehicle) ExcessWeight() int64 {
	return excessScaled(v.TotalWeight(), v.Limits.MaxWeight)
}

func excess(total, limit int64) int64 {
	if limit <= 0 || total < limit {
		return 0
	}
	return total - limit
}

func excessScaled(total float64, limit *float64) int64 {
	if limit == nil || *limit <= 0 || total < *limit {
		return 0
	}
	return int64((total - *limit) * 100)
}
