package routing

import "time"

// Customer is one order to service at a Visit. ArrivalTime is derived by
// Propagate and is nil exactly when the customer is unassigned.
type Customer struct {
	ID              string
	Visit           *Visit
	ReadyTime       *time.Time
	DueTime         *time.Time
	ServiceDuration time.Duration
	Volume          *float64
	Weight          *float64
	Requirements    []string

	ArrivalTime *time.Time
}

func (c *Customer) HasWindow() bool { return c.ReadyTime != nil && c.DueTime != nil }

// StartServiceTime is max(arrival, ready).
func (c *Customer) StartServiceTime() *time.Time {
	if c.ArrivalTime == nil {
		return nil
	}
	t := *c.ArrivalTime
	if c.ReadyTime != nil && t.Before(*c.ReadyTime) {
		t = *c.ReadyTime
	}
	return &t
}

// DepartureTime is the start of service plus the service duration.
func (c *Customer) DepartureTime() *time.Time {
	start := c.StartServiceTime()
	if start == nil {
		return nil
	}
	t := start.Add(c.ServiceDuration)
	return &t
}

func (c *Customer) WaitingDuration() time.Duration {
	if c.ArrivalTime == nil || c.ReadyTime == nil || !c.ArrivalTime.Before(*c.ReadyTime) {
		return 0
	}
	return c.ReadyTime.Sub(*c.ArrivalTime)
}

func (c *Customer) LateArrivalDuration() time.Duration {
	if c.ArrivalTime == nil || c.DueTime == nil || !c.ArrivalTime.After(*c.DueTime) {
		return 0
	}
	return c.ArrivalTime.Sub(*c.DueTime)
}

func (c *Customer) LateDepartureDuration() time.Duration {
	dep := c.DepartureTime()
	if dep == nil || c.DueTime == nil || !dep.After(*c.DueTime) {
		return 0
	}
	return dep.Sub(*c.DueTime)
}

func (c *Customer) WaitingMinutes() int64       { return minutes(c.WaitingDuration()) }
func (c *Customer) LateArrivalMinutes() int64   { return minutes(c.LateArrivalDuration()) }
func (c *Customer) LateDepartureMinutes() int64 { return minutes(c.LateDepartureDuration()) }

// MissingRequirements counts required tags the vehicle does not carry. An
// unassigned customer misses nothing.
func (c *Customer) MissingRequirements(v *Vehicle) int64 {
	if len(c.Requirements) == 0 || v == nil {
		return 0
	}
	var n int64
	for _, r := range c.Requirements {
		if !v.HasAttribute(r) {
			n++
		}
	}
	return n
}

func minutes(d time.Duration) int64 { return int64(d / time.Minute) }
