package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LocalTimeLayout is the wire form of every timestamp: an ISO-8601 local
// date-time without zone, interpreted as UTC.
const LocalTimeLayout = "2006-01-02T15:04:05"

// LocalTime is a wall-clock timestamp. RFC 3339 input is accepted and
// normalised to UTC.
type LocalTime struct {
	time.Time
}

func NewLocalTime(t time.Time) *LocalTime {
	return &LocalTime{Time: t.UTC().Truncate(time.Second)}
}

func ParseLocalTime(s string) (LocalTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{LocalTimeLayout, "2006-01-02T15:04", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return LocalTime{Time: t.UTC()}, nil
		}
	}
	return LocalTime{}, fmt.Errorf("invalid date-time %q", s)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(LocalTimeLayout))
}

func (t *LocalTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseLocalTime(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t *LocalTime) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseLocalTime(n.Value)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Ptr returns the instant as *time.Time, nil for a nil receiver.
func (t *LocalTime) Ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

type Location struct {
	ID        string  `json:"id" yaml:"id"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// IsEmpty reports a location without id or with an unset coordinate.
func (l *Location) IsEmpty() bool {
	return l == nil || strings.TrimSpace(l.ID) == "" || l.Latitude == 0 || l.Longitude == 0
}

type TimeWindow struct {
	From *LocalTime `json:"from,omitempty" yaml:"from,omitempty"`
	To   *LocalTime `json:"to,omitempty" yaml:"to,omitempty"`
}

func (w *TimeWindow) IsEmpty() bool {
	return w == nil || w.From == nil || w.To == nil
}

type OrderAttributes struct {
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Volume *float64 `json:"volume,omitempty" yaml:"volume,omitempty"`
}

type Order struct {
	ID            string           `json:"id" yaml:"id"`
	Origin        *Location        `json:"origin,omitempty" yaml:"origin,omitempty"`
	Destination   *Location        `json:"destination,omitempty" yaml:"destination,omitempty"`
	ServiceTime   *int             `json:"serviceTime,omitempty" yaml:"serviceTime,omitempty"`
	ServiceWindow *TimeWindow      `json:"serviceWindow,omitempty" yaml:"serviceWindow,omitempty"`
	Attributes    *OrderAttributes `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Requirements  []string         `json:"requirements,omitempty" yaml:"requirements,omitempty"`
}

// Weight and Volume return 0 when the order carries no attribute.
func (o Order) Weight() float64 {
	if o.Attributes == nil || o.Attributes.Weight == nil {
		return 0
	}
	return *o.Attributes.Weight
}

func (o Order) Volume() float64 {
	if o.Attributes == nil || o.Attributes.Volume == nil {
		return 0
	}
	return *o.Attributes.Volume
}

// FleetLimits: times in seconds, distances in metres.
type FleetLimits struct {
	MaxOrders   *int     `json:"maxOrders,omitempty" yaml:"maxOrders,omitempty"`
	MaxDistance *int     `json:"maxDistance,omitempty" yaml:"maxDistance,omitempty"`
	MaxTime     *int     `json:"maxTime,omitempty" yaml:"maxTime,omitempty"`
	MaxCapacity *float64 `json:"maxCapacity,omitempty" yaml:"maxCapacity,omitempty"`
	MaxVolume   *float64 `json:"maxVolume,omitempty" yaml:"maxVolume,omitempty"`
}

type Fleet struct {
	ID                     string       `json:"id" yaml:"id"`
	StartingLocation       *Location    `json:"startingLocation,omitempty" yaml:"startingLocation,omitempty"`
	PreferredDepartureTime *LocalTime   `json:"preferredDepartureTime,omitempty" yaml:"preferredDepartureTime,omitempty"`
	BackToOrigin           *bool        `json:"backToOrigin,omitempty" yaml:"backToOrigin,omitempty"`
	Limits                 *FleetLimits `json:"limits,omitempty" yaml:"limits,omitempty"`
	Attributes             []string     `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

type VirtualFleet struct {
	GroupID                string       `json:"groupId" yaml:"groupId"`
	Size                   int          `json:"size" yaml:"size"`
	StartingLocation       *Location    `json:"startingLocation,omitempty" yaml:"startingLocation,omitempty"`
	PreferredDepartureTime *LocalTime   `json:"preferredDepartureTime,omitempty" yaml:"preferredDepartureTime,omitempty"`
	BackToOrigin           *bool        `json:"backToOrigin,omitempty" yaml:"backToOrigin,omitempty"`
	Limits                 *FleetLimits `json:"limits,omitempty" yaml:"limits,omitempty"`
	Attributes             []string     `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

type ConstraintData struct {
	Weight *int    `json:"weight,omitempty" yaml:"weight,omitempty"`
	Type   *string `json:"type,omitempty" yaml:"type,omitempty"`
}

type Constraints struct {
	TravelTime        *ConstraintData `json:"travelTime,omitempty" yaml:"travelTime,omitempty"`
	TravelDistance    *ConstraintData `json:"travelDistance,omitempty" yaml:"travelDistance,omitempty"`
	MaxTime           *ConstraintData `json:"maxTime,omitempty" yaml:"maxTime,omitempty"`
	MaxDistance       *ConstraintData `json:"maxDistance,omitempty" yaml:"maxDistance,omitempty"`
	EarlyArrival      *ConstraintData `json:"earlyArrival,omitempty" yaml:"earlyArrival,omitempty"`
	LateArrival       *ConstraintData `json:"lateArrival,omitempty" yaml:"lateArrival,omitempty"`
	LateDeparture     *ConstraintData `json:"lateDeparture,omitempty" yaml:"lateDeparture,omitempty"`
	OrderCount        *ConstraintData `json:"orderCount,omitempty" yaml:"orderCount,omitempty"`
	VirtualVehicle    *ConstraintData `json:"virtualVehicle,omitempty" yaml:"virtualVehicle,omitempty"`
	VehicleWeight     *ConstraintData `json:"vehicleWeight,omitempty" yaml:"vehicleWeight,omitempty"`
	VehicleVolume     *ConstraintData `json:"vehicleVolume,omitempty" yaml:"vehicleVolume,omitempty"`
	OrderRequirements *ConstraintData `json:"orderRequirements,omitempty" yaml:"orderRequirements,omitempty"`
}

// Config is the per-request configuration. Every field is optional; the
// assembler falls back to its defaults table.
type Config struct {
	DistanceMatrixType          *string        `json:"distanceMatrixType,omitempty" yaml:"distanceMatrixType,omitempty"`
	MaxOrders                   *int           `json:"maxOrders,omitempty" yaml:"maxOrders,omitempty"`
	MaxDistance                 *int           `json:"maxDistance,omitempty" yaml:"maxDistance,omitempty"`
	MaxTime                     *int           `json:"maxTime,omitempty" yaml:"maxTime,omitempty"`
	AvoidTolls                  *bool          `json:"avoidTolls,omitempty" yaml:"avoidTolls,omitempty"`
	Explain                     *bool          `json:"explain,omitempty" yaml:"explain,omitempty"`
	BackToOrigin                *bool          `json:"backToOrigin,omitempty" yaml:"backToOrigin,omitempty"`
	VehicleDepartureTime        *LocalTime     `json:"vehicleDepartureTime,omitempty" yaml:"vehicleDepartureTime,omitempty"`
	MaxSolverDuration           *int           `json:"maxSolverDuration,omitempty" yaml:"maxSolverDuration,omitempty"`
	MaxUnimprovedSolverDuration *int           `json:"maxUnimprovedSolverDuration,omitempty" yaml:"maxUnimprovedSolverDuration,omitempty"`
	VirtualFleet                []VirtualFleet `json:"virtualFleet,omitempty" yaml:"virtualFleet,omitempty"`
	Constraints                 *Constraints   `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

type OptimizationRequest struct {
	ProblemID string  `json:"problemId" yaml:"problemId"`
	Orders    []Order `json:"orders" yaml:"orders"`
	Fleet     []Fleet `json:"fleet" yaml:"fleet"`
	Config    *Config `json:"config,omitempty" yaml:"config,omitempty"`
}

// DecodeRequest parses a JSON request; unknown fields are ignored.
func DecodeRequest(b []byte) (*OptimizationRequest, error) {
	var req OptimizationRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeRequestYAML parses the YAML form used by request files.
func DecodeRequestYAML(b []byte) (*OptimizationRequest, error) {
	var req OptimizationRequest
	if err := yaml.Unmarshal(b, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
