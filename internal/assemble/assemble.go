// Package assemble turns a validated optimization request into a routing
// problem: defaults, virtual fleet expansion, constraint weights and the
// travel lookups of every location.
package assemble

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"routeopt/internal/apperr"
	"routeopt/internal/geo"
	"routeopt/internal/model"
	"routeopt/internal/routing"
)

// Providers yields the distance provider for a request.
type Providers interface {
	Provider(kind geo.Kind, avoidTolls bool) (geo.Provider, error)
}

// Settings are the resolved solve parameters of one request.
type Settings struct {
	MatrixType       geo.Kind
	AvoidTolls       bool
	Explain          bool
	SolverBudget     time.Duration
	UnimprovedBudget time.Duration
}

type Assembler struct {
	defaults  Defaults
	providers Providers
	log       *zap.Logger

	newID func() string
	now   func() time.Time
}

func New(defaults Defaults, providers Providers, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{
		defaults:  defaults,
		providers: providers,
		log:       log.Named("assemble"),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Assemble builds the problem and fills every location's travel lookups
// before returning. Errors are *apperr.AssemblyError or
// *apperr.DistanceComputationError.
func (a *Assembler) Assemble(ctx context.Context, req *model.OptimizationRequest) (*routing.Problem, Settings, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = &model.Config{}
	}
	settings, err := a.settings(cfg)
	if err != nil {
		return nil, Settings{}, apperr.Assembly(req.ProblemID, "%s", err.Error())
	}

	locs := newLocationSet()
	for _, f := range req.Fleet {
		locs.add(f.StartingLocation, true)
	}
	for _, v := range cfg.VirtualFleet {
		locs.add(v.StartingLocation, true)
	}
	for _, o := range req.Orders {
		locs.add(o.Destination, false)
	}
	for _, id := range locs.conflicts {
		a.log.Warn("location id reused with different coordinates, keeping first",
			zap.String("problem_id", req.ProblemID), zap.String("location_id", id))
	}

	var vehicles []*routing.Vehicle
	for _, f := range req.Fleet {
		v, err := a.vehicle(locs, cfg, fleetSpec{
			start: f.StartingLocation, departure: f.PreferredDepartureTime,
			backToOrigin: f.BackToOrigin, limits: f.Limits, attributes: f.Attributes,
		})
		if err != nil {
			return nil, Settings{}, apperr.Assembly(req.ProblemID, "fleet %q: %s", f.ID, err.Error())
		}
		v.ID = f.ID
		vehicles = append(vehicles, v)
	}
	for _, g := range cfg.VirtualFleet {
		for i := 0; i < g.Size; i++ {
			v, err := a.vehicle(locs, cfg, fleetSpec{
				start: g.StartingLocation, departure: g.PreferredDepartureTime,
				backToOrigin: g.BackToOrigin, limits: g.Limits, attributes: g.Attributes,
			})
			if err != nil {
				return nil, Settings{}, apperr.Assembly(req.ProblemID, "virtual fleet %q: %s", g.GroupID, err.Error())
			}
			v.ID = "v-" + a.newID()
			v.Virtual = true
			v.VirtualGroupID = g.GroupID
			vehicles = append(vehicles, v)
		}
	}

	customers := make([]*routing.Customer, 0, len(req.Orders))
	for _, o := range req.Orders {
		visit, ok := locs.get(o.Destination)
		if !ok {
			return nil, Settings{}, apperr.Assembly(req.ProblemID, "order %q: destination not found", o.ID)
		}
		customers = append(customers, customer(o, visit))
	}

	weights, err := resolveWeights(detect(vehicles, customers, req.Config), cfg.Constraints, a.defaults.Weights)
	if err != nil {
		return nil, Settings{}, apperr.Assembly(req.ProblemID, "%s", err.Error())
	}

	if err := a.populate(ctx, locs.visits, settings); err != nil {
		return nil, Settings{}, &apperr.DistanceComputationError{ProblemID: req.ProblemID, Err: err}
	}
	if err := checkLookups(locs.visits); err != nil {
		return nil, Settings{}, apperr.Assembly(req.ProblemID, "%s", err.Error())
	}

	p, err := routing.NewProblem(req.ProblemID, locs.visits, vehicles, customers, weights)
	if err != nil {
		return nil, Settings{}, apperr.Assembly(req.ProblemID, "%s", err.Error())
	}
	p.Now = a.now

	a.log.Info("problem assembled",
		zap.String("problem_id", p.ID),
		zap.Int("locations", len(p.Locations)),
		zap.Int("vehicles", len(p.Vehicles)),
		zap.Int("customers", len(p.Customers)),
		zap.String("matrix", string(settings.MatrixType)),
	)
	return p, settings, nil
}

func (a *Assembler) settings(cfg *model.Config) (Settings, error) {
	s := Settings{
		MatrixType:       a.defaults.MatrixType,
		AvoidTolls:       boolOr(cfg.AvoidTolls, a.defaults.AvoidTolls),
		Explain:          boolOr(cfg.Explain, a.defaults.Explain),
		SolverBudget:     secondsOr(cfg.MaxSolverDuration, a.defaults.SolverBudget),
		UnimprovedBudget: secondsOr(cfg.MaxUnimprovedSolverDuration, a.defaults.UnimprovedBudget),
	}
	if cfg.DistanceMatrixType != nil && strings.TrimSpace(*cfg.DistanceMatrixType) != "" {
		k, err := geo.ParseKind(*cfg.DistanceMatrixType)
		if err != nil {
			return Settings{}, err
		}
		s.MatrixType = k
	}
	return s, nil
}

type fleetSpec struct {
	start        *model.Location
	departure    *model.LocalTime
	backToOrigin *bool
	limits       *model.FleetLimits
	attributes   []string
}

func (a *Assembler) vehicle(locs *locationSet, cfg *model.Config, f fleetSpec) (*routing.Vehicle, error) {
	depot, ok := locs.get(f.start)
	if !ok || !depot.Depot {
		return nil, fmt.Errorf("starting location not found")
	}
	lim := f.limits
	if lim == nil {
		lim = &model.FleetLimits{}
	}
	departure := f.departure
	if departure == nil {
		departure = cfg.VehicleDepartureTime
	}
	back := a.defaults.BackToOrigin
	switch {
	case f.backToOrigin != nil:
		back = *f.backToOrigin
	case cfg.BackToOrigin != nil:
		back = *cfg.BackToOrigin
	}
	return &routing.Vehicle{
		Depot:                  depot,
		BackToOrigin:           back,
		PreferredDepartureTime: departure.Ptr(),
		Limits: routing.Limits{
			MaxOrders:   int(tier(lim.MaxOrders, cfg.MaxOrders, int64(a.defaults.MaxOrders))),
			MaxTime:     tier(lim.MaxTime, cfg.MaxTime, a.defaults.MaxTime),
			MaxDistance: tier(lim.MaxDistance, cfg.MaxDistance, a.defaults.MaxDistance),
			MaxVolume:   lim.MaxVolume,
			MaxWeight:   lim.MaxCapacity,
		},
		Attributes: append([]string(nil), f.attributes...),
	}, nil
}

func customer(o model.Order, visit *routing.Visit) *routing.Customer {
	c := &routing.Customer{
		ID:           o.ID,
		Visit:        visit,
		Requirements: append([]string(nil), o.Requirements...),
	}
	if o.ServiceTime != nil {
		c.ServiceDuration = time.Duration(*o.ServiceTime) * time.Second
	}
	if !o.ServiceWindow.IsEmpty() {
		c.ReadyTime = o.ServiceWindow.From.Ptr()
		c.DueTime = o.ServiceWindow.To.Ptr()
	}
	if o.Attributes != nil {
		c.Volume = o.Attributes.Volume
		c.Weight = o.Attributes.Weight
	}
	return c
}

// populate computes the full matrix over every location once.
func (a *Assembler) populate(ctx context.Context, visits []*routing.Visit, s Settings) error {
	provider, err := a.providers.Provider(s.MatrixType, s.AvoidTolls)
	if err != nil {
		return err
	}
	points := make([]geo.Point, len(visits))
	for i, v := range visits {
		points[i] = geo.Point{ID: v.ID, Latitude: v.Latitude, Longitude: v.Longitude}
	}
	start := time.Now()
	m, err := provider.Matrix(ctx, points, points)
	if err != nil {
		return err
	}
	for _, from := range visits {
		for _, to := range visits {
			if leg, ok := m.Get(from.ID, to.ID); ok {
				from.SetTravel(to.ID, leg.Distance, leg.Duration)
			}
		}
	}
	a.log.Debug("travel matrix computed",
		zap.String("provider", string(provider.Kind())),
		zap.Int("locations", len(visits)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func checkLookups(visits []*routing.Visit) error {
	for _, from := range visits {
		for _, to := range visits {
			if !from.HasTravel(to.ID) {
				return fmt.Errorf("missing travel data from %s to %s", from.ID, to.ID)
			}
		}
	}
	return nil
}

// tier resolves a limit: a positive fleet value, then a positive request
// value, then the default.
func tier(fleet, request *int, def int64) int64 {
	if fleet != nil && *fleet > 0 {
		return int64(*fleet)
	}
	if request != nil && *request > 0 {
		return int64(*request)
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func secondsOr(v *int, def time.Duration) time.Duration {
	if v == nil || *v <= 0 {
		return def
	}
	return time.Duration(*v) * time.Second
}
