package geo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"routeopt/internal/cache"
	"routeopt/internal/metrics"
)

// MaxBlockSize is the largest matrix side the routing service accepts.
const MaxBlockSize = 10

// PairError reports a pair the routing service could not route.
type PairError struct {
	From, To string
}

func (e *PairError) Error() string {
	return fmt.Sprintf("Missing routing details from %s to %s", e.From, e.To)
}

type RoutedOptions struct {
	// Limiter is shared by single-pair and matrix calls.
	Limiter     *rate.Limiter
	BlockSize   int
	Concurrency int
	CallTimeout time.Duration
	// Filler recomputes unroutable matrix cells with a single-pair call
	// instead of failing.
	Filler   bool
	Cache    cache.Cache
	CacheTTL time.Duration
	// CacheScope separates cache entries of different profiles or options.
	CacheScope string
	Logger     *zap.Logger
}

// Routed computes legs through a RouteClient, partitioning large matrices
// into blocks computed concurrently.
type Routed struct {
	client      RouteClient
	limiter     *rate.Limiter
	blockSize   int
	concurrency int
	timeout     time.Duration
	filler      bool
	cache       cache.Cache
	cacheTTL    time.Duration
	scope       string
	log         *zap.Logger
}

func NewRouted(client RouteClient, o RoutedOptions) *Routed {
	if o.Limiter == nil {
		o.Limiter = rate.NewLimiter(rate.Limit(5), 5)
	}
	if o.BlockSize <= 0 || o.BlockSize > MaxBlockSize {
		o.BlockSize = MaxBlockSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Routed{
		client:      client,
		limiter:     o.Limiter,
		blockSize:   o.BlockSize,
		concurrency: o.Concurrency,
		timeout:     o.CallTimeout,
		filler:      o.Filler,
		cache:       o.Cache,
		cacheTTL:    o.CacheTTL,
		scope:       o.CacheScope,
		log:         o.Logger.Named("routed"),
	}
}

func (r *Routed) Kind() Kind { return RoadDistance }

func (r *Routed) Between(ctx context.Context, from, to Point) (Leg, error) {
	if from.sameAs(to) {
		return Leg{}, nil
	}
	key := r.key("leg", coordKey(from)+":"+coordKey(to))
	var leg cachedLeg
	if r.lookup(ctx, key, &leg) {
		return leg.Leg(), nil
	}
	var out Leg
	err := r.call(ctx, "pair", func(ctx context.Context) error {
		var err error
		out, err = r.client.Route(ctx, from, to)
		return err
	})
	if err != nil {
		return Leg{}, err
	}
	r.store(ctx, key, cachedLeg{Km: out.Distance, Seconds: out.Duration.Seconds()})
	return out, nil
}

func (r *Routed) Matrix(ctx context.Context, from, to []Point) (Matrix, error) {
	out := make(Matrix, len(from))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, rows := range chunk(from, r.blockSize) {
		for _, cols := range chunk(to, r.blockSize) {
			g.Go(func() error {
				cells, err := r.block(gctx, rows, cols)
				if err != nil {
					return err
				}
				for i, a := range rows {
					for j, b := range cols {
						leg, err := r.resolve(gctx, a, b, cells[i][j])
						if err != nil {
							return err
						}
						mu.Lock()
						out.Set(a.ID, b.ID, leg)
						mu.Unlock()
					}
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Routed) resolve(ctx context.Context, a, b Point, c Cell) (Leg, error) {
	if !c.Failed() {
		return Leg{Distance: c.Distance, Duration: seconds(c.Duration)}, nil
	}
	if !r.filler {
		return Leg{}, &PairError{From: a.ID, To: b.ID}
	}
	r.log.Warn("unroutable pair in matrix, recomputing", zap.String("from", a.ID), zap.String("to", b.ID))
	leg, err := r.Between(ctx, a, b)
	if err != nil {
		return Leg{}, fmt.Errorf("fill %s -> %s: %w", a.ID, b.ID, err)
	}
	return leg, nil
}

func (r *Routed) block(ctx context.Context, rows, cols []Point) ([][]Cell, error) {
	key := r.key("block", blockHash(rows, cols))
	var cells [][]Cell
	if r.lookup(ctx, key, &cells) {
		return cells, nil
	}
	err := r.call(ctx, "matrix", func(ctx context.Context) error {
		var err error
		cells, err = r.client.RouteMatrix(ctx, rows, cols)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(cells) != len(rows) {
		return nil, fmt.Errorf("routing service returned %d rows for %d origins", len(cells), len(rows))
	}
	for i := range cells {
		if len(cells[i]) != len(cols) {
			return nil, fmt.Errorf("routing service returned %d columns for %d destinations", len(cells[i]), len(cols))
		}
	}
	if complete(cells) {
		r.store(ctx, key, cells)
	}
	return cells, nil
}

// call waits for a permit then runs fn under the per-call timeout.
func (r *Routed) call(ctx context.Context, kind string, fn func(context.Context) error) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	metrics.RateLimitWait.Observe(time.Since(start).Seconds())

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err := fn(cctx)
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
	}
	metrics.RoutingCalls.WithLabelValues(kind, status).Inc()
	return err
}

func (r *Routed) lookup(ctx context.Context, key string, out any) bool {
	if r.cache == nil {
		return false
	}
	err := cache.GetJSON(ctx, r.cache, key, out)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.log.Warn("distance cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.DistanceCache.WithLabelValues("miss").Inc()
		return false
	}
	metrics.DistanceCache.WithLabelValues("hit").Inc()
	return true
}

func (r *Routed) store(ctx context.Context, key string, v any) {
	if r.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, r.cache, key, v, r.cacheTTL); err != nil {
		r.log.Warn("distance cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Routed) key(kind, suffix string) string {
	return "routeopt:" + kind + ":" + r.scope + ":" + suffix
}

type cachedLeg struct {
	Km      float64 `json:"km"`
	Seconds float64 `json:"s"`
}

func (c cachedLeg) Leg() Leg { return Leg{Distance: c.Km, Duration: seconds(c.Seconds)} }

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func complete(cells [][]Cell) bool {
	for _, row := range cells {
		for _, c := range row {
			if c.Failed() {
				return false
			}
		}
	}
	return true
}

func chunk(points []Point, size int) [][]Point {
	var out [][]Point
	for start := 0; start < len(points); start += size {
		end := min(start+size, len(points))
		out = append(out, points[start:end])
	}
	return out
}

func coordKey(p Point) string {
	return strconv.FormatFloat(p.Longitude, 'f', 6, 64) + "," + strconv.FormatFloat(p.Latitude, 'f', 6, 64)
}

func blockHash(rows, cols []Point) string {
	var sb strings.Builder
	for _, p := range rows {
		sb.WriteString(coordKey(p))
		sb.WriteByte(';')
	}
	sb.WriteByte('|')
	for _, p := range cols {
		sb.WriteString(coordKey(p))
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
