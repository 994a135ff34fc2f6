package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Cell is one routed matrix entry: distance in kilometres, duration in
// seconds. Both are Unroutable when the service could not route the pair.
type Cell struct {
	Distance float64
	Duration float64
}

const Unroutable = -1

func (c Cell) Failed() bool { return c.Distance == Unroutable && c.Duration == Unroutable }

// RouteClient is the routing service as seen by the Routed provider.
type RouteClient interface {
	Route(ctx context.Context, from, to Point) (Leg, error)
	// RouteMatrix returns len(from) rows of len(to) cells.
	RouteMatrix(ctx context.Context, from, to []Point) ([][]Cell, error)
}

// StatusError is a non-2xx answer from the routing service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("routing service status %d: %s", e.Code, e.Body)
}

// ORSClient talks to an OpenRouteService compatible API.
type ORSClient struct {
	session    *http.Client
	apiKey     string
	baseURL    string
	profile    string
	avoidTolls bool
}

type ORSOptions struct {
	BaseURL    string
	APIKey     string
	Profile    string
	Timeout    time.Duration
	AvoidTolls bool
	HTTPClient *http.Client
}

func NewORSClient(o ORSOptions) (*ORSClient, error) {
	if strings.TrimSpace(o.BaseURL) == "" {
		return nil, errors.New("routing service base url is empty")
	}
	if o.Profile == "" {
		o.Profile = "driving-car"
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	session := o.HTTPClient
	if session == nil {
		session = &http.Client{Timeout: o.Timeout}
	}
	return &ORSClient{
		session:    session,
		apiKey:     o.APIKey,
		baseURL:    strings.TrimRight(o.BaseURL, "/"),
		profile:    o.Profile,
		avoidTolls: o.AvoidTolls,
	}, nil
}

type matrixRequest struct {
	Locations    [][]float64 `json:"locations"`
	Sources      []int       `json:"sources"`
	Destinations []int       `json:"destinations"`
	Metrics      []string    `json:"metrics"`
	Units        string      `json:"units"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

func (o *ORSClient) RouteMatrix(ctx context.Context, from, to []Point) ([][]Cell, error) {
	if len(from) == 0 || len(to) == 0 {
		return nil, nil
	}
	body := matrixRequest{Metrics: []string{"distance", "duration"}, Units: "km"}
	for i, p := range from {
		body.Locations = append(body.Locations, lonLat(p))
		body.Sources = append(body.Sources, i)
	}
	for i, p := range to {
		body.Locations = append(body.Locations, lonLat(p))
		body.Destinations = append(body.Destinations, len(from)+i)
	}

	var mr matrixResponse
	if err := o.post(ctx, fmt.Sprintf("%s/v2/matrix/%s", o.baseURL, o.profile), body, &mr); err != nil {
		return nil, fmt.Errorf("matrix request failed: %w", err)
	}
	if len(mr.Distances) != len(from) || len(mr.Durations) != len(from) {
		return nil, fmt.Errorf("expected %d source rows; got distances=%d durations=%d",
			len(from), len(mr.Distances), len(mr.Durations))
	}

	out := make([][]Cell, len(from))
	for i := range from {
		if len(mr.Distances[i]) != len(to) || len(mr.Durations[i]) != len(to) {
			return nil, fmt.Errorf("row %d does not match %d destinations", i, len(to))
		}
		out[i] = make([]Cell, len(to))
		for j := range to {
			d, t := mr.Distances[i][j], mr.Durations[i][j]
			if d == nil || t == nil {
				out[i][j] = Cell{Distance: Unroutable, Duration: Unroutable}
				continue
			}
			out[i][j] = Cell{Distance: *d, Duration: *t}
		}
	}
	return out, nil
}

type directionsRequest struct {
	Coordinates [][]float64        `json:"coordinates"`
	Units       string             `json:"units"`
	Options     *directionsOptions `json:"options,omitempty"`
}

type directionsOptions struct {
	AvoidFeatures []string `json:"avoid_features,omitempty"`
}

type directionsResponse struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"summary"`
	} `json:"routes"`
}

func (o *ORSClient) Route(ctx context.Context, from, to Point) (Leg, error) {
	body := directionsRequest{Coordinates: [][]float64{lonLat(from), lonLat(to)}, Units: "km"}
	if o.avoidTolls {
		body.Options = &directionsOptions{AvoidFeatures: []string{"tollways"}}
	}
	var dr directionsResponse
	if err := o.post(ctx, fmt.Sprintf("%s/v2/directions/%s", o.baseURL, o.profile), body, &dr); err != nil {
		return Leg{}, fmt.Errorf("directions request failed: %w", err)
	}
	if len(dr.Routes) == 0 {
		return Leg{}, fmt.Errorf("no route from %s to %s", from.ID, to.ID)
	}
	s := dr.Routes[0].Summary
	return Leg{Distance: s.Distance, Duration: time.Duration(s.Duration * float64(time.Second))}, nil
}

func (o *ORSClient) post(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", o.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.session.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func lonLat(p Point) []float64 { return []float64{p.Longitude, p.Latitude} }
