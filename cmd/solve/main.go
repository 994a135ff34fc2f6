// Command solve runs one optimization request from a JSON or YAML file and
// prints the result as JSON.
//
//	solve [--seed N] [--max-iterations N] [--out result.json] request.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"routeopt/internal/app"
	"routeopt/internal/assemble"
	"routeopt/internal/config"
	"routeopt/internal/logger"
	"routeopt/internal/model"
	"routeopt/internal/search"
	"routeopt/internal/solver"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("solve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	seed := fs.Int64("seed", 0, "random seed of the search; 0 uses SEARCH_SEED")
	maxIter := fs.Int("max-iterations", 0, "iteration cap; 0 uses SEARCH_MAX_ITERATIONS")
	format := fs.String("format", "", "request format: json or yaml (default: from the file extension)")
	out := fs.StringP("out", "o", "", "write the result to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: solve [flags] <request.json|request.yaml>")
		fs.PrintDefaults()
		return 2
	}

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer logger.Sync()
	log := logger.Get().Named("solve")

	req, err := readRequest(fs.Arg(0), *format)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	opts := solver.Options{MaxIterations: cfg.SearchMaxIterations, Seed: cfg.SearchSeed}
	if *seed != 0 {
		opts.Seed = *seed
	}
	if *maxIter > 0 {
		opts.MaxIterations = *maxIter
	}
	runner := solver.NewRunner(
		assemble.New(assemble.DefaultValues, app.Providers(cfg.Routing, nil, log), log),
		search.NewALNS(log),
		opts,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, runErr := runner.Run(ctx, req)

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if runErr != nil {
		log.Error("optimization failed", zap.Error(runErr))
		return 1
	}
	return 0
}

// readRequest decodes path as JSON or YAML. An empty format is taken from
// the extension; anything other than .yaml or .yml is read as JSON.
func readRequest(path, format string) (*model.OptimizationRequest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = "yaml"
		default:
			format = "json"
		}
	}
	var req *model.OptimizationRequest
	switch strings.ToLower(format) {
	case "yaml", "yml":
		req, err = model.DecodeRequestYAML(b)
	case "json":
		req, err = model.DecodeRequest(b)
	default:
		return nil, fmt.Errorf("unknown request format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return req, nil
}
