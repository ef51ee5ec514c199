package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/edp1096/spicebridge/internal/config"
	"github.com/edp1096/spicebridge/internal/logging"
	"github.com/edp1096/spicebridge/internal/metrics"
	"github.com/edp1096/spicebridge/pkg/circuit"
	"github.com/edp1096/spicebridge/pkg/engine"
	"github.com/edp1096/spicebridge/pkg/mempool"
	"github.com/edp1096/spicebridge/pkg/netlist"
	"github.com/edp1096/spicebridge/pkg/ngspice"
	"github.com/edp1096/spicebridge/pkg/refsim"
	"github.com/edp1096/spicebridge/pkg/results"
)

// options are the command line settings layered over the config file.
type options struct {
	configPath string
	backend    string
	lib        string
	timeout    time.Duration
	analysis   string
	jsonOut    bool
	plotPath   string
	metrics    string
	verbose    bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "config file (default: search ./spicebridge.json, ./.spicebridge.json, ~/.config/spicebridge/config.json)")
	fs.StringVar(&o.backend, "backend", "", "solver backend: wasm or reference")
	fs.StringVar(&o.lib, "lib", "", "path to ngspice.wasm")
	fs.DurationVar(&o.timeout, "timeout", 0, "per-call solver timeout")
	fs.StringVar(&o.analysis, "analysis", "", "analysis directive for JSON circuits, e.g. \".dc V1 0 5 0.1\"")
	fs.BoolVar(&o.jsonOut, "json", false, "print results as JSON")
	fs.StringVar(&o.plotPath, "plot", "", "write a chart of swept results to this file (.png, .svg, .pdf)")
	fs.StringVar(&o.metrics, "metrics", "", "serve prometheus metrics on this address until interrupted")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, errors.New("usage: spice [flags] <deck.cir|circuit.json>")
	}
	return o, nil
}

// loadConfig reads the config file and applies the flags over it.
func loadConfig(o *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if o.lib != "" {
		cfg.Library.Path = o.lib
	}
	if o.timeout > 0 {
		cfg.Timeout = o.timeout.String()
	}
	if o.metrics != "" {
		cfg.Metrics.Listen = o.metrics
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func loaderFor(cfg *config.Config) (ngspice.Loader, error) {
	switch cfg.Backend {
	case config.BackendReference:
		return refsim.Loader(), nil
	case config.BackendWasm:
		var poolOpts []mempool.Option
		if cfg.Pool.MaxOutstanding > 0 {
			poolOpts = append(poolOpts, mempool.WithMaxOutstanding(cfg.Pool.MaxOutstanding))
		}
		if cfg.Pool.MaxIdle > 0 {
			poolOpts = append(poolOpts, mempool.WithMaxIdle(cfg.Pool.MaxIdle))
		}
		return &ngspice.WasmLoader{
			Path:        cfg.Library.Path,
			SearchPaths: cfg.Library.SearchPaths,
			PoolOptions: poolOpts,
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// simulate runs one input file and writes the report to out.
func simulate(ctx context.Context, eng *engine.Engine, path string, o *options, out io.Writer) (*results.SimulationResults, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}

	var res *results.SimulationResults
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var c circuit.Circuit
		if err := json.Unmarshal(content, &c); err != nil {
			return nil, fmt.Errorf("parsing circuit file: %w", err)
		}
		var opts []engine.Option
		if o.analysis != "" {
			a, err := netlist.ParseDirective(o.analysis)
			if err != nil {
				return nil, fmt.Errorf("-analysis: %w", err)
			}
			opts = append(opts, engine.WithAnalysis(a))
		}
		res, err = eng.SimulateCircuit(ctx, &c, opts...)
	} else {
		res, err = eng.SimulateDeck(ctx, string(content))
	}
	if err != nil {
		return nil, err
	}

	if o.jsonOut {
		s, err := res.Struct()
		if err != nil {
			return nil, err
		}
		data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("encoding results: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		printResults(out, res)
	}

	if o.plotPath != "" {
		if err := res.SavePlot(o.plotPath); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return srv
}

func main() {
	o, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := loadConfig(o)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatalf("Error configuring logging: %v", err)
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		log.Fatalf("Error in config: %v", err)
	}
	loader, err := loaderFor(cfg)
	if err != nil {
		log.Fatalf("Error in config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, reg, logger)
		defer srv.Close()
	}

	eng, err := engine.New(ctx, engine.Options{Loader: loader, Timeout: timeout, Logger: logger, Metrics: m})
	if err != nil {
		log.Fatalf("Error starting solver: %v", err)
	}

	res, err := simulate(ctx, eng, flag.Arg(0), o, os.Stdout)
	if cerr := eng.Close(context.Background()); cerr != nil {
		logger.WithError(cerr).Warn("closing solver")
	}
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	if cfg.Metrics.Listen != "" {
		logger.Infof("serving metrics on %s/metrics, interrupt to exit", cfg.Metrics.Listen)
		<-ctx.Done()
	}
	if !res.IsSuccessful() {
		os.Exit(1)
	}
}
