// Package main provides the entry point for the trafwise agent. It captures
// packets on one interface, attributes them to local processes, and prints
// the per-process byte totals at shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trafwise/agent_traffic/probe"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Config holds the agent configuration.
type Config struct {
	Interface    string
	PacketCount  int
	Duration     time.Duration
	ResolverMode string // snapshot, live
	HTTPAddr     string
	OutputFormat string // table, line, json
	OutputFile   string
	Verbose      bool
}

func main() {
	cfg := parseFlags()

	if cfg.Verbose {
		log.Printf("trafwise %s (built: %s, commit: %s)", Version, BuildTime, GitCommit)
		log.Printf("Configuration: %+v", cfg)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	showVersion := flag.Bool("version", false, "Show version information")

	flag.StringVar(&cfg.Interface, "interface", "", "Network interface to capture on (default: auto-detect)")
	flag.IntVar(&cfg.PacketCount, "count", 100, "Stop after this many captured packets (0 = unbounded)")
	flag.DurationVar(&cfg.Duration, "duration", 0, "Stop after this long (0 = until count or signal)")
	flag.StringVar(&cfg.ResolverMode, "resolver", "snapshot", "Port resolver: snapshot, live")
	flag.StringVar(&cfg.HTTPAddr, "http", "", "Serve live counters on this address (empty = disabled)")
	flag.StringVar(&cfg.OutputFormat, "format", "table", "Report format: table, line, json")
	flag.StringVar(&cfg.OutputFile, "output", "", "Report file (default: stdout)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Log per-packet diagnostics")

	flag.Parse()

	if *showVersion {
		fmt.Printf("trafwise %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	return cfg
}

// validFormat reports whether s names a supported report format.
func validFormat(s string) bool {
	switch s {
	case "table", "line", "json":
		return true
	}
	return false
}

// buildResolver assembles the port resolver chain for the session. The
// snapshot is mandatory; the live tracker is layered in front of it when
// requested and the kernel supports the tracepoint. A closer is returned for
// the tracker's kernel resources, nil when only the snapshot is used.
func buildResolver(ctx context.Context, cfg *Config) (probe.Resolver, func() error, error) {
	snap, err := probe.NewSnapshotResolver(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to snapshot the socket table: %w", err)
	}
	if cfg.Verbose {
		log.Printf("Port snapshot: %d attributed ports", snap.Len())
	}

	if cfg.ResolverMode != "live" {
		return snap, nil, nil
	}

	kv, err := probe.GetKernelVersion()
	if err != nil || !kv.SupportsSockTracepoint() {
		log.Printf("Warning: kernel does not support live port tracking, using snapshot only")
		return snap, nil, nil
	}
	tracker, err := probe.NewLivePortTracker()
	if err != nil {
		log.Printf("Warning: live port tracking unavailable (%v), using snapshot only", err)
		return snap, nil, nil
	}
	return probe.ChainResolver{tracker, snap}, tracker.Close, nil
}

func run(ctx context.Context, cfg *Config) error {
	if !validFormat(cfg.OutputFormat) {
		return fmt.Errorf("unknown report format: %s", cfg.OutputFormat)
	}

	var output *os.File
	var err error
	if cfg.OutputFile != "" {
		output, err = os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	// Startup resource acquisition: everything below is fatal. Per-packet
	// problems during capture never are.
	local, err := probe.DiscoverLocalAddrs()
	if err != nil {
		return fmt.Errorf("failed to discover local addresses: %w", err)
	}
	if cfg.Verbose {
		log.Printf("Local addresses: %v", local.Addrs())
	}

	resolver, closeResolver, err := buildResolver(ctx, cfg)
	if err != nil {
		return err
	}
	if closeResolver != nil {
		defer func() {
			if err := closeResolver(); err != nil {
				log.Printf("Warning: failed to close port tracker: %v", err)
			}
		}()
	}

	table := probe.NewTable(resolver)
	pipeline := probe.NewPipeline(local, table, cfg.Verbose)

	if cfg.HTTPAddr != "" {
		monitor := probe.NewMonitor(cfg.HTTPAddr, table, pipeline)
		monitorErr := make(chan error, 1)
		monitor.Start(monitorErr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := monitor.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: failed to stop monitor: %v", err)
			}
		}()
		if cfg.Verbose {
			log.Printf("Monitor listening on %s", cfg.HTTPAddr)
		}
	}

	ifaceName := cfg.Interface
	if ifaceName == "" {
		iface, err := probe.DefaultInterface()
		if err != nil {
			return fmt.Errorf("failed to find a capture interface: %w", err)
		}
		ifaceName = iface.Name
	}

	sniffer, err := probe.NewSniffer(ifaceName, probe.WithPacketLimit(cfg.PacketCount))
	if err != nil {
		return err
	}

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	log.Printf("Capturing on %s (count=%d)", ifaceName, cfg.PacketCount)
	delivered, err := sniffer.Run(ctx, pipeline.HandleFrame)
	if err != nil {
		return err
	}

	stats := pipeline.Stats()
	log.Printf("Capture complete: %d frames, %d transport, %d parse failures, %d foreign",
		delivered, stats.Transport, stats.ParseFailures, stats.NoMatch)

	return probe.WriteReport(output, table.Snapshot(), cfg.OutputFormat, time.Now())
}
