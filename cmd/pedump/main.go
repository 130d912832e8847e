// Command pedump is a passive TCP/HTTP flow monitor that reassembles
// HTTP response bodies and dumps out any that begin with a Windows PE
// "MZ" signature. Grounded on main/stop_pcap/print_stats in
// original_source/pe_dump/pe_dump.c, translated onto the teacher's
// flag/zap/pkg-errors ambient stack.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tph5595/amico/internal/anon"
	"github.com/tph5595/amico/internal/capture"
	"github.com/tph5595/amico/internal/config"
	"github.com/tph5595/amico/internal/dump"
	"github.com/tph5595/amico/internal/engine"
	"github.com/tph5595/amico/internal/flow"
	"github.com/tph5595/amico/internal/stats"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		os.Exit(1)
	}

	log := newLogger(cfg.DebugLevel)
	defer log.Sync() //nolint:errcheck

	log.Info("starting pedump",
		zap.Int("max_pe_file_size_kb", cfg.MaxPEBytes/1024),
		zap.Int("lru_cache_size", cfg.LRUCapacity),
		zap.String("dump_dir", cfg.DumpDir),
	)

	source, err := openSource(cfg)
	if err != nil {
		log.Fatal("failed to open capture source", zap.Error(err))
	}
	defer source.Close()

	if cfg.IsLive() {
		log.Info("listening", zap.String("interface", cfg.Iface), zap.String("filter", cfg.Filter))
	} else {
		log.Info("reading from capture file", zap.String("file", cfg.ReadFile), zap.String("filter", cfg.Filter))
	}

	counters := stats.New(cfg.MetricsAddr)
	dumper := dump.New(cfg.DumpDir, cfg.Source(), log, counters)

	anonKey := anon.Key(0)
	if cfg.Anonymize {
		anonKey = anon.NewKey()
	}

	var dispatcher *flow.Dispatcher

	table, err := flow.NewTable(cfg.LRUCapacity, log, func(f *flow.Flow) {
		dispatcher.EvictFlow(f)
	})
	if err != nil {
		log.Fatal("failed to build flow table", zap.Error(err))
	}

	dispatcher = flow.NewDispatcher(table, anonKey, cfg.Anonymize, cfg.MaxPEBytes, log, counters, dumper)

	eng := engine.New(source, dispatcher, counters, log, cfg.SnapLen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleSignals(ctx, cancel, counters, log)

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("capture loop exited with an error", zap.Error(err))
	}

	log.Info("done reading packets, flushing in-flight flows")

	// matches tflow_destroy being run over every still-tracked flow at
	// shutdown, and dump_pe_thread's workers being allowed to finish
	// before the process exits.
	table.Purge()
	dumper.Wait()

	counters.Print(os.Stdout)
}

// handleSignals mirrors stop_pcap/print_stats: SIGUSR1 dumps the running
// counters without interrupting capture, SIGINT/SIGTERM cancel ctx so Run
// returns and shutdown proceeds.
func handleSignals(ctx context.Context, cancel context.CancelFunc, counters *stats.Counters, log *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				counters.Print(os.Stderr)
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info("received shutdown signal", zap.String("signal", sig.String()))
				cancel()
				return
			}
		}
	}
}

// openSource picks the offline-file or live-interface capture source,
// matching main's mutually exclusive -r/-i handling.
func openSource(cfg *config.Config) (capture.Source, error) {
	if cfg.ReadFile != "" {
		return capture.OpenOffline(cfg.ReadFile, cfg.Filter)
	}

	return capture.OpenLive(cfg.Iface, int32(cfg.SnapLen), cfg.Filter)
}

// newLogger builds a zap logger whose level follows -D's four-level
// verbosity scheme (QUIET..VERY_VERY_VERBOSE), matching pe_dump.c's
// debug_level global repurposed as an explicit, passed-in value.
func newLogger(debugLevel int) *zap.Logger {
	level := zapcore.WarnLevel

	switch {
	case debugLevel >= config.VeryVeryVerbose:
		level = zapcore.DebugLevel
	case debugLevel >= config.Verbose:
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		// zap.NewProductionConfig().Build() only fails on a broken sink
		// or encoder name, neither of which this configuration can hit.
		return zap.NewNop()
	}

	return log
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-i nic] [-r pcap_file] -d dump_dir [-f \"pcap_filter\"] [-L lru_cache_size] [-K max_pe_file_size (KB)] [-D debug_level] [-A] [-metrics-addr host:port]\n", os.Args[0])
}
