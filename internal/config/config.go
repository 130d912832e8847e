// Package config holds the process-wide settings for pedump and the
// flag parsing that produces them. Unlike the original pe_dump.c, where
// dump_dir, nic_name, max_pe_file_size and the anonymization key live as
// package-level globals mutated from main, a single *Config value is built
// once at start-up and threaded explicitly through the capture engine, the
// flow table and the dumper.
package config

import (
	"fmt"
	"os"

	"github.com/namsral/flag"
)

// Debug verbosity levels, matching the four-level scheme in pe_dump.c.
const (
	Quiet = iota
	Verbose
	VeryVerbose
	VeryVeryVerbose
)

const (
	// DefaultSnapLen is pcap's traditional frame capture cap (PCAP_SNAPLEN).
	DefaultSnapLen = 1514
	// DefaultLRUCapacity bounds the number of concurrently tracked flows.
	DefaultLRUCapacity = 10000
	// DefaultMaxPEFileSizeKB bounds how large a reassembled PE may grow.
	DefaultMaxPEFileSizeKB = 2048
	// DefaultFilter is applied when none is given on the command line.
	DefaultFilter = "tcp"
)

// Config is the fully parsed, immutable-after-start-up configuration for
// a pedump run.
type Config struct {
	Iface       string
	ReadFile    string
	DumpDir     string
	Filter      string
	LRUCapacity int
	MaxPEBytes  int
	DebugLevel  int
	Anonymize   bool
	SnapLen     int
	MetricsAddr string
}

// Parse parses args (main passes os.Args[1:]) into a Config and validates
// the start-up invariants spec.md §6/§7 calls fatal: either -i or -r must
// be given, and -d must name a directory that already exists. Validation
// errors are returned so the caller can print usage and exit non-zero,
// mirroring pe_dump.c's print_usage()+exit(1) start-up checks. A malformed
// flag is handled by the flag set itself (flag.ExitOnError): it prints the
// flag usage and exits the process without returning.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSetWithEnvPrefix(os.Args[0], "PEDUMP", flag.ExitOnError)

	var (
		iface       = fs.String("i", "", "live capture interface")
		readFile    = fs.String("r", "", "offline capture file")
		dumpDir     = fs.String("d", "", "directory dumped PE files are written to (required)")
		filter      = fs.String("f", DefaultFilter, "BPF filter applied to the capture source")
		lruCap      = fs.Int("L", DefaultLRUCapacity, "maximum number of concurrently tracked flows")
		maxPEKB     = fs.Int("K", DefaultMaxPEFileSizeKB, "maximum reassembled PE size, in KiB")
		debugLevel  = fs.Int("D", Quiet, "verbosity level (0=quiet .. 3=very very verbose)")
		noAnonymize = fs.Bool("A", false, "disable client IP anonymization")
		snapLen     = fs.Int("snaplen", DefaultSnapLen, "maximum captured frame length")
		metricsAddr = fs.String("metrics-addr", "", "optional host:port to serve Prometheus metrics on")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Iface:       *iface,
		ReadFile:    *readFile,
		DumpDir:     *dumpDir,
		Filter:      *filter,
		LRUCapacity: *lruCap,
		MaxPEBytes:  *maxPEKB * 1024,
		DebugLevel:  *debugLevel,
		Anonymize:   !*noAnonymize,
		SnapLen:     *snapLen,
		MetricsAddr: *metricsAddr,
	}

	return cfg, cfg.Validate()
}

// Validate enforces the start-up requirements from spec.md §6/§7: exactly
// one capture source must be named and the dump directory must exist. A
// non-positive LRU capacity or max PE size is replaced by its default.
func (c *Config) Validate() error {
	if c.Iface == "" && c.ReadFile == "" {
		return fmt.Errorf("one of -i or -r is required")
	}

	if c.Iface != "" && c.ReadFile != "" {
		return fmt.Errorf("only one of -i or -r may be given")
	}

	if c.DumpDir == "" {
		return fmt.Errorf("-d dump_dir is required")
	}

	info, err := os.Stat(c.DumpDir)
	if err != nil {
		return fmt.Errorf("dump_dir %s not found: %w", c.DumpDir, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("dump_dir %s is not a directory", c.DumpDir)
	}

	if c.LRUCapacity <= 0 {
		c.LRUCapacity = DefaultLRUCapacity
	}

	if c.MaxPEBytes <= 0 {
		c.MaxPEBytes = DefaultMaxPEFileSizeKB * 1024
	}

	return nil
}

// Source is a human-readable name for the offline/live capture source,
// used to build dump filenames (spec.md §4.6: nic segment omitted when
// running against a file source).
func (c *Config) Source() string {
	return c.Iface
}

// IsLive reports whether the configuration targets a live interface
// rather than an offline capture file.
func (c *Config) IsLive() bool {
	return c.Iface != ""
}
