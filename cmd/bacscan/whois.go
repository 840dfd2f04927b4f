package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/bacscan/internal/bacclient"
	"github.com/tturner/bacscan/internal/capture"
	"github.com/tturner/bacscan/internal/config"
	"github.com/tturner/bacscan/internal/logging"
)

type whoisFlags struct {
	configPath  string
	deviceIDMin uint32
	deviceIDMax uint32
	timeout     time.Duration
	idleTimeout time.Duration
	output      string
	pcapPath    string
	verbose     bool
	debug       bool
}

func newWhoIsCmd() *cobra.Command {
	flags := &whoisFlags{}

	cmd := &cobra.Command{
		Use:   "whois",
		Short: "Discover BACnet devices with a Who-Is broadcast",
		Long: `Broadcast one Who-Is request and collect I-Am replies until the timeout
expires.

The command will:
  - Send a single global-broadcast Who-Is on UDP port 47808
  - Poll for replies, recording each distinct device once
  - Print the discovered device instance numbers

The broadcast is never repeated. An empty result after the timeout
simply means no device in the requested instance range answered.

A BACnet Abort or Reject from a peer ends the collection early; the
devices found up to that point are still printed and the command exits
successfully, since partial results are results.

Use --min and --max to narrow the instance range, which keeps large
sites from answering all at once. Use --config to load network settings
(port, interface, BBMD registration) from a YAML file; BACNET_*
environment variables override the file.`,
		Example: `  # Discover everything on the local broadcast domain (3s window)
  bacscan whois

  # Narrow the instance range and extend the collect window
  bacscan whois --min 1000 --max 1999 --timeout 30s

  # Human-readable table with addresses
  bacscan whois --output text

  # Record the exchange for Wireshark
  bacscan whois --pcap discovery.pcap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoIs(cmd, flags)
		},
	}

	// Optional flags
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file path (default: built-in defaults)")
	cmd.Flags().Uint32Var(&flags.deviceIDMin, "min", 0, "Low device instance limit")
	cmd.Flags().Uint32Var(&flags.deviceIDMax, "max", bacclient.MaxInstance, "High device instance limit")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 3*time.Second, "Reply collection window (default 3s)")
	cmd.Flags().DurationVar(&flags.idleTimeout, "idle-timeout", 100*time.Millisecond, "Receive poll interval")
	cmd.Flags().StringVar(&flags.output, "output", "list", "Output format: list|text|json (default \"list\")")
	cmd.Flags().StringVar(&flags.pcapPath, "pcap", "", "Write the exchange to a pcap file")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Log every reply as it arrives")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Log frame hex dumps and discarded traffic")

	return cmd
}

func runWhoIs(cmd *cobra.Command, flags *whoisFlags) error {
	// Validate output format
	if flags.output != "list" && flags.output != "text" && flags.output != "json" {
		return fmt.Errorf("invalid output format '%s'; must be 'list', 'text', or 'json'", flags.output)
	}

	level := logging.LogLevelError
	if flags.verbose {
		level = logging.LogLevelVerbose
	}
	if flags.debug {
		level = logging.LogLevelDebug
	}
	log, err := logging.NewLogger(level, "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	cfg, err := effectiveConfig(flags, log)
	if err != nil {
		return err
	}

	query := bacclient.Query{
		DeviceIDMin:    cfg.Discovery.DeviceIDMin,
		DeviceIDMax:    cfg.Discovery.DeviceIDMax,
		IdleTimeout:    time.Duration(cfg.Discovery.IdleTimeoutMs) * time.Millisecond,
		SessionTimeout: time.Duration(cfg.Discovery.APDUTimeoutMs) * time.Millisecond,
	}
	if cmd.Flags().Changed("min") {
		query.DeviceIDMin = flags.deviceIDMin
	}
	if cmd.Flags().Changed("max") {
		query.DeviceIDMax = flags.deviceIDMax
	}
	if cmd.Flags().Changed("timeout") {
		query.SessionTimeout = flags.timeout
	}
	if cmd.Flags().Changed("idle-timeout") {
		query.IdleTimeout = flags.idleTimeout
	}

	// Catch bad parameters before touching the network.
	if err := query.Validate(); err != nil {
		return err
	}

	log.LogStartup(query.DeviceIDMin, query.DeviceIDMax,
		int(query.SessionTimeout/time.Second), int(query.IdleTimeout/time.Millisecond),
		cfg.Network.Port)

	link, err := bacclient.NewBIPDatalink(bacclient.BIPOptions{
		Port:           cfg.Network.Port,
		Interface:      cfg.Network.Interface,
		BBMDAddress:    cfg.Network.BBMDAddress,
		BBMDPort:       cfg.Network.BBMDPort,
		BBMDTTLSeconds: cfg.Network.BBMDTTLSeconds,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	defer link.Close()

	if flags.pcapPath != "" {
		recorder, err := capture.NewWriter(flags.pcapPath, link.LocalAddr())
		if err != nil {
			return err
		}
		link.SetRecorder(recorder)
		defer func() {
			if cerr := recorder.Close(); cerr != nil {
				log.Error("write pcap file: %v", cerr)
			} else {
				log.Verbose("wrote %d frame(s) to %s", recorder.Count(), flags.pcapPath)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := bacclient.NewAddressCache(cfg.Discovery.CacheCapacity)
	dispatcher := bacclient.NewDispatcher(cache, log)
	sess := bacclient.NewSession(query, link, cache, dispatcher, log)

	_, state, err := sess.Run(ctx)
	if err != nil {
		return fmt.Errorf("discovery session: %w", err)
	}

	if err := writeResults(flags.output, cache, state); err != nil {
		return err
	}

	stats := sess.Stats()
	log.Verbose("session %s: %d datagram(s), %d I-Am, %d duplicate(s), %d unrecognized, %d decode error(s)",
		state, stats.DatagramsReceived, stats.IAmReceived, stats.Duplicates,
		stats.Unrecognized, stats.DecodeErrors)

	// An abort ends collection early but the partial result above is
	// still the answer; exit zero either way.
	return nil
}

// effectiveConfig layers flags over environment over file over
// defaults.
func effectiveConfig(flags *whoisFlags, log *logging.Logger) (*config.Config, error) {
	cfg := config.CreateDefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.LoadConfig(flags.configPath, false)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	for _, name := range config.ApplyEnvOverrides(cfg) {
		log.Verbose("environment override: %s", name)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeResults(format string, cache *bacclient.AddressCache, state bacclient.State) error {
	switch format {
	case "json":
		payload := struct {
			State   string                  `json:"state"`
			Devices []bacclient.ReportEntry `json:"devices"`
		}{
			State:   state.String(),
			Devices: bacclient.Report(cache),
		}
		jsonData, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%s\n", jsonData)
		return nil

	case "text":
		if cache.Size() == 0 {
			fmt.Fprintf(os.Stdout, "No devices discovered (%s)\n", state)
			return nil
		}
		fmt.Fprintf(os.Stdout, "Discovered %d device(s) (%s):\n\n", cache.Size(), state)
		return bacclient.WriteDeviceTable(os.Stdout, cache)

	default:
		// Bare instance numbers, one per line.
		return bacclient.WriteDeviceList(os.Stdout, cache)
	}
}
