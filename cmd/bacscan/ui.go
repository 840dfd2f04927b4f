package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/bacscan/internal/bacclient"
	"github.com/tturner/bacscan/internal/config"
	"github.com/tturner/bacscan/internal/logging"
	"github.com/tturner/bacscan/internal/ui"
)

type uiFlags struct {
	configPath string
	skipForm   bool
}

func newUICmd() *cobra.Command {
	flags := &uiFlags{}

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Run discovery with a live terminal view",
		Long: `Run a Who-Is discovery interactively.

A form collects the instance range and timeouts (prefilled from the
config file when one is given), then a live view shows devices as their
I-Am replies arrive. Press q to close the collect window early; the
devices found so far are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file path (default: built-in defaults)")
	cmd.Flags().BoolVar(&flags.skipForm, "no-form", false, "Skip the parameter form and use config values")

	return cmd
}

func runUI(flags *uiFlags) error {
	// The terminal belongs to the view; keep logging out of it.
	log, err := logging.NewLogger(logging.LogLevelSilent, "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	cfg := config.CreateDefaultConfig()
	if flags.configPath != "" {
		cfg, err = config.LoadConfig(flags.configPath, false)
		if err != nil {
			return err
		}
	}
	config.ApplyEnvOverrides(cfg)

	params := ui.Params{
		DeviceIDMin:    cfg.Discovery.DeviceIDMin,
		DeviceIDMax:    cfg.Discovery.DeviceIDMax,
		TimeoutSeconds: cfg.Discovery.APDUTimeoutMs / 1000,
		IdleTimeoutMs:  cfg.Discovery.IdleTimeoutMs,
	}
	if !flags.skipForm {
		values := ui.NewFormValues(params)
		if err := ui.BuildDiscoveryForm(values).Run(); err != nil {
			return fmt.Errorf("parameter form: %w", err)
		}
		params, err = values.Params()
		if err != nil {
			return err
		}
	}

	query := bacclient.Query{
		DeviceIDMin:    params.DeviceIDMin,
		DeviceIDMax:    params.DeviceIDMax,
		IdleTimeout:    time.Duration(params.IdleTimeoutMs) * time.Millisecond,
		SessionTimeout: time.Duration(params.TimeoutSeconds) * time.Second,
	}
	if err := query.Validate(); err != nil {
		return err
	}

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

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	cache := bacclient.NewAddressCache(cfg.Discovery.CacheCapacity)
	sess := bacclient.NewSession(query, link, cache, bacclient.NewDispatcher(cache, log), log)

	ids, state, err := ui.RunLive(ctx, cancel, sess, int64(query.SessionTimeout/time.Second))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Session %s: %d device(s)\n", state, len(ids))
	if len(ids) > 0 {
		return bacclient.WriteDeviceList(os.Stdout, cache)
	}
	return nil
}
