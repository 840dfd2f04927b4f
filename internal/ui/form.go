package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/tturner/bacscan/internal/bacclient"
)

// Params are the discovery settings collected by the interactive form.
type Params struct {
	DeviceIDMin    uint32
	DeviceIDMax    uint32
	TimeoutSeconds int
	IdleTimeoutMs  int
}

// FormValues holds the raw string state bound to the form inputs.
type FormValues struct {
	DeviceIDMin    string
	DeviceIDMax    string
	TimeoutSeconds string
	IdleTimeoutMs  string
}

// NewFormValues prefills the form from the effective configuration.
func NewFormValues(p Params) *FormValues {
	return &FormValues{
		DeviceIDMin:    strconv.FormatUint(uint64(p.DeviceIDMin), 10),
		DeviceIDMax:    strconv.FormatUint(uint64(p.DeviceIDMax), 10),
		TimeoutSeconds: strconv.Itoa(p.TimeoutSeconds),
		IdleTimeoutMs:  strconv.Itoa(p.IdleTimeoutMs),
	}
}

// BuildDiscoveryForm builds the parameter form shown before a scan.
func BuildDiscoveryForm(v *FormValues) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Low instance limit").
				Description(fmt.Sprintf("First device instance to query (0-%d).", bacclient.MaxInstance)).
				Key("device_id_min").
				Validate(validateInstance).
				Value(&v.DeviceIDMin),
			huh.NewInput().
				Title("High instance limit").
				Description(fmt.Sprintf("Last device instance to query (0-%d).", bacclient.MaxInstance)).
				Key("device_id_max").
				Validate(validateInstance).
				Value(&v.DeviceIDMax),
			huh.NewInput().
				Title("Timeout (seconds)").
				Description("How long to collect replies after the broadcast.").
				Key("timeout_seconds").
				Validate(validateNonNegative).
				Value(&v.TimeoutSeconds),
			huh.NewInput().
				Title("Idle timeout (ms)").
				Description("Receive poll interval; raise this on slow networks.").
				Key("idle_timeout_ms").
				Validate(validatePositive).
				Value(&v.IdleTimeoutMs),
		),
	)
}

// Params parses the collected strings into discovery settings.
func (v *FormValues) Params() (Params, error) {
	low, err := parseInstance(v.DeviceIDMin)
	if err != nil {
		return Params{}, fmt.Errorf("low instance limit: %w", err)
	}
	high, err := parseInstance(v.DeviceIDMax)
	if err != nil {
		return Params{}, fmt.Errorf("high instance limit: %w", err)
	}
	if low > high {
		return Params{}, fmt.Errorf("low instance limit %d exceeds high limit %d", low, high)
	}
	timeout, err := strconv.Atoi(strings.TrimSpace(v.TimeoutSeconds))
	if err != nil || timeout < 0 {
		return Params{}, fmt.Errorf("timeout must be a non-negative number of seconds")
	}
	idle, err := strconv.Atoi(strings.TrimSpace(v.IdleTimeoutMs))
	if err != nil || idle <= 0 {
		return Params{}, fmt.Errorf("idle timeout must be a positive number of milliseconds")
	}
	return Params{
		DeviceIDMin:    low,
		DeviceIDMax:    high,
		TimeoutSeconds: timeout,
		IdleTimeoutMs:  idle,
	}, nil
}

func parseInstance(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not a valid instance number: %q", s)
	}
	if n > uint64(bacclient.MaxInstance) {
		return 0, fmt.Errorf("instance %d exceeds maximum %d", n, bacclient.MaxInstance)
	}
	return uint32(n), nil
}

func validateInstance(s string) error {
	_, err := parseInstance(s)
	return err
}

func validateNonNegative(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("enter a non-negative number")
	}
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}
