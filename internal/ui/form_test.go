package ui

import (
	"strings"
	"testing"

	"github.com/tturner/bacscan/internal/bacclient"
)

func TestFormValuesParams(t *testing.T) {
	v := &FormValues{
		DeviceIDMin:    "100",
		DeviceIDMax:    " 4194303 ",
		TimeoutSeconds: "10",
		IdleTimeoutMs:  "250",
	}

	p, err := v.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if p.DeviceIDMin != 100 || p.DeviceIDMax != bacclient.MaxInstance {
		t.Errorf("range [%d, %d], want [100, %d]", p.DeviceIDMin, p.DeviceIDMax, bacclient.MaxInstance)
	}
	if p.TimeoutSeconds != 10 || p.IdleTimeoutMs != 250 {
		t.Errorf("timeouts %d/%d, want 10/250", p.TimeoutSeconds, p.IdleTimeoutMs)
	}
}

func TestFormValuesParamsErrors(t *testing.T) {
	base := FormValues{
		DeviceIDMin:    "0",
		DeviceIDMax:    "4194303",
		TimeoutSeconds: "3",
		IdleTimeoutMs:  "100",
	}

	tests := []struct {
		name    string
		mutate  func(*FormValues)
		wantErr string
	}{
		{"min not a number", func(v *FormValues) { v.DeviceIDMin = "abc" }, "low instance"},
		{"max above limit", func(v *FormValues) { v.DeviceIDMax = "4194304" }, "maximum"},
		{"min above max", func(v *FormValues) { v.DeviceIDMin = "10"; v.DeviceIDMax = "5" }, "exceeds"},
		{"negative timeout", func(v *FormValues) { v.TimeoutSeconds = "-1" }, "timeout"},
		{"zero idle timeout", func(v *FormValues) { v.IdleTimeoutMs = "0" }, "idle timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := base
			tt.mutate(&v)
			_, err := v.Params()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewFormValuesRoundTrip(t *testing.T) {
	want := Params{DeviceIDMin: 5, DeviceIDMax: 99, TimeoutSeconds: 3, IdleTimeoutMs: 100}
	got, err := NewFormValues(want).Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestValidators(t *testing.T) {
	if err := validateInstance("4194303"); err != nil {
		t.Errorf("max instance rejected: %v", err)
	}
	if err := validateInstance("4194304"); err == nil {
		t.Error("instance above the limit accepted")
	}
	if err := validateNonNegative("0"); err != nil {
		t.Errorf("zero rejected: %v", err)
	}
	if err := validatePositive("0"); err == nil {
		t.Error("zero accepted as positive")
	}
}
