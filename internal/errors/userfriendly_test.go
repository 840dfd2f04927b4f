package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserFriendlyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      UserFriendlyError
		contains []string
	}{
		{
			name:     "message only",
			err:      UserFriendlyError{Message: "something broke"},
			contains: []string{"something broke"},
		},
		{
			name: "all fields",
			err: UserFriendlyError{
				Message: "bind failed",
				Reason:  "port in use",
				Hint:    "check for another stack",
				Try:     "bacscan whois",
				Err:     fmt.Errorf("listen udp: address already in use"),
			},
			contains: []string{"bind failed", "Reason: port in use", "Hint: check for another stack", "Try: bacscan whois", "Details: listen udp: address already in use"},
		},
		{
			name: "no reason",
			err: UserFriendlyError{
				Message: "failed",
				Hint:    "hint here",
			},
			contains: []string{"failed", "Hint: hint here"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want to contain %q", msg, s)
				}
			}
		})
	}
}

func TestUserFriendlyError_ErrorOmitsEmptyFields(t *testing.T) {
	err := UserFriendlyError{Message: "msg"}
	msg := err.Error()
	if strings.Contains(msg, "Reason:") || strings.Contains(msg, "Hint:") || strings.Contains(msg, "Try:") || strings.Contains(msg, "Details:") {
		t.Errorf("Error() = %q, should not contain empty fields", msg)
	}
}

func TestWrapDatalinkError(t *testing.T) {
	if WrapDatalinkError(nil, 47808) != nil {
		t.Error("nil error should stay nil")
	}

	wrapped := WrapDatalinkError(fmt.Errorf("listen udp :47808: bind: address already in use"), 47808)
	var ufe UserFriendlyError
	if !errors.As(wrapped, &ufe) {
		t.Fatalf("expected UserFriendlyError, got %T", wrapped)
	}
	if !strings.Contains(ufe.Message, "47808") {
		t.Errorf("message should name the port: %q", ufe.Message)
	}
	if !strings.Contains(ufe.Reason, "already in use") {
		t.Errorf("reason should explain port conflict: %q", ufe.Reason)
	}
}

func TestWrapConfigError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("parse YAML: bad indent")
	wrapped := WrapConfigError(inner, "bacscan.yaml")
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error should unwrap to the original")
	}
}

func TestExtractDatalinkReason(t *testing.T) {
	tests := []struct {
		errText string
		want    string
	}{
		{"read udp: i/o timeout", "timed out"},
		{"write udp: network is unreachable", "Network unreachable"},
		{"something weird", "Datalink operation failed"},
	}
	for _, tt := range tests {
		got := extractDatalinkReason(fmt.Errorf("%s", tt.errText))
		if !strings.Contains(got, tt.want) {
			t.Errorf("extractDatalinkReason(%q) = %q, want contains %q", tt.errText, got, tt.want)
		}
	}
}
