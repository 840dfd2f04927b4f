package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapDatalinkError wraps datalink/socket errors with user-friendly context
func WrapDatalinkError(err error, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to open BACnet/IP datalink on UDP port %d", port),
		Reason:  extractDatalinkReason(err),
		Hint:    "Another BACnet application may already be bound to this port, or the interface may be down",
		Try:     "BACNET_IP_PORT=47809 bacscan whois",
		Err:     err,
	}
}

// WrapBBMDError wraps foreign-device registration errors with user-friendly context
func WrapBBMDError(err error, address string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to register with BBMD at %s:%d", address, port),
		Reason:  extractDatalinkReason(err),
		Hint:    "The BBMD may be unreachable, or foreign-device registration may be disabled on it",
		Try:     "Check bbmd_address/bbmd_port in your config, or unset BACNET_BBMD_ADDRESS for local broadcast",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Run 'bacscan init-config' to generate a default configuration file",
		Try:     fmt.Sprintf("bacscan init-config --path %s", configPath),
		Err:     err,
	}
}

func extractDatalinkReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") {
		return "UDP port already in use - another BACnet client or stack is running"
	}
	if strings.Contains(errStr, "permission denied") {
		return "Permission denied - binding this port may require elevated privileges"
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Operation timed out - peer may be offline or unreachable"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or peer unreachable"
	}
	if strings.Contains(errStr, "network is unreachable") {
		return "Network unreachable - no usable interface for the broadcast address"
	}

	return "Datalink operation failed"
}
