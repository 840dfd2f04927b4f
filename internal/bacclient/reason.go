package bacclient

// Human-readable abort and reject reason text

import "fmt"

var abortReasonNames = []string{
	"other",
	"buffer-overflow",
	"invalid-apdu-in-this-state",
	"preempted-by-higher-priority-task",
	"segmentation-not-supported",
	"security-error",
	"insufficient-security",
	"window-size-out-of-range",
	"application-exceeded-reply-time",
	"out-of-resources",
	"tsm-timeout",
	"apdu-too-long",
}

var rejectReasonNames = []string{
	"other",
	"buffer-overflow",
	"inconsistent-parameters",
	"invalid-parameter-data-type",
	"invalid-tag",
	"missing-required-parameter",
	"parameter-out-of-range",
	"too-many-arguments",
	"undefined-enumeration",
	"unrecognized-service",
}

// AbortReasonName returns the text for a BACnetAbortReason value.
func AbortReasonName(reason byte) string {
	if int(reason) < len(abortReasonNames) {
		return abortReasonNames[reason]
	}
	return fmt.Sprintf("unknown-abort-reason-%d", reason)
}

// RejectReasonName returns the text for a BACnetRejectReason value.
func RejectReasonName(reason byte) string {
	if int(reason) < len(rejectReasonNames) {
		return rejectReasonNames[reason]
	}
	return fmt.Sprintf("unknown-reject-reason-%d", reason)
}
