// ABOUTME: Error kinds surfaced by U2F ceremony operations
// ABOUTME: Distinguishes bad input, empty device sets, and compromised devices

package u2f

import (
	"errors"
	"fmt"
)

// ErrBadInput is returned when a response is malformed, fails
// cryptographic verification, names an unknown key handle or challenge,
// or claims an origin outside the allowed facets. Retrying without a
// new ceremony cannot succeed.
var ErrBadInput = errors.New("invalid U2F input")

// ErrNoDevicesRegistered is returned when authentication is started and
// no uncompromised devices remain to authenticate against.
var ErrNoDevicesRegistered = errors.New("no devices registered")

// ErrDeviceCompromised is returned when an otherwise-processable
// response was produced by a device flagged as compromised. It is kept
// distinct from ErrBadInput so callers can audit-log it differently.
var ErrDeviceCompromised = errors.New("device compromised")

// DeviceCompromisedError carries the device that triggered a
// compromise rejection. Device is a copy with Compromised set, so
// callers can persist the flag (relevant when the compromise was
// detected here, e.g. by counter regression, rather than supplied).
type DeviceCompromisedError struct {
	Device *DeviceRegistration
}

func (e *DeviceCompromisedError) Error() string {
	return fmt.Sprintf("device %s is marked as possibly compromised and cannot be used", e.Device.KeyHandle)
}

func (e *DeviceCompromisedError) Unwrap() error {
	return ErrDeviceCompromised
}
