// ABOUTME: DeviceRegistration value type for enrolled U2F authenticators
// ABOUTME: Caller-owned record with key handle, public key, counter, and compromise flag

package u2f

// DeviceRegistration describes one enrolled authenticator. Records are
// owned by the caller: FinishRegistration mints one, and
// FinishAuthentication returns an updated copy for the caller to
// persist in place of the old record. The key handle is unique per
// device per AppID and is the identity used for all matching.
type DeviceRegistration struct {
	// KeyHandle is the authenticator-assigned credential identifier,
	// websafe-base64 encoded.
	KeyHandle string `json:"keyHandle"`

	// PublicKey is the uncompressed P-256 public key (65 bytes) the
	// device signs with.
	PublicKey []byte `json:"publicKey"`

	// AttestationCert is the DER attestation certificate captured at
	// enrollment. Informational; not consulted during authentication.
	AttestationCert []byte `json:"attestationCert,omitempty"`

	// Counter is the device's monotonically increasing usage counter,
	// as of the last successful authentication.
	Counter uint32 `json:"counter"`

	// Compromised marks a device that must never authenticate again.
	// Set by the caller, or by this package on counter regression.
	Compromised bool `json:"compromised,omitempty"`
}

// clone returns an independent copy of the registration.
func (d *DeviceRegistration) clone() *DeviceRegistration {
	c := *d
	c.PublicKey = append([]byte(nil), d.PublicKey...)
	c.AttestationCert = append([]byte(nil), d.AttestationCert...)
	return &c
}

// uncompromised filters devices to those still eligible for ceremonies.
func uncompromised(devices []*DeviceRegistration) []*DeviceRegistration {
	eligible := make([]*DeviceRegistration, 0, len(devices))
	for _, d := range devices {
		if !d.Compromised {
			eligible = append(eligible, d)
		}
	}
	return eligible
}
