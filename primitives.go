// ABOUTME: Verification primitives: raw blob parsing and ECDSA verification
// ABOUTME: Implements the per-request crypto the orchestrator delegates to

package u2f

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

const (
	registrationReserved = 0x05
	publicKeyLength      = 65
	userPresenceFlag     = 0x01
)

// Primitives performs the cryptographic half of each ceremony step. The
// orchestrator is the only caller; the split exists so tests (and
// callers with HSM-backed verification) can substitute their own.
type Primitives interface {
	// StartRegistration wraps a fresh challenge for enrollment under
	// appID. It does not contact any device.
	StartRegistration(appID string) (*RegisterRequest, error)

	// StartAuthentication wraps a fresh challenge with device's key
	// handle under appID. It does not contact any device.
	StartAuthentication(appID string, device *DeviceRegistration) (*SignRequest, error)

	// FinishRegistration verifies resp against req and, on success,
	// derives the new device registration (counter 0, uncompromised).
	FinishRegistration(req *RegisterRequest, resp *RegisterResponse, facets []string) (*DeviceRegistration, error)

	// FinishAuthentication verifies resp against req using device's
	// stored public key and returns a copy of device with the counter
	// advanced. Counter regression yields a DeviceCompromisedError
	// whose Device copy has Compromised set.
	FinishAuthentication(req *SignRequest, resp *SignResponse, device *DeviceRegistration, facets []string) (*DeviceRegistration, error)
}

// basicPrimitives is the stock implementation: P-256 ECDSA over the raw
// U2F registration and signature blobs.
type basicPrimitives struct {
	challenges ChallengeGenerator
}

// NewPrimitives returns the stock Primitives implementation drawing
// challenges from gen.
func NewPrimitives(gen ChallengeGenerator) Primitives {
	return &basicPrimitives{challenges: gen}
}

func (p *basicPrimitives) StartRegistration(appID string) (*RegisterRequest, error) {
	challenge, err := p.challenges.GenerateChallenge()
	if err != nil {
		return nil, err
	}
	return &RegisterRequest{
		Version:   Version,
		Challenge: websafeEncode(challenge),
		AppID:     appID,
	}, nil
}

func (p *basicPrimitives) StartAuthentication(appID string, device *DeviceRegistration) (*SignRequest, error) {
	challenge, err := p.challenges.GenerateChallenge()
	if err != nil {
		return nil, err
	}
	return &SignRequest{
		Version:   Version,
		Challenge: websafeEncode(challenge),
		KeyHandle: device.KeyHandle,
		AppID:     appID,
	}, nil
}

func (p *basicPrimitives) FinishRegistration(req *RegisterRequest, resp *RegisterResponse, facets []string) (*DeviceRegistration, error) {
	clientDataRaw, cd, err := parseClientData(resp.ClientData)
	if err != nil {
		return nil, err
	}
	if err := cd.verify(clientDataTypeRegister, req.Challenge, facets); err != nil {
		return nil, err
	}

	blob, err := websafeDecode(resp.RegistrationData)
	if err != nil {
		return nil, err
	}
	reg, err := parseRawRegistration(blob)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(reg.attestationCert)
	if err != nil {
		return nil, fmt.Errorf("%w: attestation certificate: %v", ErrBadInput, err)
	}
	attKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: attestation certificate key is not ECDSA", ErrBadInput)
	}

	// Enrollment signature base per FIDO U2F raw message formats §4.3.
	appParam := sha256.Sum256([]byte(req.AppID))
	challengeParam := sha256.Sum256(clientDataRaw)
	signed := make([]byte, 0, 1+32+32+len(reg.keyHandle)+len(reg.publicKey))
	signed = append(signed, 0x00)
	signed = append(signed, appParam[:]...)
	signed = append(signed, challengeParam[:]...)
	signed = append(signed, reg.keyHandle...)
	signed = append(signed, reg.publicKey...)
	digest := sha256.Sum256(signed)
	if !ecdsa.VerifyASN1(attKey, digest[:], reg.signature) {
		return nil, fmt.Errorf("%w: enrollment signature verification failed", ErrBadInput)
	}

	return &DeviceRegistration{
		KeyHandle:       websafeEncode(reg.keyHandle),
		PublicKey:       reg.publicKey,
		AttestationCert: reg.attestationCert,
		Counter:         0,
		Compromised:     false,
	}, nil
}

func (p *basicPrimitives) FinishAuthentication(req *SignRequest, resp *SignResponse, device *DeviceRegistration, facets []string) (*DeviceRegistration, error) {
	if resp.KeyHandle != req.KeyHandle {
		return nil, fmt.Errorf("%w: response key handle does not match the issued request", ErrBadInput)
	}

	clientDataRaw, cd, err := parseClientData(resp.ClientData)
	if err != nil {
		return nil, err
	}
	if err := cd.verify(clientDataTypeSign, req.Challenge, facets); err != nil {
		return nil, err
	}

	blob, err := websafeDecode(resp.SignatureData)
	if err != nil {
		return nil, err
	}
	sig, err := parseRawSignature(blob)
	if err != nil {
		return nil, err
	}

	pub, err := parsePublicKey(device.PublicKey)
	if err != nil {
		return nil, err
	}

	// Authentication signature base per FIDO U2F raw message formats §5.4.
	appParam := sha256.Sum256([]byte(req.AppID))
	challengeParam := sha256.Sum256(clientDataRaw)
	signed := make([]byte, 0, 32+1+4+32)
	signed = append(signed, appParam[:]...)
	signed = append(signed, sig.userPresence)
	signed = binary.BigEndian.AppendUint32(signed, sig.counter)
	signed = append(signed, challengeParam[:]...)
	digest := sha256.Sum256(signed)
	if !ecdsa.VerifyASN1(pub, digest[:], sig.signature) {
		return nil, fmt.Errorf("%w: signature verification failed", ErrBadInput)
	}

	// A counter at or below the stored value means the key has been
	// cloned (or the device reset). Surface it as a compromise, never
	// as a plain input error.
	if sig.counter <= device.Counter {
		flagged := device.clone()
		flagged.Compromised = true
		return nil, &DeviceCompromisedError{Device: flagged}
	}

	updated := device.clone()
	updated.Counter = sig.counter
	return updated, nil
}

// rawRegistration is the decoded registration blob.
type rawRegistration struct {
	publicKey       []byte
	keyHandle       []byte
	attestationCert []byte
	signature       []byte
}

// parseRawRegistration splits the raw enrollment blob: a reserved byte,
// the 65-byte public key, the length-prefixed key handle, the DER
// attestation certificate, and the trailing signature.
func parseRawRegistration(blob []byte) (*rawRegistration, error) {
	if len(blob) < 1+publicKeyLength+1 {
		return nil, fmt.Errorf("%w: registration data too short", ErrBadInput)
	}
	if blob[0] != registrationReserved {
		return nil, fmt.Errorf("%w: registration data has reserved byte %#x, want %#x", ErrBadInput, blob[0], registrationReserved)
	}
	publicKey := blob[1 : 1+publicKeyLength]
	rest := blob[1+publicKeyLength:]

	khLen := int(rest[0])
	rest = rest[1:]
	if len(rest) < khLen {
		return nil, fmt.Errorf("%w: registration data truncated inside key handle", ErrBadInput)
	}
	keyHandle := rest[:khLen]
	rest = rest[khLen:]

	// The certificate has no length prefix; take one DER SEQUENCE
	// element and treat whatever follows as the signature.
	input := cryptobyte.String(rest)
	var cert cryptobyte.String
	if !input.ReadASN1Element(&cert, cbasn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: registration data has malformed attestation certificate", ErrBadInput)
	}
	signature := []byte(input)
	if len(signature) == 0 {
		return nil, fmt.Errorf("%w: registration data missing signature", ErrBadInput)
	}

	return &rawRegistration{
		publicKey:       append([]byte(nil), publicKey...),
		keyHandle:       append([]byte(nil), keyHandle...),
		attestationCert: append([]byte(nil), cert...),
		signature:       append([]byte(nil), signature...),
	}, nil
}

// rawSignature is the decoded authentication blob.
type rawSignature struct {
	userPresence byte
	counter      uint32
	signature    []byte
}

// parseRawSignature splits the raw authentication blob: user-presence
// byte, big-endian counter, and the trailing signature. The presence
// bit must be set; an assertion without a present user is rejected.
func parseRawSignature(blob []byte) (*rawSignature, error) {
	if len(blob) < 1+4+1 {
		return nil, fmt.Errorf("%w: signature data too short", ErrBadInput)
	}
	if blob[0]&userPresenceFlag == 0 {
		return nil, fmt.Errorf("%w: user presence not asserted", ErrBadInput)
	}
	return &rawSignature{
		userPresence: blob[0],
		counter:      binary.BigEndian.Uint32(blob[1:5]),
		signature:    append([]byte(nil), blob[5:]...),
	}, nil
}

// parsePublicKey decodes a stored uncompressed P-256 point.
func parsePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	if len(b) != publicKeyLength || b[0] != 0x04 {
		return nil, fmt.Errorf("%w: stored public key is not an uncompressed P-256 point", ErrBadInput)
	}
	x := new(big.Int).SetBytes(b[1:33])
	y := new(big.Int).SetBytes(b[33:65])
	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, fmt.Errorf("%w: stored public key is not on P-256", ErrBadInput)
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}
