// ABOUTME: Ceremony orchestrator: the four start/finish U2F operations
// ABOUTME: Filters compromised devices and matches responses to issued challenges

package u2f

import (
	"errors"
	"fmt"
	"log/slog"
)

// U2F orchestrates registration and authentication ceremonies. It is
// stateless and safe for concurrent use across ceremonies; a single
// bundle must still not be finished concurrently, since challenge
// single-use is enforced by the caller discarding the bundle.
type U2F struct {
	challenges ChallengeGenerator
	primitives Primitives
	logger     *slog.Logger
}

// Option configures a U2F instance.
type Option func(*U2F)

// WithLogger sets the logger. Compromised-device rejections are logged
// at Warn as a security signal; everything else at Debug.
func WithLogger(logger *slog.Logger) Option {
	return func(u *U2F) { u.logger = logger }
}

// WithChallengeGenerator substitutes the challenge source used by the
// stock primitives.
func WithChallengeGenerator(gen ChallengeGenerator) Option {
	return func(u *U2F) { u.challenges = gen }
}

// WithPrimitives substitutes the verification primitives. The supplied
// implementation then owns challenge generation for its requests.
func WithPrimitives(p Primitives) Option {
	return func(u *U2F) { u.primitives = p }
}

// New returns a U2F orchestrator. With no options it uses crypto/rand
// challenges, the stock ECDSA primitives, and slog.Default().
func New(opts ...Option) *U2F {
	u := &U2F{
		challenges: randomChallengeGenerator{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.primitives == nil {
		u.primitives = NewPrimitives(u.challenges)
	}
	return u
}

// StartRegistration begins enrollment of a new device for appID.
// Compromised devices are excluded entirely; the remaining devices are
// offered as sign requests so the authenticator can detect that it is
// already registered. The returned bundle is for the caller to store
// and relay.
func (u *U2F) StartRegistration(appID string, devices []*DeviceRegistration) (*RegisterRequestData, error) {
	eligible := uncompromised(devices)
	signRequests := make([]*SignRequest, 0, len(eligible))
	for _, device := range eligible {
		req, err := u.primitives.StartAuthentication(appID, device)
		if err != nil {
			return nil, err
		}
		signRequests = append(signRequests, req)
	}

	registerRequest, err := u.primitives.StartRegistration(appID)
	if err != nil {
		return nil, err
	}

	u.logger.Debug("started registration ceremony",
		"app_id", appID, "registered_devices", len(eligible))
	return &RegisterRequestData{
		AppID:            appID,
		RegisterRequests: []*RegisterRequest{registerRequest},
		SignRequests:     signRequests,
	}, nil
}

// StartAuthentication begins authentication against the caller's
// enrolled devices. Compromised devices are excluded; if none remain it
// fails with ErrNoDevicesRegistered. Each eligible device gets a sign
// request with its own fresh challenge.
func (u *U2F) StartAuthentication(appID string, devices []*DeviceRegistration) (*SignRequestData, error) {
	eligible := uncompromised(devices)
	if len(eligible) == 0 {
		return nil, ErrNoDevicesRegistered
	}

	signRequests := make([]*SignRequest, 0, len(eligible))
	for _, device := range eligible {
		req, err := u.primitives.StartAuthentication(appID, device)
		if err != nil {
			return nil, err
		}
		signRequests = append(signRequests, req)
	}

	u.logger.Debug("started authentication ceremony",
		"app_id", appID, "eligible_devices", len(eligible))
	return &SignRequestData{AppID: appID, SignRequests: signRequests}, nil
}

// FinishRegistration completes a registration ceremony. facets, when
// non-nil, restricts which origins may appear in the signed client
// data. On success it returns the newly minted registration (counter 0,
// uncompromised) for the caller to persist. The bundle must be treated
// as consumed whether or not the call succeeds.
func (u *U2F) FinishRegistration(data *RegisterRequestData, resp *RegisterResponse, facets []string) (*DeviceRegistration, error) {
	req, err := data.registerRequest(resp)
	if err != nil {
		return nil, err
	}

	device, err := u.primitives.FinishRegistration(req, resp, facets)
	if err != nil {
		return nil, err
	}

	u.logger.Debug("registered device", "app_id", data.AppID, "key_handle", device.KeyHandle)
	return device, nil
}

// FinishAuthentication completes an authentication ceremony. devices is
// the caller's authoritative (possibly fresher) record set; the
// responding device must both have been challenged in this ceremony and
// still appear there. A device flagged compromised is rejected before
// any signature verification. On success it returns the device with its
// counter advanced, for the caller to persist in place of the old
// record. The bundle must be treated as consumed either way.
func (u *U2F) FinishAuthentication(data *SignRequestData, resp *SignResponse, devices []*DeviceRegistration, facets []string) (*DeviceRegistration, error) {
	req, err := data.signRequest(resp)
	if err != nil {
		return nil, err
	}

	device := findDevice(devices, req.KeyHandle)
	if device == nil {
		return nil, fmt.Errorf("%w: no registered device matches the challenged key handle", ErrBadInput)
	}
	if device.Compromised {
		u.logger.Warn("rejected authentication from compromised device",
			"app_id", data.AppID, "key_handle", device.KeyHandle)
		return nil, &DeviceCompromisedError{Device: device.clone()}
	}

	updated, err := u.primitives.FinishAuthentication(req, resp, device, facets)
	if err != nil {
		var compromised *DeviceCompromisedError
		if errors.As(err, &compromised) {
			u.logger.Warn("device counter regression, flagging as compromised",
				"app_id", data.AppID, "key_handle", device.KeyHandle)
		}
		return nil, err
	}

	u.logger.Debug("authenticated device",
		"app_id", data.AppID, "key_handle", updated.KeyHandle, "counter", updated.Counter)
	return updated, nil
}

// findDevice returns the device with the given key handle, or nil.
// Callers must guarantee key-handle uniqueness per AppID; with
// duplicates the first match wins.
func findDevice(devices []*DeviceRegistration, keyHandle string) *DeviceRegistration {
	for _, d := range devices {
		if d.KeyHandle == keyHandle {
			return d
		}
	}
	return nil
}
