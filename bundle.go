// ABOUTME: Pending-ceremony bundles returned by Start* operations
// ABOUTME: Immutable, serializable values that carry issued challenges for matching

package u2f

import "fmt"

// RegisterRequestData is the pending state of one registration
// ceremony: a single enrollment request plus sign requests for every
// device already registered (so the authenticator can refuse to
// re-enroll a credential it already owns). It is a plain value — store
// it, serialize it to the client, and hand it back unmodified to
// FinishRegistration exactly once.
type RegisterRequestData struct {
	AppID            string             `json:"appId"`
	RegisterRequests []*RegisterRequest `json:"registerRequests"`
	SignRequests     []*SignRequest     `json:"authenticateRequests"`
}

// RequestID identifies this bundle for caller-side session storage. It
// is the enrollment challenge, which is unique per ceremony.
func (d *RegisterRequestData) RequestID() string {
	if len(d.RegisterRequests) == 0 {
		return ""
	}
	return d.RegisterRequests[0].Challenge
}

// registerRequest locates the enrollment request the response answers,
// by the challenge echoed in its signed client data. There is exactly
// one candidate by construction; no match means the response was not
// issued for this bundle.
func (d *RegisterRequestData) registerRequest(resp *RegisterResponse) (*RegisterRequest, error) {
	_, cd, err := parseClientData(resp.ClientData)
	if err != nil {
		return nil, err
	}
	byChallenge := make(map[string]*RegisterRequest, len(d.RegisterRequests))
	for _, req := range d.RegisterRequests {
		byChallenge[req.Challenge] = req
	}
	req, ok := byChallenge[cd.Challenge]
	if !ok {
		return nil, fmt.Errorf("%w: response does not match any challenge issued for this registration", ErrBadInput)
	}
	return req, nil
}

// SignRequestData is the pending state of one authentication ceremony:
// one sign request per eligible device, each with its own challenge.
// Same lifecycle as RegisterRequestData.
type SignRequestData struct {
	AppID        string         `json:"appId"`
	SignRequests []*SignRequest `json:"authenticateRequests"`
}

// RequestID identifies this bundle for caller-side session storage.
func (d *SignRequestData) RequestID() string {
	if len(d.SignRequests) == 0 {
		return ""
	}
	return d.SignRequests[0].Challenge
}

// signRequest locates the pending request whose key handle the response
// declares. No match means the responding device was never offered in
// this ceremony, even if the caller knows the device.
func (d *SignRequestData) signRequest(resp *SignResponse) (*SignRequest, error) {
	byKeyHandle := make(map[string]*SignRequest, len(d.SignRequests))
	for _, req := range d.SignRequests {
		byKeyHandle[req.KeyHandle] = req
	}
	req, ok := byKeyHandle[resp.KeyHandle]
	if !ok {
		return nil, fmt.Errorf("%w: response key handle was not challenged in this ceremony", ErrBadInput)
	}
	return req, nil
}
