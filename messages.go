// ABOUTME: U2F wire message types and signed client-data validation
// ABOUTME: JSON shapes follow the U2F v1.1 JavaScript API field names

package u2f

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Version is the protocol version advertised in every request.
const Version = "U2F_V2"

// Client-data type strings fixed by the U2F specification.
const (
	clientDataTypeRegister = "navigator.id.finishEnrollment"
	clientDataTypeSign     = "navigator.id.getAssertion"
)

// RegisterRequest asks the authenticator to enroll a new credential for
// an AppID. One is issued per StartRegistration call.
type RegisterRequest struct {
	Version   string `json:"version"`
	Challenge string `json:"challenge"`
	AppID     string `json:"appId"`
}

// RegisterResponse is the authenticator's answer to a RegisterRequest.
// Both fields are websafe-base64: the raw registration blob and the
// signed client data.
type RegisterResponse struct {
	RegistrationData string `json:"registrationData"`
	ClientData       string `json:"clientData"`
}

// SignRequest asks a specific enrolled device to prove possession of
// its key. Each carries its own fresh challenge.
type SignRequest struct {
	Version   string `json:"version"`
	Challenge string `json:"challenge"`
	KeyHandle string `json:"keyHandle"`
	AppID     string `json:"appId"`
}

// SignResponse is the authenticator's answer to a SignRequest. The key
// handle identifies which offered device signed.
type SignResponse struct {
	KeyHandle     string `json:"keyHandle"`
	SignatureData string `json:"signatureData"`
	ClientData    string `json:"clientData"`
}

// clientData is the JSON structure the client signs over. The origin
// field is what facet validation checks.
type clientData struct {
	Typ       string `json:"typ"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// websafeEncode encodes bytes as unpadded URL-safe base64, the encoding
// U2F uses for every binary field.
func websafeEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func websafeDecode(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: websafe base64: %v", ErrBadInput, err)
	}
	return b, nil
}

// parseClientData decodes the websafe-base64 client data and returns
// both the raw bytes (needed for signature bases) and the parsed form.
func parseClientData(encoded string) ([]byte, *clientData, error) {
	raw, err := websafeDecode(encoded)
	if err != nil {
		return nil, nil, err
	}
	var cd clientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, nil, fmt.Errorf("%w: client data: %v", ErrBadInput, err)
	}
	return raw, &cd, nil
}

// verify checks the fixed type string, that the signed challenge is the
// one this ceremony issued, and facet membership. A nil facet set means
// no origin restriction; a non-nil empty set rejects every origin.
func (cd *clientData) verify(typ, challenge string, facets []string) error {
	if cd.Typ != typ {
		return fmt.Errorf("%w: client data type %q, want %q", ErrBadInput, cd.Typ, typ)
	}
	if cd.Challenge != challenge {
		return fmt.Errorf("%w: response challenge does not match the issued challenge", ErrBadInput)
	}
	if facets == nil {
		return nil
	}
	for _, f := range facets {
		if cd.Origin == f {
			return nil
		}
	}
	return fmt.Errorf("%w: origin %q is not an allowed facet", ErrBadInput, cd.Origin)
}
