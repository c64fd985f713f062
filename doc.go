// Package u2f implements the server side of the FIDO U2F two-factor
// protocol: issuing one-time challenges bound to an AppID and a set of
// enrolled devices, and verifying the authenticator's signed responses.
//
// The package is a pure library. It holds no session state: each Start*
// call returns a request-data bundle that the caller stores (typically
// in its own session layer, or in a PendingStore), relays to the
// client, and hands back to the matching Finish* call together with the
// authenticator's response. Device records are caller-owned values;
// successful operations return new or updated copies for the caller to
// persist, and never mutate the caller's records in place.
package u2f
