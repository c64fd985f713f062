// ABOUTME: Challenge generation for U2F ceremonies
// ABOUTME: Produces single-use 256-bit challenges from crypto/rand

package u2f

import (
	"crypto/rand"
	"fmt"
)

// challengeLength is the challenge size in bytes. 256 bits keeps
// guessing infeasible for the lifetime of a pending ceremony.
const challengeLength = 32

// ChallengeGenerator produces single-use random challenges. Every call
// must return a fresh value from a cryptographically secure source; a
// generator must fail rather than fall back to predictable output.
type ChallengeGenerator interface {
	GenerateChallenge() ([]byte, error)
}

// randomChallengeGenerator reads challenges from crypto/rand.
type randomChallengeGenerator struct{}

func (randomChallengeGenerator) GenerateChallenge() ([]byte, error) {
	challenge := make([]byte, challengeLength)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("reading entropy for challenge: %w", err)
	}
	return challenge, nil
}
