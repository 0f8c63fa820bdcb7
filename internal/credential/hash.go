// Package credential implements the Credential Store: adaptive password
// hashing/verification and the User+Client CRUD that scopes authorization.
package credential

import (
	"crypto/rand"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// Category selects the cost band a verifier is hashed at. The two bands
// (standard, admin) originate from a round-count scheme (roughly 80,000 and
// 160,000 rounds); bcrypt's cost parameter is a power-of-two work-factor
// exponent rather than a literal round count, so each category maps to a
// bcrypt cost instead (see DESIGN.md for the mapping rationale).
type Category int

const (
	// CategoryStandard is used for ordinary user accounts.
	CategoryStandard Category = iota
	// CategoryAdmin is used for elevated accounts and costs more to verify.
	CategoryAdmin
)

const (
	standardCost = 12
	adminCost    = 14
	costJitter   = 1 // ±1, the bcrypt-cost analogue of a ±10% round-count jitter
)

// ErrPasswordTooShort is returned when a plaintext is shorter than the
// configured minimum.
var ErrPasswordTooShort = errors.New("credential: password shorter than minimum length")

// Hash produces a bcrypt verifier for plaintext at category's cost band,
// jittered by ±1 so that verifiers for the same category are not bit-for-bit
// comparable by cost alone. bcrypt embeds its cost and salt in the output,
// so the verifier is self-describing: it can be verified and upgraded
// (see NeedsRehash) without ever being re-issued.
func Hash(plaintext string, category Category) (string, error) {
	cost, err := jitteredCost(category)
	if err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plaintext matches verifier. bcrypt.CompareHashAndPassword
// runs in constant time relative to the stored hash and accepts a verifier
// produced at any bcrypt cost, so legacy verifiers produced under an older
// cost configuration keep working.
func Verify(plaintext, verifier string) bool {
	return bcrypt.CompareHashAndPassword([]byte(verifier), []byte(plaintext)) == nil
}

// NeedsRehash reports whether verifier was produced at a cost below the
// lowest cost Hash currently issues for the category (its base cost minus
// the jitter) and should be re-hashed on next successful authentication.
func NeedsRehash(verifier string, category Category) bool {
	cost, err := bcrypt.Cost([]byte(verifier))
	if err != nil {
		return true
	}
	return cost < minCost(category)-costJitter
}

func minCost(category Category) int {
	if category == CategoryAdmin {
		return adminCost
	}
	return standardCost
}

func jitteredCost(category Category) (int, error) {
	base := minCost(category)
	n, err := rand.Int(rand.Reader, big.NewInt(int64(2*costJitter+1)))
	if err != nil {
		return 0, err
	}
	cost := base - costJitter + int(n.Int64())
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return cost, nil
}
