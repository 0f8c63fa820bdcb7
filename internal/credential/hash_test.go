package credential

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func hashAtCost(plaintext string, cost int) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	return string(out), err
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	verifier, err := Hash("correct horse battery staple", CategoryStandard)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !Verify("correct horse battery staple", verifier) {
		t.Error("Verify() = false for the hashed plaintext")
	}
	if Verify("wrong password", verifier) {
		t.Error("Verify() = true for an incorrect plaintext")
	}
}

func TestHashProducesDistinctVerifiers(t *testing.T) {
	a, err := Hash("same plaintext value", CategoryStandard)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := Hash("same plaintext value", CategoryStandard)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same plaintext should differ (distinct salts)")
	}
	if !Verify("same plaintext value", a) || !Verify("same plaintext value", b) {
		t.Error("both verifiers should verify the original plaintext")
	}
}

func TestFreshVerifiersDoNotNeedRehash(t *testing.T) {
	std, err := Hash("an admin-grade password", CategoryStandard)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	adm, err := Hash("an admin-grade password", CategoryAdmin)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if NeedsRehash(std, CategoryStandard) {
		t.Error("freshly hashed standard verifier should not need rehash at its own category")
	}
	if NeedsRehash(adm, CategoryAdmin) {
		t.Error("freshly hashed admin verifier should not need rehash at its own category")
	}
}

func TestNeedsRehashDetectsLowerCost(t *testing.T) {
	low, err := hashAtCost("legacy password", 4)
	if err != nil {
		t.Fatalf("hashAtCost: %v", err)
	}
	if !NeedsRehash(low, CategoryStandard) {
		t.Error("a cost-4 verifier should need rehash against the standard category")
	}
}

func TestVerifyRejectsMalformedVerifier(t *testing.T) {
	if Verify("anything", "not-a-bcrypt-hash") {
		t.Error("Verify() should reject a malformed verifier")
	}
}
