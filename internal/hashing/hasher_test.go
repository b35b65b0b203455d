package hashing

import (
	"testing"

	"agroguardian-api/internal/config"
)

func testHasher(pepperSecret string) *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8 * 1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			PepperSecret:      pepperSecret,
		},
	})
}

func TestHashAndVerifyCode(t *testing.T) {
	h := testHasher("test-pepper")

	result, err := h.HashCode("483920")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}
	if result.Hash == "483920" || result.Hash == "" {
		t.Fatalf("suspicious hash %q", result.Hash)
	}
	if result.PepperVersion != 1 {
		t.Errorf("pepper version = %d, want 1", result.PepperVersion)
	}

	ok, err := h.VerifyCode("483920", result)
	if err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}
	if !ok {
		t.Error("correct code did not verify")
	}

	ok, err = h.VerifyCode("483921", result)
	if err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}
	if ok {
		t.Error("wrong code verified")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := testHasher("test-pepper")

	a, err := h.HashCode("483920")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}
	b, err := h.HashCode("483920")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}
	if a.Hash == b.Hash {
		t.Error("same code hashed to the same value twice")
	}
	if a.Salt == b.Salt {
		t.Error("salt reused")
	}
}

func TestDerivedPepperSurvivesRestart(t *testing.T) {
	// Two hashers with the same secret stand in for the process before
	// and after a restart.
	before := testHasher("shared-secret")
	after := testHasher("shared-secret")

	result, err := before.HashCode("112233")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}

	ok, err := after.VerifyCode("112233", result)
	if err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}
	if !ok {
		t.Error("hash from previous process did not verify")
	}
}

func TestDifferentSecretsDoNotVerify(t *testing.T) {
	a := testHasher("secret-a")
	b := testHasher("secret-b")

	result, err := a.HashCode("112233")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}

	ok, err := b.VerifyCode("112233", result)
	if err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}
	if ok {
		t.Error("hash verified under a different pepper secret")
	}
}

func TestVerifyRejectsUnknownPepperVersion(t *testing.T) {
	h := testHasher("test-pepper")

	result, err := h.HashCode("112233")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}
	result.PepperVersion = 99

	if _, err := h.VerifyCode("112233", result); err == nil {
		t.Error("expected error for unknown pepper version")
	}
}

func TestVerifyRejectsGarbageEncoding(t *testing.T) {
	h := testHasher("test-pepper")

	if _, err := h.VerifyCode("112233", &HashResult{
		Hash:          "***",
		Salt:          "***",
		PepperVersion: 1,
	}); err == nil {
		t.Error("expected error for undecodable hash")
	}
}

func TestRotatedPepperStillVerifiesOldHashes(t *testing.T) {
	h := testHasher("test-pepper")

	result, err := h.HashCode("654321")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}

	h.rotatePepper()

	ok, err := h.VerifyCode("654321", result)
	if err != nil {
		t.Fatalf("VerifyCode after rotation returned error: %v", err)
	}
	if !ok {
		t.Error("pre-rotation hash did not verify")
	}

	fresh, err := h.HashCode("654321")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}
	if fresh.PepperVersion != result.PepperVersion+1 {
		t.Errorf("fresh pepper version = %d, want %d", fresh.PepperVersion, result.PepperVersion+1)
	}
}
