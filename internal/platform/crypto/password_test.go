package crypto

import (
	"errors"
	"strings"
	"testing"
)

func fastHasher() *PasswordHasher {
	// Low-cost parameters to keep the test suite fast.
	return NewPasswordHasher(Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := fastHasher()

	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := h.Verify("correct horse battery staple", encoded)
	if err != nil || !ok {
		t.Fatalf("verify correct password: (%v, %v)", ok, err)
	}

	ok, err = h.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("verify wrong password: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestPasswordHasher_SaltedHashesDiffer(t *testing.T) {
	h := fastHasher()

	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestPasswordHasher_VerifyUsesStoredParams(t *testing.T) {
	old := fastHasher()
	encoded, _ := old.Hash("pw")

	// A hasher with different cost must still verify the old hash.
	current := NewPasswordHasher(Argon2Params{Memory: 16 * 1024, Iterations: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32})
	ok, err := current.Verify("pw", encoded)
	if err != nil || !ok {
		t.Fatalf("verify with different params: (%v, %v)", ok, err)
	}
}

func TestPasswordHasher_RejectsMalformedHash(t *testing.T) {
	h := fastHasher()

	for _, bad := range []string{"", "plaintext", "$bcrypt$whatever", "$argon2id$v=19$m=8,t=1,p=1$salt"} {
		if _, err := h.Verify("pw", bad); !errors.Is(err, ErrHashFormat) {
			t.Errorf("hash %q: expected ErrHashFormat, got %v", bad, err)
		}
	}
}

func TestHashToken_StableAndDistinct(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("token hash is not deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("distinct tokens collided")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(HashToken("abc")))
	}
}

func TestGenerateToken_LengthAndUniqueness(t *testing.T) {
	a, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := GenerateToken(32)
	if a == b {
		t.Fatal("two generated tokens are identical")
	}
	if len(a) != 43 { // 32 bytes, raw base64url
		t.Fatalf("unexpected encoded length %d", len(a))
	}
}
