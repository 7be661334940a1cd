// ABOUTME: Tests for bcrypt credential hashing and verification
// ABOUTME: Covers match, mismatch, and malformed stored hashes

package credential

import "testing"

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("secret1")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "secret1" {
		t.Fatal("Hash() returned the plaintext")
	}

	if !Verify("secret1", hash) {
		t.Error("Verify() = false for the correct password")
	}
	if Verify("wrong", hash) {
		t.Error("Verify() = true for the wrong password")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	if Verify("anything", "not-a-bcrypt-hash") {
		t.Error("Verify() = true for malformed stored hash")
	}
	if Verify("anything", "") {
		t.Error("Verify() = true for empty stored hash")
	}
}

func TestVerifyDummy(t *testing.T) {
	// Must not panic and must not accept anything.
	VerifyDummy("whatever")
}
