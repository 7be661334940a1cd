// ABOUTME: Password hashing and verification against stored credential hashes
// ABOUTME: bcrypt with cost 12, plus a dummy comparison for timing uniformity

package credential

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt cost factor used for new credentials. Verification
// takes tens of milliseconds at this cost, which is the point.
const HashCost = 12

// dummyHash is compared against when no account exists for a login attempt,
// so unknown accounts and wrong passwords take the same time to reject.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Hash derives a one-way salted hash of the given plaintext password.
func Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches the stored hash. It is a pure
// comparison with no side effects and never logs its inputs.
func Verify(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// VerifyDummy burns a bcrypt comparison against a fixed hash. Callers use it
// on the unknown-account path so that response timing does not reveal whether
// an email is registered.
func VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}
