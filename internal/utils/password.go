package utils

import "golang.org/x/crypto/bcrypt"

// dummyHash is a bcrypt digest of a throwaway string, compared against
// when no user matched so the lookup-miss path costs the same as a real
// verification.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B4SOMXW7vJ0eAEhT1nChGr0q0d5e"

// HashPassword returns a bcrypt hash at the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt hash with a plain password in
// constant time.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// BurnPasswordCheck runs a bcrypt comparison against a fixed hash and
// discards the result. Called on the no-such-user path so response
// timing does not reveal whether an identifier exists.
func BurnPasswordCheck(plain string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plain))
}
