package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword produces a salted one-way hash. Plaintext passwords are never
// stored or embedded in tokens.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

// CheckPassword reports whether pw matches the stored hash. Comparison is
// constant time inside bcrypt. Empty hash or empty password fails closed.
func CheckPassword(hash, pw string) bool {
	if hash == "" || pw == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
