package security

import "golang.org/x/crypto/bcrypt"

// dummyHash is a valid bcrypt digest at DefaultCost. Rejection paths that
// have no stored hash compare against it so they cost the same as a real
// password check; the comparison result is never consulted.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, errHash := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errHash != nil {
		return "", errHash
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the bcrypt hash.
// The comparison inside bcrypt is constant-time. An empty hash (OAuth-only
// account) never matches, but still burns a comparison so the caller's
// rejection latency does not reveal that no password is set.
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		DummyCompare(password)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DummyCompare runs a bcrypt comparison against a fixed digest and discards
// the result. Login paths that reject before reaching a stored hash call it
// so an observer cannot tell them apart from a failed password check.
func DummyCompare(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
