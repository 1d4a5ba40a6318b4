package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// backupCodeBytes is the entropy per backup code (8 hex pairs -> XXXX-XXXX).
const backupCodeBytes = 4

// GenerateBackupCodes returns n fresh backup codes in XXXX-XXXX hex form.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, backupCodeBytes)
		if _, errRead := rand.Read(buf); errRead != nil {
			return nil, fmt.Errorf("generate backup code: %w", errRead)
		}
		raw := strings.ToUpper(hex.EncodeToString(buf))
		codes = append(codes, raw[:4]+"-"+raw[4:])
	}
	return codes, nil
}

// HashCode returns the hex SHA-256 digest of a backup code.
// Codes are normalized (trimmed, uppercased) so user input with stray
// whitespace or lowercase hex still matches.
func HashCode(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// CodesEqual compares two code digests in constant time.
func CodesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
