package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainQuery prefixes query fingerprints. The version suffix allows the
// encoding to change without colliding with old fingerprints.
const DomainQuery = "cohortq/query/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns the content address of canonical query bytes.
func Fingerprint(canonical []byte) string {
	return hashWithDomain(DomainQuery, canonical)
}

// FingerprintOf marshals v canonically and fingerprints the result.
func FingerprintOf(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return Fingerprint(data), nil
}
