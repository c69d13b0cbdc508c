package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"bloodlink/internal/domain"
)

const (
	// HexPrefix is the two-character marker every digest and address carries
	// so values round-trip byte-for-byte between independent call sites.
	HexPrefix = "0x"

	digestHexLen  = 64
	addressHexLen = 40
)

// ZeroDigest is the all-zero sentinel the ledger rejects on writes.
var ZeroDigest = HexPrefix + strings.Repeat("0", digestHexLen)

// Digest computes the canonical content digest for a byte sequence: SHA-256
// rendered as 0x plus lowercase hex. Every invocation point (upload,
// approval, verification) must produce the same string for the same bytes.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return HexPrefix + hex.EncodeToString(sum[:])
}

// NormalizeDigest validates a digest string (case-insensitive input) and
// returns it in canonical lowercase form.
func NormalizeDigest(s string) (string, error) {
	normalized, err := normalizeHex(s, digestHexLen)
	if err != nil {
		return "", domain.ErrInvalidHash
	}
	return normalized, nil
}

// NormalizeAddress validates a chain address (0x plus 40 hex characters,
// case-insensitive) and returns it in canonical lowercase form. Comparisons
// anywhere in the core happen on normalized addresses.
func NormalizeAddress(s string) (string, error) {
	normalized, err := normalizeHex(s, addressHexLen)
	if err != nil {
		return "", domain.ErrInvalidAddress
	}
	return normalized, nil
}

func ValidDigest(s string) bool {
	_, err := NormalizeDigest(s)
	return err == nil
}

func ValidAddress(s string) bool {
	_, err := NormalizeAddress(s)
	return err == nil
}

func normalizeHex(s string, hexLen int) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(HexPrefix)+hexLen {
		return "", errInvalidHex
	}
	if !strings.EqualFold(s[:len(HexPrefix)], HexPrefix) {
		return "", errInvalidHex
	}
	body := strings.ToLower(s[len(HexPrefix):])
	if _, err := hex.DecodeString(body); err != nil {
		return "", errInvalidHex
	}
	return HexPrefix + body, nil
}

var errInvalidHex = errors.New("invalid hex value")
