package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// SessionID is a 256-bit opaque session identifier.
type SessionID [32]byte

// BackupCodeAlphabet excludes lowercase and ambiguous characters (0/O, 1/I)
// so codes survive being read aloud or retyped. Codes are uppercased before
// hashing, which makes matching case-insensitive.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewBackupCode returns a random code of the given length drawn from
// BackupCodeAlphabet.
func NewBackupCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid backup code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// HashBackupCode canonicalizes and hashes a backup code for storage or
// lookup. Only the hash is ever persisted.
func HashBackupCode(code string) [32]byte {
	canonical := strings.ToUpper(strings.TrimSpace(code))
	return sha256.Sum256([]byte(canonical))
}
