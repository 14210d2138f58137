package twofactor

import (
	"github.com/sentinelkit/authcore/internal"
)

// DefaultBackupCodeCount is the size of the set generated at setup and on
// regeneration. The whole set is always replaced atomically.
const DefaultBackupCodeCount = 10

// DefaultBackupCodeLength is the number of characters per code.
const DefaultBackupCodeLength = 10

// GenerateBackupCodes returns count plaintext codes alongside the hashes
// to persist. Plaintexts are shown to the user exactly once.
func GenerateBackupCodes(count, length int) ([]string, [][32]byte, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}
	if length <= 0 {
		length = DefaultBackupCodeLength
	}

	codes := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, internal.HashBackupCode(code))
	}

	return codes, hashes, nil
}

// HashBackupCode canonicalizes (trim, uppercase) and hashes a submitted
// code for lookup against the stored set.
func HashBackupCode(code string) [32]byte {
	return internal.HashBackupCode(code)
}
