package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const (
	pinDigits = 6
	saltBytes = 16
)

// Credential is a freshly minted organiser credential. Only Salt and Hash are persisted;
// PIN is handed to its owner once and then dropped.
type Credential struct {
	PIN  string
	Salt string
	Hash string
}

// GeneratePIN returns a 6-digit numeric PIN. Each digit is drawn uniformly from crypto/rand:
// bytes >= 250 are rejected so that byte % 10 carries no modulo bias.
func GeneratePIN() (string, error) {
	out := make([]byte, 0, pinDigits)
	buf := make([]byte, pinDigits*2)
	for len(out) < pinDigits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == pinDigits {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateSalt returns 16 random bytes, hex-encoded.
func GenerateSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashPIN returns the hex SHA-256 digest of pin followed by salt.
func HashPIN(pin, salt string) string {
	h := sha256.Sum256([]byte(pin + salt))
	return hex.EncodeToString(h[:])
}

// PINService mints and verifies organiser PIN credentials. An optional override credential
// (a bcrypt hash) is accepted for every organiser as an administrative bypass.
type PINService struct {
	hasher       *Hasher
	overrideHash string
}

// NewPINService returns a PINService. overrideHash may be empty to disable the bypass.
func NewPINService(hasher *Hasher, overrideHash string) *PINService {
	if hasher == nil {
		hasher = NewHasher(0)
	}
	return &PINService{hasher: hasher, overrideHash: overrideHash}
}

// Mint generates a new PIN with a new salt. Every call produces a salt never used before.
func (s *PINService) Mint() (Credential, error) {
	pin, err := GeneratePIN()
	if err != nil {
		return Credential{}, err
	}
	salt, err := GenerateSalt()
	if err != nil {
		return Credential{}, err
	}
	return Credential{PIN: pin, Salt: salt, Hash: HashPIN(pin, salt)}, nil
}

// Verify reports whether pin matches the stored salt and hash, or matches the override
// credential. Comparison of the per-organiser hash is constant-time.
func (s *PINService) Verify(pin, salt, storedHash string) bool {
	if pin == "" {
		return false
	}
	if storedHash != "" {
		if subtle.ConstantTimeCompare([]byte(HashPIN(pin, salt)), []byte(storedHash)) == 1 {
			return true
		}
	}
	if s.overrideHash == "" {
		return false
	}
	return s.hasher.Compare(s.overrideHash, []byte(pin)) == nil
}
