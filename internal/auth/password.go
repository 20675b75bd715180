// Package auth issues and verifies bearer tokens and hashes passwords.
package auth

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	// Cost is the bcrypt work factor. Values outside bcrypt's range fall back
	// to bcrypt.DefaultCost.
	Cost int
}

// NewHasher returns a Hasher using cost.
func NewHasher(cost int) Hasher { return Hasher{Cost: cost} }

func (h Hasher) cost() int {
	if h.Cost < bcrypt.MinCost || h.Cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Hash returns the bcrypt hash of plain.
func (h Hasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare reports whether plain matches hashed. A malformed hash is treated
// as a mismatch.
func (h Hasher) Compare(hashed, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
