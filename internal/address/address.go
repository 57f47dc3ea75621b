// Package address derives ledger keys for gameroom entities.
//
// An address is a 6 hex character family prefix followed by 64 hex
// characters taken from the hash of the entity name:
//
//	address = sha512hex(family)[:6] ++ sha512hex(name)[:64]
//
// Every node computing an address for the same (family, name) pair must
// arrive at the same 70 character string, so the hash and the truncation
// lengths are fixed.
package address

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

const (
	// PrefixLen is the number of hex characters in a family prefix.
	PrefixLen = 6

	// SuffixLen is the number of hex characters taken from the name hash.
	SuffixLen = 64

	// Len is the total length of an address.
	Len = PrefixLen + SuffixLen

	// ContractPrefix is the namespace reserved for contract registrations.
	ContractPrefix = "00ec02"
)

// HashFunc returns the lowercase hex digest of its input.
// The digest must be at least SuffixLen characters long.
type HashFunc func(s string) string

// SHA512Hex is the hash every node uses to derive addresses.
func SHA512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Codec computes addresses with a configurable hash.
// The zero value uses SHA512Hex.
type Codec struct {
	Hash HashFunc
}

// Default is the codec used for real ledger state.
var Default = Codec{Hash: SHA512Hex}

func (c Codec) hash(s string) string {
	if c.Hash == nil {
		return SHA512Hex(s)
	}
	return c.Hash(s)
}

// Prefix returns the namespace prefix for a family.
func (c Codec) Prefix(family string) string {
	return c.hash(family)[:PrefixLen]
}

// Address returns the ledger key holding the bucket that name belongs to.
func (c Codec) Address(family, name string) string {
	return c.Prefix(family) + c.hash(name)[:SuffixLen]
}

// Prefix returns the namespace prefix for a family using SHA-512.
func Prefix(family string) string {
	return Default.Prefix(family)
}

// Address returns the ledger key for (family, name) using SHA-512.
func Address(family, name string) string {
	return Default.Address(family, name)
}

// ContractAddress returns the key a contract registration for name/version
// is written to. A Set at this key signals that the family has been
// initialized on a circuit.
func ContractAddress(name, version string) string {
	return ContractPrefix + SHA512Hex(name + "," + version)[:SuffixLen]
}

// IsAddress reports whether s is a well formed address:
// exactly Len lowercase hex characters.
func IsAddress(s string) bool {
	if len(s) != Len {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// HasPrefix reports whether key lives in the namespace prefix.
func HasPrefix(key, prefix string) bool {
	return len(key) >= PrefixLen && strings.HasPrefix(key, prefix)
}

// Short returns the first PrefixLen characters of a signer key, the form
// used when participants are shown in logs.
func Short(key string) string {
	if len(key) > PrefixLen {
		return key[:PrefixLen]
	}
	return key
}
