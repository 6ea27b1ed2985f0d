package wallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/atta2022/ixian-core/cryptoadapter"
)

// Kind classifies a signer identifier by its byte length per spec.md §4.3.
type Kind int

const (
	// KindInvalid identifiers are outside both the address and public-key
	// length bands; downstream calls may skip or reject them.
	KindInvalid Kind = iota
	// KindAddress identifiers are 36..128 bytes: the identifier is already
	// in address form.
	KindAddress
	// KindPublicKey identifiers are 129..2499 bytes: the identifier is a
	// raw public key and must be derived to its address form.
	KindPublicKey
)

const (
	minAddressLen   = 36
	maxAddressLen   = 128
	maxPublicKeyLen = 2500

	addressVersionByte = 0x01
	addressChecksumLen = 4
	// DerivedAddressLen is the length AddressCodec.DeriveAddress produces:
	// 1 version byte + 32-byte H_sq digest + 4-byte checksum.
	DerivedAddressLen = 1 + 32 + addressChecksumLen
)

// Classify reports which band id's length falls into.
func Classify(id []byte) Kind {
	n := len(id)
	switch {
	case n >= minAddressLen && n <= maxAddressLen:
		return KindAddress
	case n > maxAddressLen && n < maxPublicKeyLen:
		return KindPublicKey
	default:
		return KindInvalid
	}
}

// DeriveAddress derives the canonical address form of a public key:
// version_byte || H_sq(pubkey) || checksum, where checksum is the first 4
// bytes of H_qu(version_byte || H_sq(pubkey)). The derivation is
// deterministic and collision-free within the adapter's hash collision
// resistance.
func DeriveAddress(pubkey []byte, adapter cryptoadapter.Adapter) []byte {
	body := adapter.HSq(pubkey)
	withVersion := make([]byte, 0, 1+len(body))
	withVersion = append(withVersion, addressVersionByte)
	withVersion = append(withVersion, body...)

	checksum := adapter.HQu(withVersion)[:addressChecksumLen]

	out := make([]byte, 0, DerivedAddressLen)
	out = append(out, withVersion...)
	out = append(out, checksum...)
	return out
}

// ToAddress derives the address form of an identifier. Address-form
// identifiers are returned as-is (copied); public-key-form identifiers are
// derived via DeriveAddress. An identifier of neither band is an error.
func ToAddress(id []byte, adapter cryptoadapter.Adapter) ([]byte, error) {
	switch Classify(id) {
	case KindAddress:
		out := make([]byte, len(id))
		copy(out, id)
		return out, nil
	case KindPublicKey:
		return DeriveAddress(id, adapter), nil
	default:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidIdentifier, len(id))
	}
}

// Equivalent reports whether a and b resolve to the same address.
func Equivalent(a, b []byte, adapter cryptoadapter.Adapter) (bool, error) {
	addrA, err := ToAddress(a, adapter)
	if err != nil {
		return false, err
	}
	addrB, err := ToAddress(b, adapter)
	if err != nil {
		return false, err
	}
	return bytes.Equal(addrA, addrB), nil
}

// ErrInvalidIdentifier is returned by ToAddress for out-of-band lengths.
var ErrInvalidIdentifier = errors.New("wallet: identifier length outside address/public-key bands")
