package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// kwSetup validates kek/keyMaterial and splits keyMaterial into 8-byte
// registers, shared by aesKeyWrap and aesKeyUnwrap.
func kwSetup(kek, keyMaterial []byte, wrapping bool) (cipher.Block, int, [][8]byte, error) {
	if len(kek) != 32 {
		return nil, 0, nil, errors.New("wallet: aeskw kek must be 32 bytes (AES-256)")
	}
	if wrapping {
		if len(keyMaterial) < 16 || len(keyMaterial) > 4096 || len(keyMaterial)%8 != 0 {
			return nil, 0, nil, errors.New("wallet: aeskw keyIn must be 16..4096 bytes and a multiple of 8")
		}
	} else if len(keyMaterial)%8 != 0 {
		return nil, 0, nil, errors.New("wallet: aeskw wrapped key registers must be a multiple of 8 bytes")
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, 0, nil, err
	}

	n := len(keyMaterial) / 8
	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], keyMaterial[i*8:(i+1)*8])
	}
	return block, n, r, nil
}

// AES-256 Key Wrap (RFC 3394 / NIST SP 800-38F), used by the local
// keystore to wrap the node's raw private key under a passphrase-derived
// key-encryption-key before it touches disk.

var kwDefaultIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// aesKeyWrap wraps plaintext key material using AES-KW. kek must be 32
// bytes. keyIn must be 16..4096 bytes and a multiple of 8 bytes.
func aesKeyWrap(kek, keyIn []byte) ([]byte, error) {
	block, n, r, err := kwSetup(kek, keyIn, true)
	if err != nil {
		return nil, err
	}
	a := kwDefaultIV

	var b [16]byte
	for j := 0; j < 6; j++ {
		for i := 0; i < n; i++ {
			copy(b[0:8], a[:])
			copy(b[8:16], r[i][:])
			block.Encrypt(b[:], b[:])
			t := uint64(n*j + (i + 1))
			for k := 0; k < 8; k++ {
				a[k] = b[k] ^ byte(t>>(56-8*k))
			}
			copy(r[i][:], b[8:16])
		}
	}

	out := make([]byte, 0, 8+len(keyIn))
	out = append(out, a[:]...)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}

// aesKeyUnwrap unwraps an AES-KW blob and returns the plaintext key
// material. kek must be 32 bytes. wrapped must be at least 24 bytes and a
// multiple of 8 bytes; no upper bound is enforced on unwrap.
func aesKeyUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 24 || len(wrapped)%8 != 0 {
		return nil, errors.New("wallet: aeskw wrapped blob must be 24+ bytes and a multiple of 8")
	}
	block, n, r, err := kwSetup(kek, wrapped[8:], false)
	if err != nil {
		return nil, err
	}

	var a [8]byte
	copy(a[:], wrapped[0:8])

	var b [16]byte
	for j := 5; j >= 0; j-- {
		for i := n - 1; i >= 0; i-- {
			t := uint64(n*j + (i + 1))
			var aXor [8]byte
			copy(aXor[:], a[:])
			for k := 0; k < 8; k++ {
				aXor[k] ^= byte(t >> (56 - 8*k))
			}
			copy(b[0:8], aXor[:])
			copy(b[8:16], r[i][:])
			block.Decrypt(b[:], b[:])
			copy(a[:], b[0:8])
			copy(r[i][:], b[8:16])
		}
	}

	if a != kwDefaultIV {
		return nil, errors.New("wallet: aeskw integrity check failed")
	}

	out := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}
