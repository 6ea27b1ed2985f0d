package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/scrypt"
)

// keystoreFileV1 is the on-disk JSON shape of a passphrase-protected local
// keystore: the node's public key in the clear, and its private key
// AES-KW-wrapped under a key derived from an operator passphrase via
// scrypt.
type keystoreFileV1 struct {
	Version      string `json:"version"`
	PublicKeyHex string `json:"public_key_hex"`
	SaltHex      string `json:"scrypt_salt_hex"`
	ScryptN      int    `json:"scrypt_n"`
	ScryptR      int    `json:"scrypt_r"`
	ScryptP      int    `json:"scrypt_p"`
	WrappedHex   string `json:"wrapped_private_key_hex"`
}

const keystoreVersion = "IXKSv1"

// scrypt cost parameters. N=1<<15 keeps interactive unlock latency
// reasonable while staying well above the legacy 1<<14 floor.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

func deriveKEK(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// padKeyMaterial prefixes raw with its 4-byte big-endian length and pads to
// a multiple of 8 bytes: aesKeyWrap requires register-aligned input, but a
// DER-encoded RSA private key is rarely 8-byte aligned on its own.
func padKeyMaterial(raw []byte) []byte {
	padded := make([]byte, 4+len(raw))
	binary.BigEndian.PutUint32(padded[:4], uint32(len(raw)))
	copy(padded[4:], raw)
	if rem := len(padded) % 8; rem != 0 {
		padded = append(padded, make([]byte, 8-rem)...)
	}
	return padded
}

func unpadKeyMaterial(padded []byte) ([]byte, error) {
	if len(padded) < 4 {
		return nil, errors.New("wallet: wrapped key material too short")
	}
	n := binary.BigEndian.Uint32(padded[:4])
	if int(n) > len(padded)-4 {
		return nil, errors.New("wallet: wrapped key material length prefix out of range")
	}
	return padded[4 : 4+n], nil
}

// CreateKeystore wraps privateKey under a passphrase-derived key and writes
// it to path as JSON.
func CreateKeystore(path string, passphrase string, publicKey, privateKey []byte) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("wallet: generate keystore salt: %w", err)
	}
	kek, err := deriveKEK(passphrase, salt)
	if err != nil {
		return fmt.Errorf("wallet: derive keystore key: %w", err)
	}
	wrapped, err := aesKeyWrap(kek, padKeyMaterial(privateKey))
	if err != nil {
		return fmt.Errorf("wallet: wrap private key: %w", err)
	}

	ks := keystoreFileV1{
		Version:      keystoreVersion,
		PublicKeyHex: hex.EncodeToString(publicKey),
		SaltHex:      hex.EncodeToString(salt),
		ScryptN:      scryptN,
		ScryptR:      scryptR,
		ScryptP:      scryptP,
		WrappedHex:   hex.EncodeToString(wrapped),
	}
	raw, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return os.WriteFile(path, raw, 0o600)
}

// OpenKeystore reads path and unwraps the private key using passphrase,
// returning the node's public and private key.
func OpenKeystore(path string, passphrase string) (publicKey, privateKey []byte, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var ks keystoreFileV1
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, nil, fmt.Errorf("wallet: parse keystore: %w", err)
	}
	if ks.Version != keystoreVersion {
		return nil, nil, fmt.Errorf("wallet: unsupported keystore version %q", ks.Version)
	}

	pub, err := hex.DecodeString(ks.PublicKeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: decode public_key_hex: %w", err)
	}
	salt, err := hex.DecodeString(ks.SaltHex)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: decode scrypt_salt_hex: %w", err)
	}
	wrapped, err := hex.DecodeString(ks.WrappedHex)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: decode wrapped_private_key_hex: %w", err)
	}

	kek, err := scrypt.Key([]byte(passphrase), salt, ks.ScryptN, ks.ScryptR, ks.ScryptP, scryptKeyLen)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: derive keystore key: %w", err)
	}
	padded, err := aesKeyUnwrap(kek, wrapped)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: unwrap private key (wrong passphrase?): %w", err)
	}
	priv, err := unpadKeyMaterial(padded)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: unpad private key: %w", err)
	}
	return pub, priv, nil
}
