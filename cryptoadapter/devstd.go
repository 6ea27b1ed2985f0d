package cryptoadapter

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
)

// devStdKeyBits is the RSA modulus size used by the development signing
// identity. It is chosen not for its cryptographic margin but because a
// PKIX-encoded public key of this size lands inside the signer-identifier
// public-key band: well past any derived address, comfortably under the
// band's upper bound.
const devStdKeyBits = 2048

// DevStdAdapter is a development-only Adapter backed entirely by the
// standard library. It does NOT claim any certification and exists to
// unblock tooling and tests ahead of a production signing backend.
type DevStdAdapter struct{}

// HQu returns the first 32 bytes of SHA-512(msg).
func (DevStdAdapter) HQu(msg []byte) []byte {
	sum := sha512.Sum512(msg)
	out := make([]byte, 32)
	copy(out, sum[0:32])
	return out
}

// HSq returns the second 32 bytes of SHA-512(msg). It is a distinct
// deterministic window of the same underlying digest as HQu, not a
// different hash family: the two are required only to disagree, not to
// derive from independent primitives.
func (DevStdAdapter) HSq(msg []byte) []byte {
	sum := sha512.Sum512(msg)
	out := make([]byte, 32)
	copy(out, sum[32:64])
	return out
}

// Sign signs msg with a PKCS#1-encoded RSA private key, using PSS over a
// SHA-256 digest of msg.
func (DevStdAdapter) Sign(msg []byte, privKey []byte) ([]byte, error) {
	priv, err := x509.ParsePKCS1PrivateKey(privKey)
	if err != nil {
		return nil, errors.New("cryptoadapter: malformed rsa private key")
	}
	digest := sha256.Sum256(msg)
	return rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
}

// Verify verifies an RSA-PSS signature against a PKIX-encoded public key.
// Malformed keys or signatures are treated as verification failure, not an
// error: callers only need a boolean to decide whether to admit or purge a
// signature.
func (DevStdAdapter) Verify(msg []byte, pubKey []byte, sig []byte) bool {
	parsed, err := x509.ParsePKIXPublicKey(pubKey)
	if err != nil {
		return false
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(msg)
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil) == nil
}

// GenerateKey creates a fresh RSA keypair for local signing identity. The
// returned public key is PKIX-encoded and the private key PKCS#1-encoded,
// both as plain bytes suitable for keystore storage and signer-identifier
// use.
func GenerateKey() (pub, priv []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, devStdKeyBits)
	if err != nil {
		return nil, nil, err
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	return pubBytes, x509.MarshalPKCS1PrivateKey(key), nil
}
