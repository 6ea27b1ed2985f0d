// Package wallet is the WalletResolver collaborator of spec.md §6.3: an
// address-to-public-key lookup plus the local node's own signing identity.
// Wallet state, balances and transaction history are out of scope — this
// package only resolves identities for signature admission and recovery.
package wallet

// Wallet is the subset of wallet state the block package needs: whether an
// address has a registered public key, and if so what it is.
type Wallet struct {
	PublicKey []byte
}

// HasPublicKey reports whether w carries a registered public key.
func (w Wallet) HasPublicKey() bool { return len(w.PublicKey) > 0 }

// Resolver is the WalletResolver interface: address → optional public key,
// plus the local node's own signing identity.
type Resolver interface {
	// GetWallet looks up the wallet registered at address. ok is false if
	// the address is unknown to this node's view of wallet state.
	GetWallet(address []byte) (w Wallet, ok bool)
	// PrimaryAddress is this node's own address.
	PrimaryAddress() []byte
	// PrimaryPublicKey is this node's own public key.
	PrimaryPublicKey() []byte
	// PrimaryPrivateKey is this node's own private key, used only for
	// Block.ApplySignature.
	PrimaryPrivateKey() []byte
}
