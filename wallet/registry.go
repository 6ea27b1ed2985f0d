package wallet

import (
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var bucketWallets = []byte("wallets_by_address")

// Registry is a concrete Resolver: an in-memory address→public-key table
// with an optional bbolt-backed persistence layer, plus the node's own
// primary signing identity.
type Registry struct {
	mu sync.RWMutex
	db *bolt.DB

	byAddress map[string]Wallet

	primaryAddress    []byte
	primaryPublicKey  []byte
	primaryPrivateKey []byte
}

// NewRegistry creates an in-memory-only Registry.
func NewRegistry() *Registry {
	return &Registry{byAddress: make(map[string]Wallet)}
}

// OpenBoltRegistry creates a Registry backed by a bbolt database at path,
// loading any previously-registered wallets into memory.
func OpenBoltRegistry(path string) (*Registry, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: open bbolt registry: %w", err)
	}
	r := &Registry{byAddress: make(map[string]Wallet), db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketWallets)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("wallet: create wallets bucket: %w", err)
	}
	if err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWallets)
		return b.ForEach(func(k, v []byte) error {
			pub := make([]byte, len(v))
			copy(pub, v)
			r.byAddress[string(k)] = Wallet{PublicKey: pub}
			return nil
		})
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("wallet: load wallets bucket: %w", err)
	}
	return r, nil
}

// Close releases the registry's underlying bbolt database, if any.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SetPrimary sets the node's own signing identity.
func (r *Registry) SetPrimary(address, publicKey, privateKey []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primaryAddress = append([]byte(nil), address...)
	r.primaryPublicKey = append([]byte(nil), publicKey...)
	r.primaryPrivateKey = append([]byte(nil), privateKey...)
}

// Register records address's public key, persisting it if the registry is
// bbolt-backed.
func (r *Registry) Register(address, publicKey []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pub := append([]byte(nil), publicKey...)
	r.byAddress[string(address)] = Wallet{PublicKey: pub}
	if r.db == nil {
		return nil
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWallets).Put(address, pub)
	})
}

// GetWallet implements Resolver.
func (r *Registry) GetWallet(address []byte) (Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byAddress[string(address)]
	return w, ok
}

// PrimaryAddress implements Resolver.
func (r *Registry) PrimaryAddress() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.primaryAddress...)
}

// PrimaryPublicKey implements Resolver.
func (r *Registry) PrimaryPublicKey() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.primaryPublicKey...)
}

// PrimaryPrivateKey implements Resolver.
func (r *Registry) PrimaryPrivateKey() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.primaryPrivateKey...)
}
