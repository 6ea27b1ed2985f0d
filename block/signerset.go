package block

import (
	"sync"

	"github.com/atta2022/ixian-core/cryptoadapter"
	"github.com/atta2022/ixian-core/wallet"
)

// SignaturePair is a (signature, signer-identifier) entry as stored in
// Block.Signatures and SuperBlockSegment.LegacySignatureFreezeSigners. The
// identifier is a polymorphic Signer per spec.md §9: either an address or
// a raw public key, disambiguated only by its byte length.
type SignaturePair struct {
	Signature  []byte
	Identifier []byte
}

func clonePair(p SignaturePair) SignaturePair {
	return SignaturePair{
		Signature:  append([]byte(nil), p.Signature...),
		Identifier: append([]byte(nil), p.Identifier...),
	}
}

// SignatureSet is the internally synchronized, insertion-order-preserving
// collection backing Block.Signatures and
// SuperBlockSegment.LegacySignatureFreezeSigners. All reads that iterate
// and all writes take the same lock (spec.md §5); derived-value reads
// (membership, counts, checksums) take a snapshot under the lock and
// compute off-lock.
type SignatureSet struct {
	mu    sync.Mutex
	items []SignaturePair
}

// NewSignatureSet creates an empty SignatureSet.
func NewSignatureSet() *SignatureSet { return &SignatureSet{} }

// Snapshot returns a deep copy of the current contents, safe to read or
// hash off-lock.
func (s *SignatureSet) Snapshot() []SignaturePair {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SignaturePair, len(s.items))
	for i, p := range s.items {
		out[i] = clonePair(p)
	}
	return out
}

// Len reports the current number of entries.
func (s *SignatureSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Contains reports whether any entry's identifier is address-equivalent to
// id.
func (s *SignatureSet) Contains(id []byte, adapter cryptoadapter.Adapter) (bool, error) {
	s.mu.Lock()
	items := make([]SignaturePair, len(s.items))
	copy(items, s.items)
	s.mu.Unlock()
	return containsEquivalent(items, id, adapter)
}

// Add appends pair iff no existing entry's identifier is address-equivalent
// to pair.Identifier. Returns whether it was added.
func (s *SignatureSet) Add(pair SignaturePair, adapter cryptoadapter.Adapter) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := containsEquivalent(s.items, pair.Identifier, adapter)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	s.items = append(s.items, clonePair(pair))
	return true, nil
}

// Replace atomically swaps the set's contents, used by VerifySignatures to
// apply a purge computed off-lock.
func (s *SignatureSet) Replace(items []SignaturePair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]SignaturePair, len(items))
	for i, p := range items {
		s.items[i] = clonePair(p)
	}
}

func containsEquivalent(items []SignaturePair, id []byte, adapter cryptoadapter.Adapter) (bool, error) {
	for _, p := range items {
		eq, err := wallet.Equivalent(p.Identifier, id, adapter)
		if err != nil {
			continue // an unclassifiable stored identifier cannot match; skip it
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}

// IdentifierSet is the synchronized collection backing
// SuperBlockSegment.SignatureFreezeSigners: bare signer identifiers,
// deduplicated by address form, insertion order preserved.
type IdentifierSet struct {
	mu    sync.Mutex
	items [][]byte
}

// NewIdentifierSet creates an empty IdentifierSet.
func NewIdentifierSet() *IdentifierSet { return &IdentifierSet{} }

// Snapshot returns a deep copy of the current contents.
func (s *IdentifierSet) Snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.items))
	for i, id := range s.items {
		out[i] = append([]byte(nil), id...)
	}
	return out
}

// Len reports the current number of entries.
func (s *IdentifierSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Contains reports whether any entry is address-equivalent to id.
func (s *IdentifierSet) Contains(id []byte, adapter cryptoadapter.Adapter) (bool, error) {
	s.mu.Lock()
	items := make([][]byte, len(s.items))
	copy(items, s.items)
	s.mu.Unlock()
	for _, existing := range items {
		eq, err := wallet.Equivalent(existing, id, adapter)
		if err != nil {
			continue
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}

// Add appends id iff no existing entry is address-equivalent to it.
func (s *IdentifierSet) Add(id []byte, adapter cryptoadapter.Adapter) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		eq, err := wallet.Equivalent(existing, id, adapter)
		if err != nil {
			continue
		}
		if eq {
			return false, nil
		}
	}
	s.items = append(s.items, append([]byte(nil), id...))
	return true, nil
}
