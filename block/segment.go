package block

import (
	"sort"

	"github.com/atta2022/ixian-core/codec"
	"github.com/atta2022/ixian-core/cryptoadapter"
)

// SuperBlockSegment is the full per-periodic-block commitment of a
// superblock: the intervening block's own fields plus the signers that
// have frozen its signature list. In header contexts only its BlockChecksum
// travels (see HeaderSegmentRef); the full segment body is carried
// out-of-band and never embedded in a Block's wire form.
type SuperBlockSegment struct {
	Version                      int32
	BlockNum                     uint64
	Transactions                 []string
	BlockChecksum                []byte
	SignatureFreezeChecksum      []byte
	SignatureFreezeSigners       *IdentifierSet
	LegacySignatureFreezeSigners *SignatureSet
}

// NewSuperBlockSegment creates an empty segment at the given version and
// block height.
func NewSuperBlockSegment(version int32, blockNum uint64) *SuperBlockSegment {
	return &SuperBlockSegment{
		Version:                      version,
		BlockNum:                     blockNum,
		SignatureFreezeSigners:       NewIdentifierSet(),
		LegacySignatureFreezeSigners: NewSignatureSet(),
	}
}

// Encode serializes the segment per spec.md §4.4:
// version | blockNum | N_tx | N_tx×string | N_sig | N_sig×{len|addrBytes} |
// len(freezeChecksum) | legacyN | legacyN×{len|sig|len|addrBytes}.
func (s *SuperBlockSegment) Encode() []byte {
	w := codec.NewWriter()
	w.I32(s.Version)
	w.U64(s.BlockNum)

	w.I32(int32(len(s.Transactions)))
	for _, tx := range s.Transactions {
		w.VarString(tx)
	}

	signers := s.SignatureFreezeSigners.Snapshot()
	w.I32(int32(len(signers)))
	for _, id := range signers {
		w.LPBytes(id)
	}

	w.LPBytes(s.SignatureFreezeChecksum)

	legacy := s.LegacySignatureFreezeSigners.Snapshot()
	w.I32(int32(len(legacy)))
	for _, p := range legacy {
		w.LPBytes(p.Signature)
		w.LPBytes(p.Identifier)
	}

	return w.Bytes()
}

// DecodeSuperBlockSegment parses a SuperBlockSegment from raw bytes,
// rejecting any buffer larger than codec.MaxPayloadBytes before reading.
// On any parse error it returns a nil segment and the error; there is no
// partial result.
func DecodeSuperBlockSegment(raw []byte) (*SuperBlockSegment, error) {
	if err := codec.CheckSize(raw); err != nil {
		return nil, newErr(ErrOversize, "%v", err)
	}
	r := codec.NewReader(raw)

	version, err := r.I32()
	if err != nil {
		return nil, newErr(ErrDecode, "version: %v", err)
	}
	blockNum, err := r.U64()
	if err != nil {
		return nil, newErr(ErrDecode, "block_num: %v", err)
	}

	txCount, err := r.I32()
	if err != nil || txCount < 0 {
		return nil, newErr(ErrDecode, "tx count: %v", err)
	}
	txs := make([]string, 0, txCount)
	for i := int32(0); i < txCount; i++ {
		s, err := r.VarString()
		if err != nil {
			return nil, newErr(ErrDecode, "transaction[%d]: %v", i, err)
		}
		txs = append(txs, s)
	}

	sigCount, err := r.I32()
	if err != nil || sigCount < 0 {
		return nil, newErr(ErrDecode, "signer count: %v", err)
	}
	signers := NewIdentifierSet()
	for i := int32(0); i < sigCount; i++ {
		id, _, err := r.LPBytes()
		if err != nil {
			return nil, newErr(ErrDecode, "signer[%d]: %v", i, err)
		}
		signers.items = append(signers.items, id)
	}

	freezeChecksum, _, err := r.LPBytes()
	if err != nil {
		return nil, newErr(ErrDecode, "signature_freeze_checksum: %v", err)
	}

	legacyCount, err := r.I32()
	if err != nil || legacyCount < 0 {
		return nil, newErr(ErrDecode, "legacy signer count: %v", err)
	}
	legacy := NewSignatureSet()
	for i := int32(0); i < legacyCount; i++ {
		sig, _, err := r.LPBytes()
		if err != nil {
			return nil, newErr(ErrDecode, "legacy_signer[%d].signature: %v", i, err)
		}
		id, _, err := r.LPBytes()
		if err != nil {
			return nil, newErr(ErrDecode, "legacy_signer[%d].identifier: %v", i, err)
		}
		legacy.items = append(legacy.items, SignaturePair{Signature: sig, Identifier: id})
	}

	if !r.AtEnd() {
		return nil, newErr(ErrDecode, "trailing bytes after segment body")
	}

	return &SuperBlockSegment{
		Version:                      version,
		BlockNum:                     blockNum,
		Transactions:                 txs,
		SignatureFreezeChecksum:      freezeChecksum,
		SignatureFreezeSigners:       signers,
		LegacySignatureFreezeSigners: legacy,
	}, nil
}

// ContainsSignature derives id's address form and scans both signer sets
// for a byte-equal address, returning true on first match.
func (s *SuperBlockSegment) ContainsSignature(id []byte, adapter cryptoadapter.Adapter) (bool, error) {
	if found, err := s.SignatureFreezeSigners.Contains(id, adapter); err != nil {
		return false, err
	} else if found {
		return true, nil
	}
	return s.LegacySignatureFreezeSigners.Contains(id, adapter)
}

// Clone deep-copies every byte slice and signer entry.
func (s *SuperBlockSegment) Clone() *SuperBlockSegment {
	out := NewSuperBlockSegment(s.Version, s.BlockNum)
	out.Transactions = append([]string(nil), s.Transactions...)
	out.BlockChecksum = append([]byte(nil), s.BlockChecksum...)
	out.SignatureFreezeChecksum = append([]byte(nil), s.SignatureFreezeChecksum...)
	for _, id := range s.SignatureFreezeSigners.Snapshot() {
		out.SignatureFreezeSigners.items = append(out.SignatureFreezeSigners.items, id)
	}
	for _, p := range s.LegacySignatureFreezeSigners.Snapshot() {
		out.LegacySignatureFreezeSigners.items = append(out.LegacySignatureFreezeSigners.items, p)
	}
	return out
}

// mergedSegmentSignersDigest computes H_sq(merged_segment_signers) per
// spec.md §4.6: signatureFreezeSigners sorted lexicographically then
// concatenated raw, followed by legacySignatureFreezeSigners sorted by
// identifier then concatenated as sig||identifier.
func mergedSegmentSignersDigest(s *SuperBlockSegment, adapter cryptoadapter.Adapter) []byte {
	signers := s.SignatureFreezeSigners.Snapshot()
	sort.Slice(signers, func(i, j int) bool {
		return compareBytes(signers[i], signers[j]) < 0
	})

	legacy := s.LegacySignatureFreezeSigners.Snapshot()
	sort.Slice(legacy, func(i, j int) bool {
		return compareBytes(legacy[i].Identifier, legacy[j].Identifier) < 0
	})

	w := codec.NewWriter()
	for _, id := range signers {
		w.Raw(id)
	}
	for _, p := range legacy {
		w.Raw(p.Signature)
		w.Raw(p.Identifier)
	}
	return adapter.HSq(w.Bytes())
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
