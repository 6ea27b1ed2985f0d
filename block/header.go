package block

import (
	"sort"

	"github.com/atta2022/ixian-core/codec"
	"github.com/atta2022/ixian-core/cryptoadapter"
)

// V2 is the BlockVer.v2 gate: block/header versions at or below this use
// HQu; versions above it use HSq.
const V2 int32 = 2

// SuperBlockHeaderVersion is the version above which a header carries
// superblock fields (last-superblock pointer and segment checksums).
const SuperBlockHeaderVersion int32 = 4

// HeaderSegmentRef is the header-context shape of a SuperBlockSegment:
// only the segment's own checksum travels in a BlockHeader.
type HeaderSegmentRef struct {
	BlockChecksum []byte
}

// BlockHeader is the header-only view of a block: every field of Block
// except the signature set, timestamp and full superblock segment bodies.
type BlockHeader struct {
	Version                 int32
	BlockNum                uint64
	Transactions            []string
	BlockChecksum           []byte
	LastBlockChecksum       []byte
	WalletStateChecksum     []byte
	SignatureFreezeChecksum []byte
	Difficulty              uint64
	LastSuperBlockNum       uint64
	LastSuperBlockChecksum  []byte
	SuperBlockSegments      map[uint64]HeaderSegmentRef
}

// NewBlockHeader creates an empty header at the given version and height.
func NewBlockHeader(version int32, blockNum uint64) *BlockHeader {
	return &BlockHeader{
		Version:            version,
		BlockNum:           blockNum,
		SuperBlockSegments: make(map[uint64]HeaderSegmentRef),
	}
}

// Encode serializes the header per spec.md §4.5.
func (h *BlockHeader) Encode() []byte {
	w := codec.NewWriter()
	w.I32(h.Version)
	w.U64(h.BlockNum)

	w.I32(int32(len(h.Transactions)))
	for _, tx := range h.Transactions {
		w.VarString(tx)
	}

	w.LPBytes(h.BlockChecksum)
	w.LPBytes(h.LastBlockChecksum)
	w.LPBytes(h.WalletStateChecksum)
	w.LPBytes(h.SignatureFreezeChecksum)
	w.U64(h.Difficulty)

	if h.Version > SuperBlockHeaderVersion {
		w.U64(h.LastSuperBlockNum)
		w.LPBytes(h.LastSuperBlockChecksum)

		keys := sortedSegmentKeys(h.SuperBlockSegments)
		w.I32(int32(len(keys)))
		for _, k := range keys {
			w.U64(k)
			w.LPBytes(h.SuperBlockSegments[k].BlockChecksum)
		}
	}

	return w.Bytes()
}

// DecodeBlockHeader parses a BlockHeader from raw bytes, rejecting buffers
// larger than codec.MaxPayloadBytes before reading.
func DecodeBlockHeader(raw []byte) (*BlockHeader, error) {
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

	blockChecksum, _, err := r.LPBytes()
	if err != nil {
		return nil, newErr(ErrDecode, "block_checksum: %v", err)
	}
	lastBlockChecksum, _, err := r.LPBytes()
	if err != nil {
		return nil, newErr(ErrDecode, "last_block_checksum: %v", err)
	}
	walletStateChecksum, _, err := r.LPBytes()
	if err != nil {
		return nil, newErr(ErrDecode, "wallet_state_checksum: %v", err)
	}
	signatureFreezeChecksum, _, err := r.LPBytes()
	if err != nil {
		return nil, newErr(ErrDecode, "signature_freeze_checksum: %v", err)
	}
	difficulty, err := r.U64()
	if err != nil {
		return nil, newErr(ErrDecode, "difficulty: %v", err)
	}

	h := &BlockHeader{
		Version:                 version,
		BlockNum:                blockNum,
		Transactions:            txs,
		BlockChecksum:           blockChecksum,
		LastBlockChecksum:       lastBlockChecksum,
		WalletStateChecksum:     walletStateChecksum,
		SignatureFreezeChecksum: signatureFreezeChecksum,
		Difficulty:              difficulty,
		SuperBlockSegments:      make(map[uint64]HeaderSegmentRef),
	}

	if version > SuperBlockHeaderVersion {
		lastSuperBlockNum, err := r.U64()
		if err != nil {
			return nil, newErr(ErrDecode, "last_super_block_num: %v", err)
		}
		lastSuperBlockChecksum, _, err := r.LPBytes()
		if err != nil {
			return nil, newErr(ErrDecode, "last_super_block_checksum: %v", err)
		}
		h.LastSuperBlockNum = lastSuperBlockNum
		h.LastSuperBlockChecksum = lastSuperBlockChecksum

		segCount, err := r.I32()
		if err != nil || segCount < 0 {
			return nil, newErr(ErrDecode, "segment count: %v", err)
		}
		for i := int32(0); i < segCount; i++ {
			segNum, err := r.U64()
			if err != nil {
				return nil, newErr(ErrDecode, "segment[%d].block_num: %v", i, err)
			}
			checksum, _, err := r.LPBytes()
			if err != nil {
				return nil, newErr(ErrDecode, "segment[%d].block_checksum: %v", i, err)
			}
			if _, exists := h.SuperBlockSegments[segNum]; exists {
				return nil, newErr(ErrDecode, "duplicate segment key %d", segNum)
			}
			h.SuperBlockSegments[segNum] = HeaderSegmentRef{BlockChecksum: checksum}
		}
	}

	if !r.AtEnd() {
		return nil, newErr(ErrDecode, "trailing bytes after header body")
	}

	return h, nil
}

// CalculateChecksum computes the header's content-addressed checksum per
// spec.md §4.5: domainLock || version || blockNum || concatenated tx ids ||
// present optional checksums (last-block, wallet-state, signature-freeze)
// || difficulty || merged segments (ascending key order) || optionally
// last-superblock pointer. HQu is used for version<=V2, HSq otherwise.
func (h *BlockHeader) CalculateChecksum(domainLock []byte, adapter cryptoadapter.Adapter) []byte {
	w := codec.NewWriter()
	w.Raw(domainLock)
	w.I32(h.Version)
	w.U64(h.BlockNum)
	for _, tx := range h.Transactions {
		w.Raw([]byte(tx))
	}
	if h.LastBlockChecksum != nil {
		w.Raw(h.LastBlockChecksum)
	}
	if h.WalletStateChecksum != nil {
		w.Raw(h.WalletStateChecksum)
	}
	if h.SignatureFreezeChecksum != nil {
		w.Raw(h.SignatureFreezeChecksum)
	}
	w.U64(h.Difficulty)

	for _, k := range sortedSegmentKeys(h.SuperBlockSegments) {
		w.U64(k)
		w.Raw(h.SuperBlockSegments[k].BlockChecksum)
	}

	if h.LastSuperBlockChecksum != nil {
		w.U64(h.LastSuperBlockNum)
		w.Raw(h.LastSuperBlockChecksum)
	}

	if h.Version <= V2 {
		return adapter.HQu(w.Bytes())
	}
	return adapter.HSq(w.Bytes())
}

// Clone deep-copies every byte slice and segment entry.
func (h *BlockHeader) Clone() *BlockHeader {
	out := &BlockHeader{
		Version:                 h.Version,
		BlockNum:                h.BlockNum,
		Transactions:            append([]string(nil), h.Transactions...),
		BlockChecksum:           append([]byte(nil), h.BlockChecksum...),
		LastBlockChecksum:       append([]byte(nil), h.LastBlockChecksum...),
		WalletStateChecksum:     append([]byte(nil), h.WalletStateChecksum...),
		SignatureFreezeChecksum: append([]byte(nil), h.SignatureFreezeChecksum...),
		Difficulty:              h.Difficulty,
		LastSuperBlockNum:       h.LastSuperBlockNum,
		LastSuperBlockChecksum:  append([]byte(nil), h.LastSuperBlockChecksum...),
		SuperBlockSegments:      make(map[uint64]HeaderSegmentRef, len(h.SuperBlockSegments)),
	}
	for k, v := range h.SuperBlockSegments {
		out.SuperBlockSegments[k] = HeaderSegmentRef{BlockChecksum: append([]byte(nil), v.BlockChecksum...)}
	}
	return out
}

func sortedSegmentKeys(m map[uint64]HeaderSegmentRef) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
