package block

import (
	"bytes"
	"log/slog"
	"sort"

	"github.com/atta2022/ixian-core/codec"
	"github.com/atta2022/ixian-core/cryptoadapter"
	"github.com/atta2022/ixian-core/wallet"
)

// addressIdentifierMaxLen is the boundary used by HasNodeSignature and
// GetSignaturesWalletAddresses to decide whether a stored identifier is an
// address (<=70 bytes) or a raw public key.
const addressIdentifierMaxLen = 70

// Block is the full entity of spec.md §3.3: every BlockHeader field except
// that superblock segments carry their full body, plus a signature set, a
// timestamp, a locally-computed proof-of-work field (never serialized) and
// a runtime-only storage-origin flag.
type Block struct {
	Version                 int32
	BlockNum                uint64
	Transactions            []string
	Signatures              *SignatureSet
	BlockChecksum           []byte
	LastBlockChecksum       []byte
	WalletStateChecksum     []byte
	SignatureFreezeChecksum []byte
	Difficulty              uint64
	Timestamp               int64
	LastSuperBlockNum       uint64
	LastSuperBlockChecksum  []byte
	SuperBlockSegments      map[uint64]*SuperBlockSegment

	// PowField is computed locally by mining and never travels on the wire.
	PowField []byte
	// FromLocalStorage is a runtime-only provenance flag, never serialized.
	FromLocalStorage bool

	// Logger receives duplicate-transaction and possible-tampering notices.
	// Never serialized; defaults to slog.Default() when nil.
	Logger *slog.Logger
}

func (b *Block) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// NewBlock creates an empty block at the given version and height.
func NewBlock(version int32, blockNum uint64) *Block {
	return &Block{
		Version:            version,
		BlockNum:           blockNum,
		Signatures:         NewSignatureSet(),
		SuperBlockSegments: make(map[uint64]*SuperBlockSegment),
	}
}

// IsGenesis reports whether b is the genesis block: height 0 with no
// last-block checksum.
func (b *Block) IsGenesis() bool {
	return b.BlockNum == 0 && b.LastBlockChecksum == nil
}

// LogDetails renders a short human-readable summary of b, substituting a
// fixed banner for the last-block checksum of a genesis block. Display
// only; has no bearing on the wire form or checksum.
func (b *Block) LogDetails() string {
	last := "G E N E S I S  B L O C K"
	if !b.IsGenesis() {
		last = hexLower(b.LastBlockChecksum)
	}
	return "block #" + uintToString(b.BlockNum) + " last=" + last
}

// Encode serializes the block body per spec.md §4.6. Segment bodies are
// never written here; only checksums travel via the header form.
func (b *Block) Encode() []byte {
	w := codec.NewWriter()
	w.I32(b.Version)
	w.U64(b.BlockNum)

	w.I32(int32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		w.VarString(tx)
	}

	sigs := b.Signatures.Snapshot()
	w.I32(int32(len(sigs)))
	for _, p := range sigs {
		w.LPBytes(p.Signature)
		w.LPBytes(p.Identifier)
	}

	w.LPBytes(b.BlockChecksum)
	w.LPBytes(b.LastBlockChecksum)
	w.LPBytes(b.WalletStateChecksum)
	w.LPBytes(b.SignatureFreezeChecksum)
	w.U64(b.Difficulty)
	w.I64(b.Timestamp)
	w.U64(b.LastSuperBlockNum)
	w.LPBytes(b.LastSuperBlockChecksum)

	return w.Bytes()
}

// DecodeBlock parses a Block from raw bytes, rejecting buffers larger than
// codec.MaxPayloadBytes before reading. Segment bodies are never present in
// the block wire form; SuperBlockSegments is populated empty and filled in
// separately by the caller from out-of-band segment payloads.
func DecodeBlock(raw []byte) (*Block, error) {
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
		return nil, newErr(ErrDecode, "signature count: %v", err)
	}
	sigSet := NewSignatureSet()
	for i := int32(0); i < sigCount; i++ {
		sig, _, err := r.LPBytes()
		if err != nil {
			return nil, newErr(ErrDecode, "signature[%d].sig: %v", i, err)
		}
		id, _, err := r.LPBytes()
		if err != nil {
			return nil, newErr(ErrDecode, "signature[%d].id: %v", i, err)
		}
		sigSet.items = append(sigSet.items, SignaturePair{Signature: sig, Identifier: id})
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
	timestamp, err := r.I64()
	if err != nil {
		return nil, newErr(ErrDecode, "timestamp: %v", err)
	}
	lastSuperBlockNum, err := r.U64()
	if err != nil {
		return nil, newErr(ErrDecode, "last_super_block_num: %v", err)
	}
	lastSuperBlockChecksum, _, err := r.LPBytes()
	if err != nil {
		return nil, newErr(ErrDecode, "last_super_block_checksum: %v", err)
	}

	if !r.AtEnd() {
		return nil, newErr(ErrDecode, "trailing bytes after block body")
	}

	return &Block{
		Version:                 version,
		BlockNum:                blockNum,
		Transactions:            txs,
		Signatures:              sigSet,
		BlockChecksum:           blockChecksum,
		LastBlockChecksum:       lastBlockChecksum,
		WalletStateChecksum:     walletStateChecksum,
		SignatureFreezeChecksum: signatureFreezeChecksum,
		Difficulty:              difficulty,
		Timestamp:               timestamp,
		LastSuperBlockNum:       lastSuperBlockNum,
		LastSuperBlockChecksum:  lastSuperBlockChecksum,
		SuperBlockSegments:      make(map[uint64]*SuperBlockSegment),
	}, nil
}

// CalculateChecksum computes the block's content-addressed checksum per
// spec.md §4.6. Per design note §9, segment.SignatureFreezeChecksum is
// assumed present; a nil value is written as a zero-length raw span rather
// than rejected, since the source treats absence here as invariant, not as
// a recoverable error.
func (b *Block) CalculateChecksum(domainLock []byte, adapter cryptoadapter.Adapter) []byte {
	w := codec.NewWriter()
	w.Raw(domainLock)
	w.I32(b.Version)
	w.U64(b.BlockNum)
	for _, tx := range b.Transactions {
		w.Raw([]byte(tx))
	}
	if b.LastBlockChecksum != nil {
		w.Raw(b.LastBlockChecksum)
	}
	if b.WalletStateChecksum != nil {
		w.Raw(b.WalletStateChecksum)
	}
	if b.SignatureFreezeChecksum != nil {
		w.Raw(b.SignatureFreezeChecksum)
	}
	w.U64(b.Difficulty)

	for _, key := range sortedSegmentNums(b.SuperBlockSegments) {
		seg := b.SuperBlockSegments[key]
		w.U64(key)
		w.I32(seg.Version)
		w.Raw(seg.SignatureFreezeChecksum)
		w.Raw(adapter.HSq(concatTransactions(seg.Transactions)))
		w.Raw(mergedSegmentSignersDigest(seg, adapter))
	}

	if b.LastSuperBlockChecksum != nil {
		w.U64(b.LastSuperBlockNum)
		w.Raw(b.LastSuperBlockChecksum)
	}

	if b.Version <= V2 {
		return adapter.HQu(w.Bytes())
	}
	return adapter.HSq(w.Bytes())
}

// CalculateSignatureChecksum hashes a snapshot of the signature list,
// sorted by identifier ascending, per spec.md §4.6. The hashed field per
// entry is the identifier for version>3, the raw signature bytes
// otherwise.
func (b *Block) CalculateSignatureChecksum(adapter cryptoadapter.Adapter) []byte {
	sigs := b.Signatures.Snapshot()
	sort.Slice(sigs, func(i, j int) bool {
		return compareBytes(sigs[i].Identifier, sigs[j].Identifier) < 0
	})

	w := codec.NewWriter()
	w.U64(b.BlockNum)
	for _, p := range sigs {
		if b.Version > 3 {
			w.Raw(p.Identifier)
		} else {
			w.Raw(p.Signature)
		}
	}

	if b.Version <= V2 {
		return adapter.HQu(w.Bytes())
	}
	return adapter.HSq(w.Bytes())
}

// Equal reports whether a and b are equal per spec.md §4.6: block checksum
// bytes match, signature-freeze checksum presence and bytes match (both
// absent counts as a match), and calculated signature checksums match.
func (b *Block) Equal(other *Block, adapter cryptoadapter.Adapter) bool {
	if other == nil {
		return false
	}
	if !bytes.Equal(b.BlockChecksum, other.BlockChecksum) {
		return false
	}
	if (b.SignatureFreezeChecksum == nil) != (other.SignatureFreezeChecksum == nil) {
		return false
	}
	if b.SignatureFreezeChecksum != nil && !bytes.Equal(b.SignatureFreezeChecksum, other.SignatureFreezeChecksum) {
		return false
	}
	return bytes.Equal(b.CalculateSignatureChecksum(adapter), other.CalculateSignatureChecksum(adapter))
}

// AddTransaction appends id unless already present; duplicates are logged
// and ignored, not an error.
func (b *Block) AddTransaction(id string) {
	for _, existing := range b.Transactions {
		if existing == id {
			b.logger().Info("duplicate transaction ignored", "block_num", b.BlockNum, "tx_id", id)
			return
		}
	}
	b.Transactions = append(b.Transactions, id)
}

// ApplySignature signs b.BlockChecksum with the resolver's primary private
// key and appends the signature under the local identity, unless the local
// address is already present. If the local wallet has no registered public
// key on file, the public key itself is stored as the identifier; otherwise
// the shorter address form is stored.
func (b *Block) ApplySignature(resolver wallet.Resolver, adapter cryptoadapter.Adapter) error {
	localAddr := resolver.PrimaryAddress()
	if present, err := b.Signatures.Contains(localAddr, adapter); err != nil {
		return err
	} else if present {
		return nil
	}

	sig, err := adapter.Sign(b.BlockChecksum, resolver.PrimaryPrivateKey())
	if err != nil {
		return err
	}

	identifier := resolver.PrimaryPublicKey()
	if w, ok := resolver.GetWallet(localAddr); ok && w.HasPublicKey() {
		identifier = localAddr
	}

	_, err = b.Signatures.Add(SignaturePair{Signature: sig, Identifier: identifier}, adapter)
	return err
}

// AddSignature admits (sig, id) if no address-equivalent signer is already
// present: the signer's public key is recovered (directly, if id is already
// a public key, or via resolver.GetWallet if id is an address) and the
// signature is verified against b.BlockChecksum before admission.
func (b *Block) AddSignature(sig, id []byte, resolver wallet.Resolver, adapter cryptoadapter.Adapter) (bool, error) {
	if present, err := b.Signatures.Contains(id, adapter); err != nil {
		return false, err
	} else if present {
		return false, nil
	}

	pubKey, err := recoverPublicKey(id, resolver)
	if err != nil {
		return false, newErr(ErrLookup, "%v", err)
	}

	if !adapter.Verify(b.BlockChecksum, pubKey, sig) {
		return false, newErr(ErrVerify, "signature does not verify against block checksum")
	}

	return b.Signatures.Add(SignaturePair{Signature: sig, Identifier: id}, adapter)
}

// AddSignaturesFrom merges every entry of other not already present by
// signer identity into b, without re-verification.
func (b *Block) AddSignaturesFrom(other *Block, adapter cryptoadapter.Adapter) error {
	for _, p := range other.Signatures.Snapshot() {
		if _, err := b.Signatures.Add(p, adapter); err != nil {
			return err
		}
	}
	return nil
}

// VerifySignatures iterates a snapshot of the signature set, purging any
// entry whose public key cannot be resolved, whose public key duplicates
// one already accepted in this pass, or whose signature fails verification.
// Returns true iff at least one signature remains.
func (b *Block) VerifySignatures(resolver wallet.Resolver, adapter cryptoadapter.Adapter) (bool, error) {
	items := b.Signatures.Snapshot()
	kept := make([]SignaturePair, 0, len(items))
	seenPubKeys := make(map[string]bool, len(items))

	for _, p := range items {
		pubKey, err := recoverPublicKey(p.Identifier, resolver)
		if err != nil {
			continue
		}
		key := string(pubKey)
		if seenPubKeys[key] {
			continue
		}
		if !adapter.Verify(b.BlockChecksum, pubKey, p.Signature) {
			continue
		}
		seenPubKeys[key] = true
		kept = append(kept, p)
	}

	b.Signatures.Replace(kept)
	return len(kept) > 0, nil
}

// HasNodeSignature reports whether a signature matching pubKey (or, if
// pubKey is nil, the resolver's primary public key) is present and still
// verifies against b.BlockChecksum. A stored identifier of length <= 70
// bytes is compared as an address; longer identifiers are compared as raw
// public-key bytes. A match that fails verification is reported as absent
// and logged as possible tampering, without purging the entry.
func (b *Block) HasNodeSignature(pubKey []byte, resolver wallet.Resolver, adapter cryptoadapter.Adapter) (bool, error) {
	if pubKey == nil {
		pubKey = resolver.PrimaryPublicKey()
	}
	addr := wallet.DeriveAddress(pubKey, adapter)

	for _, p := range b.Signatures.Snapshot() {
		var matches bool
		if len(p.Identifier) <= addressIdentifierMaxLen {
			matches = bytes.Equal(p.Identifier, addr)
		} else {
			matches = bytes.Equal(p.Identifier, pubKey)
		}
		if !matches {
			continue
		}
		if !adapter.Verify(b.BlockChecksum, pubKey, p.Signature) {
			b.logger().Warn("possible tampering: stored signature matches signer but fails verification",
				"block_num", b.BlockNum, "address", hexLower(addr))
			return false, nil
		}
		return true, nil
	}
	return false, nil
}

// GetSignaturesWalletAddresses returns the address (or, if convertPubkeys
// is false, the raw public-key bytes for pubkey-form signers) of every
// signer, sorted ascending by byte comparison. Address-form identifiers
// with no registered public key in resolver are skipped. Pubkey-form
// signers always contribute an entry: their derived address when
// convertPubkeys is true, their raw bytes otherwise.
func (b *Block) GetSignaturesWalletAddresses(convertPubkeys bool, resolver wallet.Resolver, adapter cryptoadapter.Adapter) [][]byte {
	var out [][]byte
	for _, p := range b.Signatures.Snapshot() {
		if len(p.Identifier) <= addressIdentifierMaxLen {
			if w, ok := resolver.GetWallet(p.Identifier); !ok || !w.HasPublicKey() {
				continue
			}
			out = append(out, append([]byte(nil), p.Identifier...))
			continue
		}
		if convertPubkeys {
			out = append(out, wallet.DeriveAddress(p.Identifier, adapter))
			continue
		}
		out = append(out, append([]byte(nil), p.Identifier...))
	}
	sort.Slice(out, func(i, j int) bool { return compareBytes(out[i], out[j]) < 0 })
	return out
}

// GetUniqueSignatureCount counts identifiers occurring exactly once by
// byte-equal comparison. Per design note §9 this intentionally compares raw
// identifier bytes, not derived addresses: an address-form and pubkey-form
// recording of the same signer count as two distinct entries, mirroring
// the documented ambiguity rather than resolving it.
func (b *Block) GetUniqueSignatureCount() int {
	counts := make(map[string]int)
	for _, p := range b.Signatures.Snapshot() {
		counts[string(p.Identifier)]++
	}
	unique := 0
	for _, n := range counts {
		if n == 1 {
			unique++
		}
	}
	return unique
}

// Clone deep-copies every byte slice, the signature set and every segment.
func (b *Block) Clone() *Block {
	out := NewBlock(b.Version, b.BlockNum)
	out.Transactions = append([]string(nil), b.Transactions...)
	out.BlockChecksum = append([]byte(nil), b.BlockChecksum...)
	out.LastBlockChecksum = append([]byte(nil), b.LastBlockChecksum...)
	out.WalletStateChecksum = append([]byte(nil), b.WalletStateChecksum...)
	out.SignatureFreezeChecksum = append([]byte(nil), b.SignatureFreezeChecksum...)
	out.Difficulty = b.Difficulty
	out.Timestamp = b.Timestamp
	out.LastSuperBlockNum = b.LastSuperBlockNum
	out.LastSuperBlockChecksum = append([]byte(nil), b.LastSuperBlockChecksum...)
	out.PowField = append([]byte(nil), b.PowField...)
	out.FromLocalStorage = b.FromLocalStorage
	out.Logger = b.Logger

	out.Signatures.Replace(b.Signatures.Snapshot())

	for k, seg := range b.SuperBlockSegments {
		out.SuperBlockSegments[k] = seg.Clone()
	}
	return out
}

func recoverPublicKey(id []byte, resolver wallet.Resolver) ([]byte, error) {
	if wallet.Classify(id) == wallet.KindPublicKey {
		return id, nil
	}
	w, ok := resolver.GetWallet(id)
	if !ok || !w.HasPublicKey() {
		return nil, newErr(ErrLookup, "no registered public key for address")
	}
	return w.PublicKey, nil
}

func concatTransactions(txs []string) []byte {
	var buf bytes.Buffer
	for _, tx := range txs {
		buf.WriteString(tx)
	}
	return buf.Bytes()
}

func sortedSegmentNums(m map[uint64]*SuperBlockSegment) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func hexLower(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}

func uintToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
