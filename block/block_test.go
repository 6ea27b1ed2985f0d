package block

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/atta2022/ixian-core/cryptoadapter"
	"github.com/atta2022/ixian-core/wallet"
)

type stubResolver struct {
	wallets map[string]wallet.Wallet
	addr    []byte
	pub     []byte
	priv    []byte
}

func newStubResolver() *stubResolver {
	return &stubResolver{wallets: make(map[string]wallet.Wallet)}
}

func (s *stubResolver) GetWallet(address []byte) (wallet.Wallet, bool) {
	w, ok := s.wallets[string(address)]
	return w, ok
}
func (s *stubResolver) PrimaryAddress() []byte    { return s.addr }
func (s *stubResolver) PrimaryPublicKey() []byte  { return s.pub }
func (s *stubResolver) PrimaryPrivateKey() []byte { return s.priv }

func mustKeypair(t *testing.T) (pub, priv []byte) {
	t.Helper()
	pub, priv, err := cryptoadapter.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return pub, priv
}

func TestBlockRoundTrip(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	b := NewBlock(5, 10)
	b.Transactions = []string{"tx1", "tx2"}
	b.BlockChecksum = []byte{1, 2, 3}
	b.LastBlockChecksum = []byte{4, 5}
	b.Difficulty = 7
	b.Timestamp = -42
	b.LastSuperBlockNum = 3
	b.LastSuperBlockChecksum = []byte{9}
	if _, err := b.Signatures.Add(SignaturePair{Signature: []byte{1}, Identifier: bytes.Repeat([]byte{7}, 40)}, adapter); err != nil {
		t.Fatal(err)
	}

	raw := b.Encode()
	got, err := DecodeBlock(raw)
	if err != nil {
		t.Fatal(err)
	}

	if got.Version != b.Version || got.BlockNum != b.BlockNum || got.Timestamp != b.Timestamp {
		t.Fatalf("scalar mismatch")
	}
	if len(got.Transactions) != 2 || got.Transactions[1] != "tx2" {
		t.Fatalf("transactions mismatch")
	}
	if got.Signatures.Len() != 1 {
		t.Fatalf("signatures mismatch: %d", got.Signatures.Len())
	}
	if !bytes.Equal(got.BlockChecksum, b.BlockChecksum) {
		t.Fatalf("block checksum mismatch")
	}
	if got.LastSuperBlockNum != 3 || !bytes.Equal(got.LastSuperBlockChecksum, []byte{9}) {
		t.Fatalf("last superblock mismatch")
	}
}

func TestBlockOversizeRejected(t *testing.T) {
	big := make([]byte, 3_145_729)
	if _, err := DecodeBlock(big); err == nil {
		t.Fatalf("expected oversize rejection")
	}
}

func TestBlockAddTransactionIdempotent(t *testing.T) {
	b := NewBlock(1, 1)
	b.AddTransaction("tx1")
	b.AddTransaction("tx1")
	b.AddTransaction("tx2")
	if len(b.Transactions) != 2 {
		t.Fatalf("expected 2 unique transactions, got %v", b.Transactions)
	}
}

func TestBlockSignatureDedupByAddress(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	pub, _ := mustKeypair(t)
	addr := wallet.DeriveAddress(pub, adapter)

	b := NewBlock(1, 1)
	added, err := b.Signatures.Add(SignaturePair{Signature: []byte{1}, Identifier: pub}, adapter)
	if err != nil || !added {
		t.Fatalf("first add should succeed")
	}
	added, err = b.Signatures.Add(SignaturePair{Signature: []byte{2}, Identifier: addr}, adapter)
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Fatalf("expected dedup no-op for address form of already-registered pubkey")
	}
	if b.Signatures.Len() != 1 {
		t.Fatalf("expected 1 signature, got %d", b.Signatures.Len())
	}
}

func TestBlockCalculateChecksumDeterministicAcrossSegmentOrder(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	lock := []byte("lock")

	build := func(order []uint64) *Block {
		b := NewBlock(5, 1)
		b.Transactions = []string{"tx"}
		for _, k := range order {
			seg := NewSuperBlockSegment(1, k)
			seg.SignatureFreezeChecksum = []byte{byte(k)}
			b.SuperBlockSegments[k] = seg
		}
		return b
	}

	a := build([]uint64{3, 1, 2})
	c := build([]uint64{1, 2, 3})

	if !bytes.Equal(a.CalculateChecksum(lock, adapter), c.CalculateChecksum(lock, adapter)) {
		t.Fatalf("expected checksum independent of map insertion order")
	}
}

func TestBlockVersionGateDivergesHashFunction(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	lock := []byte("lock")

	low := NewBlock(V2, 1)
	low.Transactions = []string{"tx"}
	high := NewBlock(V2+1, 1)
	high.Transactions = []string{"tx"}

	if bytes.Equal(low.CalculateChecksum(lock, adapter), high.CalculateChecksum(lock, adapter)) {
		t.Fatalf("expected version gate to select different hash functions")
	}
}

func TestBlockEqualityLaw(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	a := NewBlock(5, 1)
	a.BlockChecksum = []byte{1, 2, 3}
	a.SignatureFreezeChecksum = []byte{9}

	b := a.Clone()
	if !a.Equal(b, adapter) {
		t.Fatalf("expected clone to equal original")
	}

	b.BlockChecksum = []byte{9, 9, 9}
	if a.Equal(b, adapter) {
		t.Fatalf("expected mismatch on block checksum")
	}

	c := a.Clone()
	c.SignatureFreezeChecksum = nil
	if a.Equal(c, adapter) {
		t.Fatalf("expected mismatch on signature-freeze-checksum presence")
	}
}

func TestBlockGenesisLogDetails(t *testing.T) {
	b := NewBlock(0, 0)
	if !b.IsGenesis() {
		t.Fatalf("expected genesis block")
	}
	if got := b.LogDetails(); !bytes.Contains([]byte(got), []byte("G E N E S I S  B L O C K")) {
		t.Fatalf("expected genesis banner in log details, got %q", got)
	}
}

func TestBlockSignatureOrderingForChecksum(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	b1 := NewBlock(5, 1)
	b1.BlockChecksum = []byte{1}
	ids := [][]byte{
		bytes.Repeat([]byte{0x02}, 40),
		bytes.Repeat([]byte{0x01}, 40),
		bytes.Repeat([]byte{0x03}, 40),
	}
	for _, id := range ids {
		if _, err := b1.Signatures.Add(SignaturePair{Signature: []byte{1}, Identifier: id}, adapter); err != nil {
			t.Fatal(err)
		}
	}

	b2 := NewBlock(5, 1)
	b2.BlockChecksum = []byte{1}
	sorted := [][]byte{ids[1], ids[0], ids[2]}
	for _, id := range sorted {
		if _, err := b2.Signatures.Add(SignaturePair{Signature: []byte{1}, Identifier: id}, adapter); err != nil {
			t.Fatal(err)
		}
	}

	if !bytes.Equal(b1.CalculateSignatureChecksum(adapter), b2.CalculateSignatureChecksum(adapter)) {
		t.Fatalf("expected signature checksum to be invariant to insertion order")
	}
}

func TestBlockAddressVsPubkeyEquivalenceForContainsSignature(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	pub, _ := mustKeypair(t)
	addr := wallet.DeriveAddress(pub, adapter)

	seg := NewSuperBlockSegment(1, 1)
	if _, err := seg.SignatureFreezeSigners.Add(pub, adapter); err != nil {
		t.Fatal(err)
	}
	found, err := seg.ContainsSignature(addr, adapter)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatalf("expected address form to match pubkey-form signer")
	}
}

func TestBlockVerifyAndPurge(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	pub1, priv1 := mustKeypair(t)
	pub2, _ := mustKeypair(t)

	resolver := newStubResolver()
	resolver.wallets[string(wallet.DeriveAddress(pub1, adapter))] = wallet.Wallet{PublicKey: pub1}
	resolver.wallets[string(wallet.DeriveAddress(pub2, adapter))] = wallet.Wallet{PublicKey: pub2}

	b := NewBlock(5, 1)
	b.BlockChecksum = []byte("the block checksum")

	validSig, err := adapter.Sign(b.BlockChecksum, priv1)
	if err != nil {
		t.Fatal(err)
	}
	addr1 := wallet.DeriveAddress(pub1, adapter)
	addr2 := wallet.DeriveAddress(pub2, adapter)

	b.Signatures.items = append(b.Signatures.items,
		SignaturePair{Signature: validSig, Identifier: addr1},
		SignaturePair{Signature: []byte("not a valid signature bytes!!"), Identifier: addr2},
	)

	ok, err := b.VerifySignatures(resolver, adapter)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected at least one signature to survive")
	}
	remaining := b.Signatures.Snapshot()
	if len(remaining) != 1 {
		t.Fatalf("expected exactly 1 surviving signature, got %d", len(remaining))
	}
	if !bytes.Equal(remaining[0].Identifier, addr1) {
		t.Fatalf("expected the valid signer to survive")
	}
}

func TestBlockApplyAndAddSignature(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	pub, priv := mustKeypair(t)
	addr := wallet.DeriveAddress(pub, adapter)

	resolver := newStubResolver()
	resolver.addr = addr
	resolver.pub = pub
	resolver.priv = priv

	b := NewBlock(5, 1)
	b.BlockChecksum = []byte("checksum bytes")

	if err := b.ApplySignature(resolver, adapter); err != nil {
		t.Fatal(err)
	}
	if b.Signatures.Len() != 1 {
		t.Fatalf("expected 1 signature after ApplySignature, got %d", b.Signatures.Len())
	}

	// Re-applying is a no-op.
	if err := b.ApplySignature(resolver, adapter); err != nil {
		t.Fatal(err)
	}
	if b.Signatures.Len() != 1 {
		t.Fatalf("expected ApplySignature to be idempotent for the local identity")
	}

	other := NewBlock(5, 1)
	other.BlockChecksum = b.BlockChecksum
	pub2, priv2 := mustKeypair(t)
	sig2, err := adapter.Sign(other.BlockChecksum, priv2)
	if err != nil {
		t.Fatal(err)
	}
	added, err := other.AddSignature(sig2, pub2, resolver, adapter)
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Fatalf("expected AddSignature to admit a verifying signature")
	}

	badSig := append([]byte(nil), sig2...)
	badSig[0] ^= 0xFF
	pub3, _ := mustKeypair(t)
	_, err = other.AddSignature(badSig, pub3, resolver, adapter)
	if err == nil {
		t.Fatalf("expected AddSignature to reject a non-verifying signature")
	}
}

func TestBlockGetUniqueSignatureCountComparesRawIdentifiers(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	pub, _ := mustKeypair(t)
	addr := wallet.DeriveAddress(pub, adapter)

	b := NewBlock(5, 1)
	b.Signatures.items = append(b.Signatures.items,
		SignaturePair{Signature: []byte{1}, Identifier: pub},
		SignaturePair{Signature: []byte{2}, Identifier: addr},
	)

	// Per design note: raw-identifier comparison counts the pubkey-form and
	// address-form recordings of the same signer as two distinct, each
	// occurring once.
	if got := b.GetUniqueSignatureCount(); got != 2 {
		t.Fatalf("expected 2 unique raw identifiers, got %d", got)
	}
}

func TestBlockCloneIsDeepCopy(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	b := NewBlock(5, 1)
	b.BlockChecksum = []byte{1, 2, 3}
	if _, err := b.Signatures.Add(SignaturePair{Signature: []byte{1}, Identifier: bytes.Repeat([]byte{1}, 40)}, adapter); err != nil {
		t.Fatal(err)
	}

	clone := b.Clone()
	clone.BlockChecksum[0] = 0xFF
	if b.BlockChecksum[0] == 0xFF {
		t.Fatalf("mutating clone leaked into original")
	}

	if _, err := clone.Signatures.Add(SignaturePair{Signature: []byte{2}, Identifier: bytes.Repeat([]byte{2}, 40)}, adapter); err != nil {
		t.Fatal(err)
	}
	if b.Signatures.Len() != 1 {
		t.Fatalf("mutating clone's signature set leaked into original")
	}
}

func TestBlockAddTransactionLogsDuplicate(t *testing.T) {
	var out bytes.Buffer
	b := NewBlock(1, 1)
	b.Logger = slog.New(slog.NewTextHandler(&out, nil))

	b.AddTransaction("tx1")
	b.AddTransaction("tx1")

	if len(b.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(b.Transactions))
	}
	if !strings.Contains(out.String(), "duplicate transaction ignored") {
		t.Fatalf("expected duplicate-transaction log line, got %q", out.String())
	}
}

func TestBlockHasNodeSignatureLogsPossibleTampering(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	pub, _ := mustKeypair(t)
	addr := wallet.DeriveAddress(pub, adapter)

	var out bytes.Buffer
	b := NewBlock(5, 1)
	b.Logger = slog.New(slog.NewTextHandler(&out, nil))
	b.BlockChecksum = []byte("the block checksum")
	b.Signatures.items = append(b.Signatures.items,
		SignaturePair{Signature: []byte("not a valid signature bytes!!"), Identifier: addr},
	)

	found, err := b.HasNodeSignature(pub, newStubResolver(), adapter)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatalf("expected tampered signature to be reported absent")
	}
	if b.Signatures.Len() != 1 {
		t.Fatalf("expected tampered entry to survive (not purged), got %d entries", b.Signatures.Len())
	}
	if !strings.Contains(out.String(), "possible tampering") {
		t.Fatalf("expected possible-tampering log line, got %q", out.String())
	}
}

func TestBlockGetSignaturesWalletAddressesConvertsPubkeysToAddresses(t *testing.T) {
	adapter := cryptoadapter.DevStdAdapter{}
	pubRegistered, _ := mustKeypair(t)
	pubUnregistered, _ := mustKeypair(t)
	addrRegistered := wallet.DeriveAddress(pubRegistered, adapter)

	resolver := newStubResolver()
	resolver.wallets[string(addrRegistered)] = wallet.Wallet{PublicKey: pubRegistered}

	b := NewBlock(5, 1)
	b.Signatures.items = append(b.Signatures.items,
		SignaturePair{Signature: []byte{1}, Identifier: addrRegistered},
		SignaturePair{Signature: []byte{2}, Identifier: pubUnregistered},
	)

	addrs := b.GetSignaturesWalletAddresses(true, resolver, adapter)
	if len(addrs) != 2 {
		t.Fatalf("expected a derived address for every signer, got %d entries", len(addrs))
	}
	wantAddr := wallet.DeriveAddress(pubUnregistered, adapter)
	found := false
	for _, a := range addrs {
		if bytes.Equal(a, wantAddr) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pubkey-form signer's derived address in result, got %x", addrs)
	}

	raw := b.GetSignaturesWalletAddresses(false, resolver, adapter)
	if len(raw) != 2 {
		t.Fatalf("expected 2 entries with convertPubkeys=false, got %d", len(raw))
	}
	foundRaw := false
	for _, a := range raw {
		if bytes.Equal(a, pubUnregistered) {
			foundRaw = true
		}
	}
	if !foundRaw {
		t.Fatalf("expected raw pubkey bytes in result when convertPubkeys=false, got %x", raw)
	}
}
