package crypto

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestKeyFileRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKey {
		t.Fatalf("got=%s want=%s", got, testKey)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("expected error with wrong password")
	}
}

func TestLoadKeyPrefersRaw(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey, EncryptedKeyPath: "/nonexistent"})
	if err != nil || got != testKey {
		t.Fatalf("got=%s err=%v", got, err)
	}
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Fatal("expected error with no source")
	}
}

func TestSignOrderRecoversSigner(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	o := Order{
		Salt:        big.NewInt(12345),
		Maker:       s.Address(),
		Signer:      s.Address(),
		TokenID:     big.NewInt(42),
		MakerAmount: big.NewInt(1_000_000),
		TakerAmount: big.NewInt(1_612_900),
		Expiration:  big.NewInt(0),
		Nonce:       big.NewInt(0),
		FeeRateBps:  big.NewInt(0),
		Side:        SideBuy,
	}
	sigHex, err := s.SignOrder(o, false)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		t.Fatalf("signature malformed: %s", sigHex)
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("v got=%d want 27 or 28", sig[64])
	}

	structHash, _ := o.hash()
	digest := typedDataHash(s.exchangeDomain, structHash)
	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub); got != s.Address() {
		t.Fatalf("recovered got=%s want=%s", got.Hex(), s.Address().Hex())
	}

	negRiskSig, _ := s.SignOrder(o, true)
	if negRiskSig == sigHex {
		t.Fatal("neg-risk domain must produce a different signature")
	}
}

func TestSignOrderRejectsMissingFields(t *testing.T) {
	s, _ := NewSigner(testKey, 137)
	if _, err := s.SignOrder(Order{Maker: common.Address{}}, false); err == nil {
		t.Fatal("expected error for empty order")
	}
}

func TestL2HeadersDeterministic(t *testing.T) {
	c := APICredentials{Key: "k", Secret: "c2VjcmV0", Passphrase: "p"}
	a := c.L2HeadersAt("0xabc", "GET", "/data/order/1", "", 1700000000)
	b := c.L2HeadersAt("0xabc", "GET", "/data/order/1", "", 1700000000)
	if a["POLY_SIGNATURE"] != b["POLY_SIGNATURE"] || a["POLY_SIGNATURE"] == "" {
		t.Fatalf("signature not deterministic: %v vs %v", a, b)
	}
	if a["POLY_TIMESTAMP"] != "1700000000" || a["POLY_ADDRESS"] != "0xabc" {
		t.Fatalf("unexpected headers: %v", a)
	}
	other := c.L2HeadersAt("0xabc", "DELETE", "/data/order/1", "", 1700000000)
	if other["POLY_SIGNATURE"] == a["POLY_SIGNATURE"] {
		t.Fatal("method must be part of the signed message")
	}
}

func TestBuilderHeaders(t *testing.T) {
	c := APICredentials{Key: "k", Secret: "c2VjcmV0", Passphrase: "p"}
	h := c.BuilderHeadersAt("POST", "/submit", `{"a":1}`, 1700000000000)
	for _, k := range []string{"POLY_BUILDER_API_KEY", "POLY_BUILDER_TIMESTAMP", "POLY_BUILDER_PASSPHRASE", "POLY_BUILDER_SIGNATURE"} {
		if h[k] == "" {
			t.Fatalf("missing header %s", k)
		}
	}
	if !strings.Contains(c.String(), "****") {
		t.Fatalf("String should redact: %s", c.String())
	}
}
