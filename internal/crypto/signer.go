package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Exchange contracts on Polygon mainnet that verify order signatures.
const (
	CTFExchangeAddress     = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	NegRiskExchangeAddress = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
)

var (
	authDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	exchangeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

const clobAuthMessage = "This message attests that I control the given wallet"

// Side values in the signed order struct.
const (
	SideBuy  uint8 = 0
	SideSell uint8 = 1
)

// Order is the signed struct accepted by the CTF exchange.
type Order struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

// Signer produces EIP-712 signatures for CLOB authentication and orders.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64

	authDomain     []byte
	exchangeDomain []byte
	negRiskDomain  []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID (137 for Polygon mainnet).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	id := int64(chainID)
	return &Signer{
		key:            pk,
		address:        ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:        id,
		authDomain:     authDomain(id),
		exchangeDomain: exchangeDomain(id, common.HexToAddress(CTFExchangeAddress)),
		negRiskDomain:  exchangeDomain(id, common.HexToAddress(NegRiskExchangeAddress)),
	}, nil
}

// Address returns the EOA derived from the private key.
func (s *Signer) Address() common.Address { return s.address }

// ChainID returns the chain the signer was built for.
func (s *Signer) ChainID() int64 { return s.chainID }

// SignAuth signs the ClobAuth message used for L1 API-key derivation.
func (s *Signer) SignAuth(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(fmt.Sprintf("%d", timestamp))),
		word(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	)
	return s.sign(typedDataHash(s.authDomain, structHash))
}

// SignOrder signs an order for the CTF exchange, or the neg-risk exchange
// when negRisk is set.
func (s *Signer) SignOrder(o Order, negRisk bool) (string, error) {
	domain := s.exchangeDomain
	if negRisk {
		domain = s.negRiskDomain
	}
	structHash, err := o.hash()
	if err != nil {
		return "", err
	}
	return s.sign(typedDataHash(domain, structHash))
}

func (o Order) hash() ([]byte, error) {
	for name, v := range map[string]*big.Int{
		"salt": o.Salt, "tokenId": o.TokenID, "makerAmount": o.MakerAmount,
		"takerAmount": o.TakerAmount, "expiration": o.Expiration, "nonce": o.Nonce,
		"feeRateBps": o.FeeRateBps,
	} {
		if v == nil || v.Sign() < 0 {
			return nil, fmt.Errorf("crypto/signer: order field %s missing or negative", name)
		}
	}
	return ethcrypto.Keccak256(
		orderTypeHash,
		word(o.Salt),
		common.LeftPadBytes(o.Maker.Bytes(), 32),
		common.LeftPadBytes(o.Signer.Bytes(), 32),
		common.LeftPadBytes(o.Taker.Bytes(), 32),
		word(o.TokenID),
		word(o.MakerAmount),
		word(o.TakerAmount),
		word(o.Expiration),
		word(o.Nonce),
		word(o.FeeRateBps),
		word(big.NewInt(int64(o.Side))),
		word(big.NewInt(int64(o.SignatureType))),
	), nil
}

func authDomain(chainID int64) []byte {
	return ethcrypto.Keccak256(
		authDomainTypeHash,
		ethcrypto.Keccak256([]byte("ClobAuthDomain")),
		ethcrypto.Keccak256([]byte("1")),
		word(big.NewInt(chainID)),
	)
}

func exchangeDomain(chainID int64, contract common.Address) []byte {
	return ethcrypto.Keccak256(
		exchangeDomainTypeHash,
		ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
		ethcrypto.Keccak256([]byte("1")),
		word(big.NewInt(chainID)),
		common.LeftPadBytes(contract.Bytes(), 32),
	)
}

// typedDataHash computes keccak256("\x19\x01" || domainSeparator || structHash).
func typedDataHash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
}

// sign returns the 65-byte r||s||v signature with v in {27,28}.
func (s *Signer) sign(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// word left-pads n to a 32-byte EVM word.
func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
