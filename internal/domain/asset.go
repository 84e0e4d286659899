package domain

import (
	"fmt"
	"strings"
)

// Asset is an underlying whose Up/Down markets are traded.
type Asset string

const (
	AssetBTC Asset = "BTC"
	AssetETH Asset = "ETH"
	AssetSOL Asset = "SOL"
	AssetXRP Asset = "XRP"
)

// Assets lists every supported asset in discovery and reporting order.
var Assets = []Asset{AssetBTC, AssetETH, AssetSOL, AssetXRP}

// ParseAsset accepts an asset symbol in any case ("btc", "Sol", ...).
func ParseAsset(s string) (Asset, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BTC":
		return AssetBTC, nil
	case "ETH":
		return AssetETH, nil
	case "SOL", "SOLANA":
		return AssetSOL, nil
	case "XRP":
		return AssetXRP, nil
	}
	return "", fmt.Errorf("domain: unknown asset %q", s)
}

// Mandatory reports whether trading cannot start without a live market for
// the asset.
func (a Asset) Mandatory() bool { return a == AssetBTC }

// SlugPrefixes returns the market slug prefixes tried for the asset, in order.
func (a Asset) SlugPrefixes() []string {
	switch a {
	case AssetBTC:
		return []string{"btc"}
	case AssetETH:
		return []string{"eth"}
	case AssetSOL:
		return []string{"sol", "solana"}
	case AssetXRP:
		return []string{"xrp"}
	}
	return nil
}

// Direction is the side of an Up/Down market.
type Direction string

const (
	Up   Direction = "Up"
	Down Direction = "Down"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Up {
		return Down
	}
	return Up
}

// TokenType identifies one leg of one asset's Up/Down market. The zero value
// is invalid; use the exported variants.
type TokenType uint8

const (
	BTCUp TokenType = iota + 1
	BTCDown
	ETHUp
	ETHDown
	SOLUp
	SOLDown
	XRPUp
	XRPDown
)

// TokenTypes lists all variants in Asset order, Up before Down.
var TokenTypes = []TokenType{BTCUp, BTCDown, ETHUp, ETHDown, SOLUp, SOLDown, XRPUp, XRPDown}

// NewTokenType builds the variant for an asset and direction.
func NewTokenType(a Asset, d Direction) (TokenType, error) {
	for _, tt := range TokenTypes {
		if tt.Asset() == a && tt.Direction() == d {
			return tt, nil
		}
	}
	return 0, fmt.Errorf("domain: no token type for %s %s", a, d)
}

// Asset projects the token type onto its asset.
func (t TokenType) Asset() Asset {
	switch t {
	case BTCUp, BTCDown:
		return AssetBTC
	case ETHUp, ETHDown:
		return AssetETH
	case SOLUp, SOLDown:
		return AssetSOL
	case XRPUp, XRPDown:
		return AssetXRP
	}
	return ""
}

// Direction projects the token type onto its side.
func (t TokenType) Direction() Direction {
	switch t {
	case BTCUp, ETHUp, SOLUp, XRPUp:
		return Up
	case BTCDown, ETHDown, SOLDown, XRPDown:
		return Down
	}
	return ""
}

// Opposite returns the other leg of the same asset.
func (t TokenType) Opposite() TokenType {
	switch t {
	case BTCUp:
		return BTCDown
	case BTCDown:
		return BTCUp
	case ETHUp:
		return ETHDown
	case ETHDown:
		return ETHUp
	case SOLUp:
		return SOLDown
	case SOLDown:
		return SOLUp
	case XRPUp:
		return XRPDown
	case XRPDown:
		return XRPUp
	}
	return 0
}

// DisplayName renders the token type for logs, e.g. "BTC Up".
func (t TokenType) DisplayName() string {
	if !t.Valid() {
		return fmt.Sprintf("TokenType(%d)", uint8(t))
	}
	return string(t.Asset()) + " " + string(t.Direction())
}

// String implements fmt.Stringer.
func (t TokenType) String() string { return t.DisplayName() }

// Valid reports whether t is one of the defined variants.
func (t TokenType) Valid() bool { return t >= BTCUp && t <= XRPDown }

// Key renders a compact identifier used in storage keys, e.g. "btc_up".
func (t TokenType) Key() string {
	return strings.ToLower(string(t.Asset())) + "_" + strings.ToLower(string(t.Direction()))
}

// ParseTokenType is the inverse of Key and DisplayName.
func ParseTokenType(s string) (TokenType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, tt := range TokenTypes {
		if s == tt.Key() || s == strings.ToLower(tt.DisplayName()) {
			return tt, nil
		}
	}
	return 0, fmt.Errorf("domain: unknown token type %q", s)
}
