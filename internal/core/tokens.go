package core

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// ZeroAddress stands in for the chain's native asset in token maps.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// TokenInfo describes a token the detector can price
type TokenInfo struct {
	Address  string // lowercase contract address; ZeroAddress for native ETH
	Symbol   string
	Decimals int
	USDRate  float64
}

// TokenRegistry maps token contract addresses to pricing info.
// The defaults cover the assets the Arbitrum bridge actually sees; unknown
// tokens can be added at runtime after an on-chain metadata lookup.
type TokenRegistry struct {
	mu     sync.RWMutex
	tokens map[string]TokenInfo
}

// NewTokenRegistry creates a registry seeded with the known bridge assets.
// ethUSDRate prices native ETH; stablecoins are pinned at $1.
func NewTokenRegistry(ethUSDRate float64) *TokenRegistry {
	r := &TokenRegistry{tokens: make(map[string]TokenInfo)}
	r.Add(TokenInfo{Address: ZeroAddress, Symbol: "ETH", Decimals: 18, USDRate: ethUSDRate})
	r.Add(TokenInfo{Address: "0xaf88d065e77c8cc2239327c5edb3a432268e5831", Symbol: "USDC", Decimals: 6, USDRate: 1.0})
	r.Add(TokenInfo{Address: "0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9", Symbol: "USDT", Decimals: 6, USDRate: 1.0})
	return r
}

// Add registers or replaces a token entry.
func (r *TokenRegistry) Add(t TokenInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[strings.ToLower(t.Address)] = t
}

// Lookup resolves a token address to its info. An empty address resolves to
// the native asset.
func (r *TokenRegistry) Lookup(address string) (TokenInfo, bool) {
	if address == "" {
		address = ZeroAddress
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[strings.ToLower(address)]
	return t, ok
}

// SetUSDRate updates the USD rate for a known token (oracle refresh path).
func (r *TokenRegistry) SetUSDRate(address string, rate float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(address)
	t, ok := r.tokens[key]
	if !ok {
		return false
	}
	t.USDRate = rate
	r.tokens[key] = t
	return true
}

// ParseAmount converts a raw on-chain value (hex "0x..." or decimal string)
// into token units using the token's decimals
func ParseAmount(raw string, decimals int) (float64, error) {
	v, err := parseRawValue(raw)
	if err != nil {
		return 0, err
	}
	return scaleTokenAmount(v, decimals), nil
}

func parseRawValue(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v := new(big.Int)
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		if _, ok := v.SetString(raw[2:], 16); !ok {
			return nil, fmt.Errorf("invalid hex amount '%s'", raw)
		}
	} else {
		if _, ok := v.SetString(raw, 10); !ok {
			return nil, fmt.Errorf("invalid amount '%s'", raw)
		}
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount '%s'", raw)
	}
	return v, nil
}

// scaleTokenAmount divides a raw integer amount by 10^decimals using big.Float
// to avoid overflow on 18-decimal values
func scaleTokenAmount(v *big.Int, decimals int) float64 {
	num := new(big.Float).SetInt(v)
	den := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(num, den).Float64()
	return out
}
