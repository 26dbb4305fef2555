package types

import (
	"sort"
	"sync"
)

type Protocol string

type MarginModel string

const (
	ProtocolGMX         Protocol = "GMX"
	ProtocolHyperliquid Protocol = "HYPERLIQUID"

	MarginIsolated MarginModel = "ISOLATED"
	MarginCross    MarginModel = "CROSS"
)

// ProtocolInfo describes what the simulator supports for a protocol.
type ProtocolInfo struct {
	Protocol       Protocol    `json:"protocol" yaml:"protocol"`
	MarginModel    MarginModel `json:"marginModel" yaml:"marginModel"`
	TokenAddresses []string    `json:"tokenAddresses" yaml:"tokenAddresses"`
}

var (
	protocolsMu sync.RWMutex
	protocols   = map[Protocol]ProtocolInfo{
		ProtocolGMX: {
			Protocol:    ProtocolGMX,
			MarginModel: MarginIsolated,
			TokenAddresses: []string{
				"0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", // WETH
				"0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f", // WBTC
				"0xf97f4df75117a78c1A5a0DBb814Af92458539FB4", // LINK
				"0xFa7F8980b0f1E64A2062791cc3b0871572f1F7f0", // UNI
			},
		},
		ProtocolHyperliquid: {
			Protocol:       ProtocolHyperliquid,
			MarginModel:    MarginCross,
			TokenAddresses: []string{"BTC", "ETH", "SOL", "ARB", "DOGE", "AVAX"},
		},
	}
)

// RegisterProtocol adds or replaces a protocol definition.
func RegisterProtocol(info ProtocolInfo) {
	protocolsMu.Lock()
	defer protocolsMu.Unlock()
	info.TokenAddresses = append([]string(nil), info.TokenAddresses...)
	protocols[info.Protocol] = info
}

func LookupProtocol(p Protocol) (ProtocolInfo, bool) {
	protocolsMu.RLock()
	defer protocolsMu.RUnlock()
	info, ok := protocols[p]
	if !ok {
		return ProtocolInfo{}, false
	}
	info.TokenAddresses = append([]string(nil), info.TokenAddresses...)
	return info, true
}

func Protocols() []Protocol {
	protocolsMu.RLock()
	defer protocolsMu.RUnlock()
	out := make([]Protocol, 0, len(protocols))
	for p := range protocols {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortedTokens returns a sorted copy of the token list. Share links index into it.
func (p ProtocolInfo) SortedTokens() []string {
	tokens := append([]string(nil), p.TokenAddresses...)
	sort.Strings(tokens)
	return tokens
}

func (p ProtocolInfo) CrossMargin() bool {
	return p.MarginModel == MarginCross
}
