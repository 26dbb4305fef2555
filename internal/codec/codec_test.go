package codec

import (
	"copin/types"
	"net/url"
	"sort"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

var (
	from = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	to   = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC).UnixMilli()
)

func TestRoundTrip(t *testing.T) {
	gmx, _ := types.LookupProtocol(types.ProtocolGMX)
	tests := []struct {
		name     string
		protocol types.Protocol
		data     types.RequestBackTestData
	}{
		{
			name:     "required fields only",
			protocol: types.ProtocolGMX,
			data: types.RequestBackTestData{
				Accounts:       []string{"0x1111111111111111111111111111111111111111"},
				Balance:        1000,
				OrderVolume:    100,
				Leverage:       5,
				FromTime:       from,
				ToTime:         to,
				TokenAddresses: []string{gmx.TokenAddresses[2], gmx.TokenAddresses[0]},
			},
		},
		{
			name:     "all optional fields",
			protocol: types.ProtocolGMX,
			data: types.RequestBackTestData{
				Accounts:         []string{"0x2222222222222222222222222222222222222222", "0x3333333333333333333333333333333333333333"},
				Balance:          1234.5,
				OrderVolume:      0.25,
				Leverage:         12,
				FromTime:         from,
				ToTime:           to,
				TokenAddresses:   gmx.TokenAddresses,
				LookBackOrders:   ptr(7),
				StopLossAmount:   ptr(40.0),
				StopLossType:     types.SLTPTypePercent,
				TakeProfitAmount: ptr(125.75),
				TakeProfitType:   types.SLTPTypeUSD,
				MaxVolMultiplier: ptr(1.5),
				ReverseCopy:      true,
			},
		},
		{
			name:     "symbol tokens",
			protocol: types.ProtocolHyperliquid,
			data: types.RequestBackTestData{
				Accounts:       []string{"0x4444444444444444444444444444444444444444"},
				Balance:        5000,
				OrderVolume:    500,
				Leverage:       3,
				FromTime:       from,
				ToTime:         to,
				TokenAddresses: []string{"SOL", "BTC"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRequestData(StringifyRequestData(tt.data, tt.protocol), tt.protocol)
			if got.Empty() {
				t.Fatalf("ParseRequestData() returned empty params")
			}
			req := got.Request()
			if !equalStrings(req.Accounts, tt.data.Accounts) {
				t.Errorf("accounts = %v, want %v", req.Accounts, tt.data.Accounts)
			}
			if req.Balance != tt.data.Balance || req.OrderVolume != tt.data.OrderVolume || req.Leverage != tt.data.Leverage {
				t.Errorf("amounts = %v/%v/%v, want %v/%v/%v", req.Balance, req.OrderVolume, req.Leverage,
					tt.data.Balance, tt.data.OrderVolume, tt.data.Leverage)
			}
			if req.FromTime != tt.data.FromTime || req.ToTime != tt.data.ToTime {
				t.Errorf("range = %v-%v, want %v-%v", req.FromTime, req.ToTime, tt.data.FromTime, tt.data.ToTime)
			}
			if !equalPtr(req.LookBackOrders, tt.data.LookBackOrders) {
				t.Errorf("lookBackOrders = %v, want %v", req.LookBackOrders, tt.data.LookBackOrders)
			}
			if !equalPtr(req.StopLossAmount, tt.data.StopLossAmount) || !equalPtr(req.TakeProfitAmount, tt.data.TakeProfitAmount) {
				t.Errorf("sl/tp = %v/%v, want %v/%v", req.StopLossAmount, req.TakeProfitAmount, tt.data.StopLossAmount, tt.data.TakeProfitAmount)
			}
			if tt.data.StopLossAmount != nil && req.StopLossType != tt.data.StopLossType {
				t.Errorf("stopLossType = %v, want %v", req.StopLossType, tt.data.StopLossType)
			}
			if !equalPtr(req.MaxVolMultiplier, tt.data.MaxVolMultiplier) {
				t.Errorf("maxVolMultiplier = %v, want %v", req.MaxVolMultiplier, tt.data.MaxVolMultiplier)
			}
			if req.ReverseCopy != tt.data.ReverseCopy {
				t.Errorf("reverseCopy = %v, want %v", req.ReverseCopy, tt.data.ReverseCopy)
			}
			if !sameSet(req.TokenAddresses, tt.data.TokenAddresses) {
				t.Errorf("tokens = %v, want %v", req.TokenAddresses, tt.data.TokenAddresses)
			}
		})
	}
}

func TestCopyAll(t *testing.T) {
	data := types.RequestBackTestData{
		Accounts:       []string{"0xabc"},
		Balance:        1000,
		OrderVolume:    100,
		Leverage:       5,
		FromTime:       from,
		ToTime:         to,
		TokenAddresses: []string{"BTC"},
		CopyAll:        true,
	}
	encoded := StringifyRequestData(data, types.ProtocolHyperliquid)
	if _, ok := encoded[KeyTokens]; ok {
		t.Fatalf("StringifyRequestData() should omit tokens with copyAll, got %v", encoded)
	}

	// A stale token list in the link is ignored.
	encoded.Set(KeyTokens, "0")
	got := ParseRequestData(encoded, types.ProtocolHyperliquid)
	info, _ := types.LookupProtocol(types.ProtocolHyperliquid)
	if !got.CopyAll || !sameSet(got.TokenAddresses, info.TokenAddresses) {
		t.Errorf("ParseRequestData() tokens = %v, want full list %v", got.TokenAddresses, info.TokenAddresses)
	}
}

func TestNonPositiveOptionalFieldsDropped(t *testing.T) {
	base := url.Values{
		KeyAccount:     {"0xabc"},
		KeyBalance:     {"1000"},
		KeyOrderVolume: {"100"},
		KeyLeverage:    {"5"},
		KeyFrom:        {"1704067200000"},
		KeyTo:          {"1706659200000"},
		KeyCopyAll:     {"1"},
	}
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero stop loss", KeyStopLoss, "0"},
		{"zero look back", KeyLookBack, "0"},
		{"zero take profit", KeyTakeProfit, "0"},
		{"negative take profit", KeyTakeProfit, "-5"},
		{"garbage stop loss", KeyStopLoss, "abc"},
		{"zero max vol", KeyMaxVol, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := url.Values{}
			for k, v := range base {
				values[k] = v
			}
			values.Set(tt.key, tt.value)
			got := ParseRequestData(values, types.ProtocolGMX)
			if got.Empty() {
				t.Fatalf("ParseRequestData() should keep the required fields")
			}
			if got.EnableStopLoss || got.StopLossAmount != nil {
				t.Errorf("stop loss enabled: %v %v", got.EnableStopLoss, got.StopLossAmount)
			}
			if got.VolumeProtection || got.LookBackOrders != nil {
				t.Errorf("volume protection enabled: %v %v", got.VolumeProtection, got.LookBackOrders)
			}
			if got.EnableTakeProfit || got.TakeProfitAmount != nil {
				t.Errorf("take profit enabled: %v %v", got.EnableTakeProfit, got.TakeProfitAmount)
			}
			if got.MaxVolMultiplier != nil {
				t.Errorf("maxVolMultiplier = %v, want nil", *got.MaxVolMultiplier)
			}
		})
	}
}

func TestParseRequestDataInvalid(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		protocol types.Protocol
	}{
		{"empty", "", types.ProtocolGMX},
		{"missing account", "bal=1000&vol=100&lev=5&from=1&to=2&copy_all=1", types.ProtocolGMX},
		{"non numeric balance", "acc=0x1&bal=abc&vol=100&lev=5&from=1&to=2&copy_all=1", types.ProtocolGMX},
		{"missing to", "acc=0x1&bal=1000&vol=100&lev=5&from=1&copy_all=1", types.ProtocolGMX},
		{"no tokens and no copy all", "acc=0x1&bal=1000&vol=100&lev=5&from=1&to=2", types.ProtocolGMX},
		{"token index out of range", "acc=0x1&bal=1000&vol=100&lev=5&from=1&to=2&tokens=0_99", types.ProtocolGMX},
		{"unknown protocol", "acc=0x1&bal=1000&vol=100&lev=5&from=1&to=2&copy_all=1", types.Protocol("NOPE")},
		{"malformed query", "acc=%zz", types.ProtocolGMX},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeQuery(tt.query, tt.protocol)
			if !got.Empty() {
				t.Errorf("DecodeQuery() = %+v, want empty", got)
			}
			if got.FormValues() != nil {
				t.Errorf("FormValues() should be nil for empty params")
			}
		})
	}
}

func TestStringifyRequestDataFailure(t *testing.T) {
	data := types.RequestBackTestData{Accounts: []string{"0x1"}, TokenAddresses: []string{"NOT_A_TOKEN"}}
	if got := StringifyRequestData(data, types.ProtocolGMX); len(got) != 0 {
		t.Errorf("StringifyRequestData() = %v, want empty", got)
	}
	if got := StringifyRequestData(data, types.Protocol("NOPE")); len(got) != 0 {
		t.Errorf("StringifyRequestData() = %v, want empty", got)
	}
}

func TestTokensAreCompacted(t *testing.T) {
	data := types.RequestBackTestData{
		Accounts:       []string{"0x1"},
		TokenAddresses: []string{"SOL", "ARB"},
	}
	got := StringifyRequestData(data, types.ProtocolHyperliquid)
	// sorted: ARB AVAX BTC DOGE ETH SOL
	if got.Get(KeyTokens) != "5_0" {
		t.Errorf("tokens = %q, want %q", got.Get(KeyTokens), "5_0")
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	return equalStrings(x, y)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
