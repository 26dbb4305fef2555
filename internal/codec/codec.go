// Package codec maps backtest requests to and from the short query strings used by
// share links and deep links.
package codec

import (
	"copin/internal/form"
	"copin/types"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	KeyAccount     = "acc"
	KeyBalance     = "bal"
	KeyOrderVolume = "vol"
	KeyLeverage    = "lev"
	KeyFrom        = "from"
	KeyTo          = "to"
	KeyLookBack    = "look_back"
	KeyStopLoss    = "sl"
	KeyStopLossTyp = "sl_type"
	KeyTakeProfit  = "tp"
	KeyTakeProfTyp = "tp_type"
	KeyMaxVol      = "max_vol"
	KeyReverse     = "reverse"
	KeyTokens      = "tokens"
	KeyCopyAll     = "copy_all"

	// KeyOpenModal asks the client to open the result view after an auto-submitted deep link.
	KeyOpenModal = "open_backtest_modal"

	listSeparator = "_"
)

var (
	ErrUnknownProtocol = errors.New("unknown protocol")
	ErrUnknownToken    = errors.New("token not supported by protocol")
	ErrMissingField    = errors.New("missing required field")
	ErrNotNumeric      = errors.New("field is not numeric")
)

// Params is a decoded share link. The zero value means there was nothing usable to decode.
type Params struct {
	Accounts         []string       `json:"accounts"`
	Balance          float64        `json:"balance"`
	OrderVolume      float64        `json:"orderVolume"`
	Leverage         float64        `json:"leverage"`
	FromTime         int64          `json:"fromTime"`
	ToTime           int64          `json:"toTime"`
	TokenAddresses   []string       `json:"tokenAddresses"`
	CopyAll          bool           `json:"copyAll"`
	ReverseCopy      bool           `json:"reverseCopy"`
	VolumeProtection bool           `json:"volumeProtection"`
	LookBackOrders   *int           `json:"lookBackOrders,omitempty"`
	EnableStopLoss   bool           `json:"enableStopLoss"`
	StopLossType     types.SLTPType `json:"stopLossType,omitempty"`
	StopLossAmount   *float64       `json:"stopLossAmount,omitempty"`
	EnableTakeProfit bool           `json:"enableTakeProfit"`
	TakeProfitType   types.SLTPType `json:"takeProfitType,omitempty"`
	TakeProfitAmount *float64       `json:"takeProfitAmount,omitempty"`
	MaxVolMultiplier *float64       `json:"maxVolMultiplier,omitempty"`
}

func (p Params) Empty() bool {
	return len(p.Accounts) == 0
}

// Request converts decoded params into the simulator payload.
func (p Params) Request() types.RequestBackTestData {
	req := types.RequestBackTestData{
		Accounts:         append([]string(nil), p.Accounts...),
		Balance:          p.Balance,
		OrderVolume:      p.OrderVolume,
		Leverage:         p.Leverage,
		TokenAddresses:   append([]string(nil), p.TokenAddresses...),
		FromTime:         p.FromTime,
		ToTime:           p.ToTime,
		ReverseCopy:      p.ReverseCopy,
		CopyAll:          p.CopyAll,
		MaxVolMultiplier: p.MaxVolMultiplier,
	}
	if p.VolumeProtection {
		req.LookBackOrders = p.LookBackOrders
	}
	if p.EnableStopLoss {
		req.StopLossAmount = p.StopLossAmount
		req.StopLossType = p.StopLossType
	}
	if p.EnableTakeProfit {
		req.TakeProfitAmount = p.TakeProfitAmount
		req.TakeProfitType = p.TakeProfitType
	}
	return req.Clone()
}

// FormValues returns the form a decoded link pre-fills, or nil when p is empty.
func (p Params) FormValues() *form.Values {
	if p.Empty() {
		return nil
	}
	req := p.Request()
	return form.FromRequest(&req)
}

// StringifyRequestData encodes data with short keys. Any failure yields an empty map.
func StringifyRequestData(data types.RequestBackTestData, protocol types.Protocol) url.Values {
	values, err := stringify(data, protocol)
	if err != nil {
		return url.Values{}
	}
	return values
}

// ParseRequestData decodes a share link. Any failure or missing required field yields
// the zero Params.
func ParseRequestData(values url.Values, protocol types.Protocol) Params {
	p, err := parse(values, protocol)
	if err != nil {
		return Params{}
	}
	return p
}

func EncodeQuery(data types.RequestBackTestData, protocol types.Protocol) string {
	return StringifyRequestData(data, protocol).Encode()
}

func DecodeQuery(rawQuery string, protocol types.Protocol) Params {
	values, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		return Params{}
	}
	return ParseRequestData(values, protocol)
}

func WantsOpenModal(values url.Values) bool {
	return values.Get(KeyOpenModal) == "1"
}

func stringify(data types.RequestBackTestData, protocol types.Protocol) (url.Values, error) {
	info, ok := types.LookupProtocol(protocol)
	if !ok {
		return nil, fmt.Errorf("%s %w", protocol, ErrUnknownProtocol)
	}
	v := url.Values{}
	v.Set(KeyAccount, strings.Join(data.Accounts, listSeparator))
	v.Set(KeyBalance, formatFloat(data.Balance))
	v.Set(KeyOrderVolume, formatFloat(data.OrderVolume))
	v.Set(KeyLeverage, formatFloat(data.Leverage))
	v.Set(KeyFrom, strconv.FormatInt(data.FromTime, 10))
	v.Set(KeyTo, strconv.FormatInt(data.ToTime, 10))
	if data.LookBackOrders != nil {
		v.Set(KeyLookBack, strconv.Itoa(*data.LookBackOrders))
	}
	if data.StopLossAmount != nil {
		v.Set(KeyStopLoss, formatFloat(*data.StopLossAmount))
		if data.StopLossType != "" {
			v.Set(KeyStopLossTyp, string(data.StopLossType))
		}
	}
	if data.TakeProfitAmount != nil {
		v.Set(KeyTakeProfit, formatFloat(*data.TakeProfitAmount))
		if data.TakeProfitType != "" {
			v.Set(KeyTakeProfTyp, string(data.TakeProfitType))
		}
	}
	if data.MaxVolMultiplier != nil {
		v.Set(KeyMaxVol, formatFloat(*data.MaxVolMultiplier))
	}
	if data.ReverseCopy {
		v.Set(KeyReverse, "1")
	}
	if data.CopyAll {
		v.Set(KeyCopyAll, "1")
		return v, nil
	}
	tokens, err := compactTokens(data.TokenAddresses, info)
	if err != nil {
		return nil, err
	}
	v.Set(KeyTokens, tokens)
	return v, nil
}

func parse(values url.Values, protocol types.Protocol) (Params, error) {
	info, ok := types.LookupProtocol(protocol)
	if !ok {
		return Params{}, fmt.Errorf("%s %w", protocol, ErrUnknownProtocol)
	}
	var (
		p   Params
		err error
	)
	p.Accounts = splitList(values.Get(KeyAccount))
	if len(p.Accounts) == 0 {
		return Params{}, fmt.Errorf("%s %w", KeyAccount, ErrMissingField)
	}
	if p.Balance, err = requiredFloat(values, KeyBalance); err != nil {
		return Params{}, err
	}
	if p.OrderVolume, err = requiredFloat(values, KeyOrderVolume); err != nil {
		return Params{}, err
	}
	if p.Leverage, err = requiredFloat(values, KeyLeverage); err != nil {
		return Params{}, err
	}
	if p.FromTime, err = requiredInt(values, KeyFrom); err != nil {
		return Params{}, err
	}
	if p.ToTime, err = requiredInt(values, KeyTo); err != nil {
		return Params{}, err
	}

	p.CopyAll = parseBool(values.Get(KeyCopyAll))
	p.ReverseCopy = parseBool(values.Get(KeyReverse))
	if p.CopyAll {
		p.TokenAddresses = info.TokenAddresses
	} else {
		p.TokenAddresses, err = expandTokens(values.Get(KeyTokens), info)
		if err != nil {
			return Params{}, err
		}
		if len(p.TokenAddresses) == 0 {
			return Params{}, fmt.Errorf("%s %w", KeyTokens, ErrMissingField)
		}
	}

	if lookBack, ok := positiveFloat(values, KeyLookBack); ok {
		n := int(lookBack)
		if n > 0 {
			p.VolumeProtection = true
			p.LookBackOrders = &n
		}
	}
	if sl, ok := positiveFloat(values, KeyStopLoss); ok {
		p.EnableStopLoss = true
		p.StopLossAmount = &sl
		p.StopLossType = sltpType(values.Get(KeyStopLossTyp))
	}
	if tp, ok := positiveFloat(values, KeyTakeProfit); ok {
		p.EnableTakeProfit = true
		p.TakeProfitAmount = &tp
		p.TakeProfitType = sltpType(values.Get(KeyTakeProfTyp))
	}
	if maxVol, ok := positiveFloat(values, KeyMaxVol); ok {
		p.MaxVolMultiplier = &maxVol
	}
	return p, nil
}

func compactTokens(tokens []string, info types.ProtocolInfo) (string, error) {
	index := make(map[string]int)
	for i, t := range info.SortedTokens() {
		index[t] = i
	}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		i, ok := index[t]
		if !ok {
			return "", fmt.Errorf("%s %w", t, ErrUnknownToken)
		}
		out = append(out, strconv.Itoa(i))
	}
	return strings.Join(out, listSeparator), nil
}

func expandTokens(raw string, info types.ProtocolInfo) ([]string, error) {
	sorted := info.SortedTokens()
	var out []string
	for _, part := range splitList(raw) {
		i, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%s %w", KeyTokens, ErrNotNumeric)
		}
		if i < 0 || i >= len(sorted) {
			return nil, fmt.Errorf("token index %d %w", i, ErrUnknownToken)
		}
		out = append(out, sorted[i])
	}
	return out, nil
}

func requiredFloat(values url.Values, key string) (float64, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, fmt.Errorf("%s %w", key, ErrMissingField)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s %w", key, ErrNotNumeric)
	}
	return f, nil
}

func requiredInt(values url.Values, key string) (int64, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, fmt.Errorf("%s %w", key, ErrMissingField)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %w", key, ErrNotNumeric)
	}
	return n, nil
}

// positiveFloat reports a value only when it parses and is strictly above zero.
func positiveFloat(values url.Values, key string) (float64, bool) {
	raw := values.Get(key)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}

func sltpType(raw string) types.SLTPType {
	t := types.SLTPType(strings.ToUpper(raw))
	if t.Valid() {
		return t
	}
	return types.SLTPTypeUSD
}

func parseBool(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true":
		return true
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
