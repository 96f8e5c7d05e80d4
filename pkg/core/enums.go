package core

import "strings"

// Exchange identifies a supported trading venue.
type Exchange int

// Exchange constants enumerate the venues with a registered adapter.
const (
	// ExchangeUnknown indicates an unrecognized or unset venue.
	ExchangeUnknown Exchange = iota
	// ExchangeBinance is the Binance exchange.
	ExchangeBinance
	// ExchangeOKX is the OKX exchange.
	ExchangeOKX
	// ExchangeBybit is the Bybit exchange.
	ExchangeBybit
	// ExchangeGate is the Gate.io exchange.
	ExchangeGate
	// ExchangeKucoin is the KuCoin exchange.
	ExchangeKucoin
	// ExchangeDeribit is the Deribit exchange.
	ExchangeDeribit
	// ExchangeCoinex is the CoinEx exchange.
	ExchangeCoinex
	// ExchangeBitget is the Bitget exchange.
	ExchangeBitget
)

// String returns the lowercase name of the exchange.
func (e Exchange) String() string {
	return [...]string{
		"unknown",
		"binance",
		"okx",
		"bybit",
		"gate",
		"kucoin",
		"deribit",
		"coinex",
		"bitget",
	}[e]
}

// MarshalJSON implements json.Marshaler for Exchange.
func (e Exchange) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.String() + `"`), nil
}

// ParseExchange converts a case-insensitive exchange name into an Exchange.
// Unrecognized names return ExchangeUnknown.
func ParseExchange(s string) Exchange {
	switch strings.ToLower(s) {
	case "binance":
		return ExchangeBinance
	case "okx":
		return ExchangeOKX
	case "bybit":
		return ExchangeBybit
	case "gate", "gateio":
		return ExchangeGate
	case "kucoin":
		return ExchangeKucoin
	case "deribit":
		return ExchangeDeribit
	case "coinex":
		return ExchangeCoinex
	case "bitget":
		return ExchangeBitget
	default:
		return ExchangeUnknown
	}
}

// MarketType represents the type of trading market on an exchange.
type MarketType int

// Market type constants define the available trading market categories.
const (
	// MarketUnknown indicates an unrecognized or unset market.
	MarketUnknown MarketType = iota
	// MarketSpot indicates spot trading where assets are exchanged immediately.
	MarketSpot
	// MarketMargin indicates leveraged spot trading.
	MarketMargin
	// MarketUPerp indicates USD(T)-margined perpetual futures.
	MarketUPerp
	// MarketCPerp indicates coin-margined perpetual futures.
	MarketCPerp
	// MarketUDelivery indicates USD(T)-margined delivery futures.
	MarketUDelivery
	// MarketCDelivery indicates coin-margined delivery futures.
	MarketCDelivery
	// MarketOptions indicates options trading.
	MarketOptions
)

// String returns the lowercase string representation of the market type.
func (m MarketType) String() string {
	return [...]string{
		"unknown",
		"spot",
		"margin",
		"uperp",
		"cperp",
		"udelivery",
		"cdelivery",
		"options",
	}[m]
}

// MarshalJSON implements json.Marshaler for MarketType.
func (m MarketType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// IsDerivative returns true for perpetual, delivery, and options markets.
func (m MarketType) IsDerivative() bool {
	switch m {
	case MarketUPerp, MarketCPerp, MarketUDelivery, MarketCDelivery, MarketOptions:
		return true
	default:
		return false
	}
}

// ParseMarketType converts a case-insensitive market name into a MarketType.
// Unrecognized names return MarketUnknown.
func ParseMarketType(s string) MarketType {
	switch strings.ToLower(s) {
	case "spot":
		return MarketSpot
	case "margin":
		return MarketMargin
	case "uperp", "ufutures":
		return MarketUPerp
	case "cperp", "cfutures":
		return MarketCPerp
	case "udelivery":
		return MarketUDelivery
	case "cdelivery":
		return MarketCDelivery
	case "options":
		return MarketOptions
	default:
		return MarketUnknown
	}
}

// AccountType distinguishes account variants that change connection wiring.
type AccountType int

// Account type constants. Most venues only use AccountNormal; Binance
// additionally routes unified (portfolio-margin) accounts to a dedicated
// endpoint.
const (
	// AccountNormal is a standard per-market account.
	AccountNormal AccountType = iota
	// AccountUnified is a unified / portfolio-margin account.
	AccountUnified
)

// String returns the lowercase string representation of the account type.
func (a AccountType) String() string {
	return [...]string{
		"normal",
		"unified",
	}[a]
}

// MarshalJSON implements json.Marshaler for AccountType.
func (a AccountType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}
