// Package model holds the exchange-agnostic data types shared by the
// websocket pool, the store, and the fusion pipeline.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange identifies one of the two upstream venues this service fuses.
type Exchange string

const (
	ExchangeBinance Exchange = "binance"
	ExchangeOKX     Exchange = "okx"
)

// DataType enumerates the market-data kinds routed through DataStore.
type DataType string

const (
	DataTypeTicker            DataType = "ticker"
	DataTypeFundingRate       DataType = "funding_rate"
	DataTypeMarkPrice         DataType = "mark_price"
	DataTypeFundingSettlement DataType = "funding_settlement"
)

// WorkerRole tags which half of a shard pair a worker currently occupies.
type WorkerRole string

const (
	RoleData   WorkerRole = "DATA"
	RoleBackup WorkerRole = "BACKUP"
)

// NormalizeSymbol canonicalizes an exchange-native symbol into the
// uppercase join key used across both exchanges' streams. It is
// idempotent: NormalizeSymbol(NormalizeSymbol(s)) == NormalizeSymbol(s).
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(raw)
	s = strings.TrimSuffix(s, "-SWAP")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// Observation is the exchange-agnostic record a Worker hands to DataStore.
type Observation struct {
	Exchange        Exchange
	Symbol          string
	DataType        DataType
	Payload         map[string]any
	IngressTime     time.Time
	IngressTimeUnix int64 // milliseconds, set by the worker at receipt
}

// Extracted is Stage 1's normalized view of one Observation.
type Extracted struct {
	Exchange             Exchange
	Symbol               string
	DataType             string // e.g. "okx_ticker", "binance_mark_price"
	ContractName         string
	LatestPrice          *decimal.Decimal
	FundingRate          *decimal.Decimal
	LastSettlementTime   *int64
	CurrentSettlementTime *int64
	NextSettlementTime   *int64
}

// Fused is Stage 2's per-(exchange,symbol) merge of a price leg and a
// funding leg.
type Fused struct {
	Exchange              Exchange
	Symbol                string
	ContractName          string
	LatestPrice           *decimal.Decimal
	FundingRate           *decimal.Decimal
	LastSettlementTimeMs  *int64
	CurrentSettlementTimeMs *int64
	NextSettlementTimeMs  *int64
}

// Aligned is Stage 3's cross-exchange view of one symbol.
type Aligned struct {
	Symbol string

	OKXContractName     string
	OKXPrice            *decimal.Decimal
	OKXFundingRate       *decimal.Decimal
	OKXCurrentTs        *int64
	OKXNextTs           *int64
	OKXCurrentStr       string
	OKXNextStr          string

	BinanceContractName string
	BinancePrice        *decimal.Decimal
	BinanceFundingRate   *decimal.Decimal
	BinanceLastTs       *int64
	BinanceCurrentTs    *int64
	BinanceLastStr      string
	BinanceCurrentStr   string
}

// PerExchange is Stage 4's derived per-(exchange,symbol) metric set.
type PerExchange struct {
	Symbol       string
	Exchange     Exchange
	ContractName string
	LatestPrice  *decimal.Decimal
	FundingRate  *decimal.Decimal

	LastSettlementStr    string
	CurrentSettlementStr string
	NextSettlementStr    string

	LastSettlementTs    *int64
	CurrentSettlementTs *int64
	NextSettlementTs    *int64

	PeriodSeconds    *int64
	CountdownSeconds *int64
}

// CrossPlatform is the terminal pipeline output: one record per symbol
// carrying both exchanges' PerExchange data plus derived spreads.
type CrossPlatform struct {
	Symbol string

	PriceDiff        decimal.Decimal
	PriceDiffPercent decimal.Decimal
	RateDiff         decimal.Decimal
	PriceInvalid     bool

	OKX     PerExchange
	Binance PerExchange

	CalculatedAt time.Time
}
