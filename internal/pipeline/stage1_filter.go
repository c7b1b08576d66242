package pipeline

import (
	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/shopspring/decimal"
)

// extractFunc normalizes one Observation into an Extracted record. The
// dispatch table below is keyed by exchange_datatype, mirroring the
// field map the upstream producer used to define per-source fields.
type extractFunc func(model.Observation) (model.Extracted, bool)

var extractors = map[string]extractFunc{
	"okx_ticker":                  extractOKXTicker,
	"okx_funding_rate":            extractOKXFundingRate,
	"binance_ticker":              extractBinanceTicker,
	"binance_mark_price":          extractBinanceMarkPrice,
	"binance_funding_settlement":  extractBinanceFundingSettlement,
}

func extractorKey(obs model.Observation) string {
	return string(obs.Exchange) + "_" + string(obs.DataType)
}

// Filter is Stage 1: it looks up the extractor for obs's
// (exchange, data type) pair and runs it. Unknown pairs are dropped.
func Filter(obs model.Observation) (model.Extracted, bool) {
	fn, ok := extractors[extractorKey(obs)]
	if !ok {
		return model.Extracted{}, false
	}
	return fn(obs)
}

func extractOKXTicker(obs model.Observation) (model.Extracted, bool) {
	instID, _ := obs.Payload["instId"].(string)
	price, ok := toDecimal(obs.Payload["last"])
	if instID == "" || !ok {
		return model.Extracted{}, false
	}
	return model.Extracted{
		Exchange:     model.ExchangeOKX,
		Symbol:       obs.Symbol,
		DataType:     "okx_ticker",
		ContractName: instID,
		LatestPrice:  &price,
	}, true
}

func extractOKXFundingRate(obs model.Observation) (model.Extracted, bool) {
	instID, _ := obs.Payload["instId"].(string)
	rate, rateOK := toDecimal(obs.Payload["fundingRate"])
	current, currentOK := toInt64(obs.Payload["fundingTime"])
	next, nextOK := toInt64(obs.Payload["nextFundingTime"])
	if instID == "" || !rateOK {
		return model.Extracted{}, false
	}
	e := model.Extracted{
		Exchange:     model.ExchangeOKX,
		Symbol:       obs.Symbol,
		DataType:     "okx_funding_rate",
		ContractName: instID,
		FundingRate:  &rate,
	}
	if currentOK {
		e.CurrentSettlementTime = &current
	}
	if nextOK {
		e.NextSettlementTime = &next
	}
	return e, true
}

func extractBinanceTicker(obs model.Observation) (model.Extracted, bool) {
	symbol, _ := obs.Payload["s"].(string)
	price, ok := toDecimal(obs.Payload["c"])
	if symbol == "" || !ok {
		return model.Extracted{}, false
	}
	return model.Extracted{
		Exchange:     model.ExchangeBinance,
		Symbol:       obs.Symbol,
		DataType:     "binance_ticker",
		ContractName: symbol,
		LatestPrice:  &price,
	}, true
}

func extractBinanceMarkPrice(obs model.Observation) (model.Extracted, bool) {
	symbol, _ := obs.Payload["s"].(string)
	rate, rateOK := toDecimal(obs.Payload["r"])
	current, currentOK := toInt64(obs.Payload["T"])
	if symbol == "" || !rateOK {
		return model.Extracted{}, false
	}
	e := model.Extracted{
		Exchange:     model.ExchangeBinance,
		Symbol:       obs.Symbol,
		DataType:     "binance_mark_price",
		ContractName: symbol,
		FundingRate:  &rate,
	}
	if currentOK {
		e.CurrentSettlementTime = &current
	}
	return e, true
}

// extractBinanceFundingSettlement reads the flat payload the historical
// fetcher pushes (no nested path). Its funding_time names an already
// settled funding event, so it lands in LastSettlementTime rather than
// CurrentSettlementTime.
func extractBinanceFundingSettlement(obs model.Observation) (model.Extracted, bool) {
	symbol, _ := obs.Payload["symbol"].(string)
	rate, rateOK := toDecimal(obs.Payload["funding_rate"])
	last, lastOK := toInt64(obs.Payload["funding_time"])
	if symbol == "" || !rateOK || !lastOK {
		return model.Extracted{}, false
	}
	return model.Extracted{
		Exchange:           model.ExchangeBinance,
		Symbol:             obs.Symbol,
		DataType:           "binance_funding_settlement",
		ContractName:       symbol,
		FundingRate:        &rate,
		LastSettlementTime: &last,
	}, true
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(t), true
	case int64:
		return decimal.NewFromInt(t), true
	default:
		return decimal.Decimal{}, false
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return 0, false
		}
		return d.IntPart(), true
	default:
		return 0, false
	}
}
