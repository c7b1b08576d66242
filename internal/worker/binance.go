package worker

import (
	"encoding/json"
	"strings"

	"github.com/romanzzaa/crossfeed/internal/model"
)

// buildBinanceSubscribeMessages builds SUBSCRIBE frames for the
// combined ticker+markPrice streams, batched by subscribeBatchSize
// params per frame with a pause enforced by the caller between sends.
func buildBinanceSubscribeMessages(symbols []string) [][]byte {
	params := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		lower := strings.ToLower(s)
		params = append(params, lower+"@ticker", lower+"@markPrice")
	}

	var out [][]byte
	for i := 0; i < len(params); i += subscribeBatchSize {
		end := i + subscribeBatchSize
		if end > len(params) {
			end = len(params)
		}
		frame := map[string]any{
			"method": "SUBSCRIBE",
			"params": params[i:end],
			"id":     i/subscribeBatchSize + 1,
		}
		b, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

// binanceTicker24hr is the flat payload of the 24hrTicker stream,
// field-mapped per FIELD_MAP: s (symbol), c (last price).
type binanceTicker24hr struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
}

// binanceMarkPrice is the flat payload of the markPriceUpdate stream,
// field-mapped per FIELD_MAP: s (symbol), r (funding rate), T (next
// funding time, ms).
type binanceMarkPrice struct {
	EventType       string `json:"e"`
	Symbol          string `json:"s"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
}

func parseBinanceMessage(raw []byte) *model.Observation {
	if isControlFrame(raw) {
		return nil
	}
	var probe struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}

	switch probe.EventType {
	case "24hrTicker":
		var t binanceTicker24hr
		if err := json.Unmarshal(raw, &t); err != nil || t.Symbol == "" {
			return nil
		}
		return &model.Observation{
			Exchange: model.ExchangeBinance,
			Symbol:   model.NormalizeSymbol(t.Symbol),
			DataType: model.DataTypeTicker,
			Payload: map[string]any{
				"s": t.Symbol,
				"c": t.LastPrice,
			},
		}
	case "markPriceUpdate":
		var m binanceMarkPrice
		if err := json.Unmarshal(raw, &m); err != nil || m.Symbol == "" {
			return nil
		}
		return &model.Observation{
			Exchange: model.ExchangeBinance,
			Symbol:   model.NormalizeSymbol(m.Symbol),
			DataType: model.DataTypeMarkPrice,
			Payload: map[string]any{
				"s": m.Symbol,
				"r": m.FundingRate,
				"T": m.NextFundingTime,
			},
		}
	default:
		return nil
	}
}
