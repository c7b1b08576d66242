package worker

import (
	"encoding/json"

	"github.com/romanzzaa/crossfeed/internal/model"
)

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// buildOKXSubscribeMessages builds subscribe frames for the tickers
// and funding-rate channels, batched by subscribeBatchSize args per
// frame.
func buildOKXSubscribeMessages(symbols []string) [][]byte {
	args := make([]okxArg, 0, len(symbols)*2)
	for _, s := range symbols {
		args = append(args,
			okxArg{Channel: "tickers", InstID: s},
			okxArg{Channel: "funding-rate", InstID: s},
		)
	}

	var out [][]byte
	for i := 0; i < len(args); i += subscribeBatchSize {
		end := i + subscribeBatchSize
		if end > len(args) {
			end = len(args)
		}
		frame := map[string]any{
			"op":   "subscribe",
			"args": args[i:end],
		}
		b, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

// okxTickerData is the data[] element of the tickers channel,
// field-mapped per FIELD_MAP: instId, last.
type okxTickerData struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
}

// okxFundingRateData is the data[] element of the funding-rate
// channel, field-mapped per FIELD_MAP: instId, fundingRate,
// fundingTime, nextFundingTime.
type okxFundingRateData struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	FundingTime     string `json:"fundingTime"`
	NextFundingTime string `json:"nextFundingTime"`
}

func parseOKXMessage(raw []byte) *model.Observation {
	var envelope struct {
		Arg  okxArg            `json:"arg"`
		Data []json.RawMessage `json:"data"`
		Event string           `json:"event"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	if envelope.Event != "" || len(envelope.Data) == 0 {
		return nil
	}

	switch envelope.Arg.Channel {
	case "tickers":
		var t okxTickerData
		if err := json.Unmarshal(envelope.Data[0], &t); err != nil || t.InstID == "" {
			return nil
		}
		return &model.Observation{
			Exchange: model.ExchangeOKX,
			Symbol:   model.NormalizeSymbol(t.InstID),
			DataType: model.DataTypeTicker,
			Payload: map[string]any{
				"instId": t.InstID,
				"last":   t.Last,
			},
		}
	case "funding-rate":
		var f okxFundingRateData
		if err := json.Unmarshal(envelope.Data[0], &f); err != nil || f.InstID == "" {
			return nil
		}
		return &model.Observation{
			Exchange: model.ExchangeOKX,
			Symbol:   model.NormalizeSymbol(f.InstID),
			DataType: model.DataTypeFundingRate,
			Payload: map[string]any{
				"instId":          f.InstID,
				"fundingRate":     f.FundingRate,
				"fundingTime":     f.FundingTime,
				"nextFundingTime": f.NextFundingTime,
			},
		}
	default:
		return nil
	}
}
