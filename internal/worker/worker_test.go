package worker

import (
	"testing"

	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBinanceMessage(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want *model.Observation
	}{
		{
			name: "ticker",
			raw:  `{"e":"24hrTicker","s":"BTCUSDT","c":"65000.10"}`,
			want: &model.Observation{
				Exchange: model.ExchangeBinance,
				Symbol:   "BTCUSDT",
				DataType: model.DataTypeTicker,
				Payload:  map[string]any{"s": "BTCUSDT", "c": "65000.10"},
			},
		},
		{
			name: "mark price",
			raw:  `{"e":"markPriceUpdate","s":"ETHUSDT","r":"0.00010000","T":1700000000000}`,
			want: &model.Observation{
				Exchange: model.ExchangeBinance,
				Symbol:   "ETHUSDT",
				DataType: model.DataTypeMarkPrice,
				Payload:  map[string]any{"s": "ETHUSDT", "r": "0.00010000", "T": int64(1700000000000)},
			},
		},
		{
			name: "unrelated event ignored",
			raw:  `{"e":"aggTrade","s":"BTCUSDT"}`,
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseBinanceMessage([]byte(tc.raw))
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want.Exchange, got.Exchange)
			assert.Equal(t, tc.want.Symbol, got.Symbol)
			assert.Equal(t, tc.want.DataType, got.DataType)
			assert.Equal(t, tc.want.Payload, got.Payload)
		})
	}
}

func TestParseOKXMessage(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want *model.Observation
	}{
		{
			name: "tickers",
			raw:  `{"arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","last":"65010.5"}]}`,
			want: &model.Observation{
				Exchange: model.ExchangeOKX,
				Symbol:   "BTCUSDT",
				DataType: model.DataTypeTicker,
			},
		},
		{
			name: "funding-rate",
			raw:  `{"arg":{"channel":"funding-rate","instId":"ETH-USDT-SWAP"},"data":[{"instId":"ETH-USDT-SWAP","fundingRate":"0.0001","fundingTime":"1700000000000","nextFundingTime":"1700028800000"}]}`,
			want: &model.Observation{
				Exchange: model.ExchangeOKX,
				Symbol:   "ETHUSDT",
				DataType: model.DataTypeFundingRate,
			},
		},
		{
			name: "subscribe ack ignored",
			raw:  `{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"}}`,
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseOKXMessage([]byte(tc.raw))
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want.Exchange, got.Exchange)
			assert.Equal(t, tc.want.Symbol, got.Symbol)
			assert.Equal(t, tc.want.DataType, got.DataType)
		})
	}
}

func TestBuildBinanceSubscribeMessagesBatching(t *testing.T) {
	symbols := make([]string, 30)
	for i := range symbols {
		symbols[i] = "SYM"
	}
	// 30 symbols * 2 streams each = 60 params, batch size 50 -> 2 frames.
	msgs := buildBinanceSubscribeMessages(symbols)
	assert.Len(t, msgs, 2)
}

func TestBuildOKXSubscribeMessagesBatching(t *testing.T) {
	symbols := make([]string, 30)
	for i := range symbols {
		symbols[i] = "SYM-USDT-SWAP"
	}
	// 30 symbols * 2 channels each = 60 args, batch size 50 -> 2 frames.
	msgs := buildOKXSubscribeMessages(symbols)
	assert.Len(t, msgs, 2)
}
