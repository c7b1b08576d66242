package pipeline

import (
	"testing"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func TestCalcCacheProcessBinanceRollingSettlement(t *testing.T) {
	price := decimal.NewFromInt(100)
	rate := decimal.NewFromFloat(0.0001)

	baseAligned := func(currentTs *int64, lastTs *int64) model.Aligned {
		return model.Aligned{
			Symbol:              "BTCUSDT",
			BinanceContractName: "BTCUSDT",
			BinancePrice:        &price,
			BinanceFundingRate:  &rate,
			BinanceCurrentTs:    currentTs,
			BinanceLastTs:       lastTs,
		}
	}

	cases := []struct {
		name         string
		sequence     []model.Aligned
		wantLastTs   *int64
		wantCurrent  *int64
		wantHasPeriod bool
	}{
		{
			name: "first observation has no last settlement yet",
			sequence: []model.Aligned{
				baseAligned(i64(1_700_000_000_000), nil),
			},
			wantLastTs:    nil,
			wantCurrent:   i64(1_700_000_000_000),
			wantHasPeriod: false,
		},
		{
			name: "unchanged current keeps the same window",
			sequence: []model.Aligned{
				baseAligned(i64(1_700_000_000_000), nil),
				baseAligned(i64(1_700_000_000_000), nil),
			},
			wantLastTs:    nil,
			wantCurrent:   i64(1_700_000_000_000),
			wantHasPeriod: false,
		},
		{
			name: "current changes: old current rolls into last",
			sequence: []model.Aligned{
				baseAligned(i64(1_700_000_000_000), nil),
				baseAligned(i64(1_700_028_800_000), nil),
			},
			wantLastTs:    i64(1_700_000_000_000),
			wantCurrent:   i64(1_700_028_800_000),
			wantHasPeriod: true,
		},
		{
			name: "historical enrichment sets last settlement directly",
			sequence: []model.Aligned{
				baseAligned(i64(1_700_028_800_000), i64(1_700_000_000_000)),
			},
			wantLastTs:    i64(1_700_000_000_000),
			wantCurrent:   i64(1_700_028_800_000),
			wantHasPeriod: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cache := NewCalcCache()
			var pe model.PerExchange
			for _, aligned := range tc.sequence {
				pe = cache.ProcessBinance(aligned)
			}

			if tc.wantLastTs == nil {
				assert.Nil(t, pe.LastSettlementTs)
			} else {
				require.NotNil(t, pe.LastSettlementTs)
				assert.Equal(t, *tc.wantLastTs, *pe.LastSettlementTs)
			}
			require.NotNil(t, pe.CurrentSettlementTs)
			assert.Equal(t, *tc.wantCurrent, *pe.CurrentSettlementTs)
			if tc.wantHasPeriod {
				require.NotNil(t, pe.PeriodSeconds)
			} else {
				assert.Nil(t, pe.PeriodSeconds)
			}
		})
	}
}

func TestCalcCacheProcessOKXPeriodAndCountdown(t *testing.T) {
	price := decimal.NewFromInt(100)
	rate := decimal.NewFromFloat(0.0002)
	now := time.Now().UnixMilli()
	current := now + 10_000
	next := now + 3_610_000

	cache := NewCalcCache()
	pe := cache.ProcessOKX(model.Aligned{
		Symbol:          "ETHUSDT",
		OKXContractName: "ETH-USDT-SWAP",
		OKXPrice:        &price,
		OKXFundingRate:  &rate,
		OKXCurrentTs:    &current,
		OKXNextTs:       &next,
	})

	require.NotNil(t, pe.PeriodSeconds)
	assert.Equal(t, (next-current)/1000, *pe.PeriodSeconds)
	require.NotNil(t, pe.CountdownSeconds)
	assert.True(t, *pe.CountdownSeconds > 0)
}

func TestCrossCalculatorInvalidPriceNeverDropped(t *testing.T) {
	cc := NewCrossCalculator()
	okx := model.PerExchange{Symbol: "BTCUSDT"}   // no price
	binance := model.PerExchange{Symbol: "BTCUSDT"} // no price

	result := cc.Process(okx, binance)
	assert.True(t, result.PriceInvalid)
	assert.True(t, result.PriceDiffPercent.IsZero())
	assert.Equal(t, int64(1), cc.PriceInvalidCount())
}
