package funding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUSDTPerpetual(t *testing.T) {
	cases := []struct {
		symbol string
		want   bool
	}{
		{"BTCUSDT", true},
		{"ETHUSDT", true},
		{"1000SHIBUSDT", false},
		{"BTCUSD_PERP", false},
		{"BTCUSDT:231229", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isUSDTPerpetual(tc.symbol), tc.symbol)
	}
}

func TestCanManuallyFetchCap(t *testing.T) {
	f := New("https://fapi.binance.com", 3, nil, nil)
	assert.True(t, f.CanManuallyFetch())
	f.mu.Lock()
	f.manualCount = 3
	f.mu.Unlock()
	assert.False(t, f.CanManuallyFetch())
}
