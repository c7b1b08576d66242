package store

import (
	"testing"

	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	s := New()
	obs := model.Observation{
		Exchange: model.ExchangeBinance,
		Symbol:   "BTCUSDT",
		DataType: model.DataTypeTicker,
		Payload:  map[string]any{"c": "65000"},
	}
	s.Put(obs)

	got, ok := s.Get(model.ExchangeBinance, "BTCUSDT", model.DataTypeTicker)
	require.True(t, ok)
	assert.Equal(t, "65000", got.Payload["c"])

	_, ok = s.Get(model.ExchangeOKX, "BTCUSDT", model.DataTypeTicker)
	assert.False(t, ok)
}

func TestPutForwardsToSink(t *testing.T) {
	s := New()
	var received []model.Observation
	s.SetSink(func(o model.Observation) { received = append(received, o) })

	s.Put(model.Observation{Exchange: model.ExchangeOKX, Symbol: "ETHUSDT", DataType: model.DataTypeFundingRate})
	require.Len(t, received, 1)
	assert.Equal(t, model.DataTypeFundingRate, received[0].DataType)
}

func TestConnectionStatus(t *testing.T) {
	s := New()
	assert.False(t, s.ConnectionStatus(model.ExchangeBinance))
	s.SetConnectionStatus(model.ExchangeBinance, true)
	assert.True(t, s.ConnectionStatus(model.ExchangeBinance))
}

func TestReady(t *testing.T) {
	s := New()
	assert.False(t, s.Ready())
	s.MarkReady()
	assert.True(t, s.Ready())
}
