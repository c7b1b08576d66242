// Package funding implements the periodic historical funding-rate
// fetcher: it pulls settled funding records from Binance's REST API
// and injects them into the pipeline as funding_settlement
// observations, the only way that data type ever appears (it is never
// pushed over the live WS stream).
package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
	"golang.org/x/time/rate"
)

const (
	fetchPath     = "/fapi/v1/fundingRate"
	fetchLimit    = 1000
	maxRetries    = 5
	retryBackoff  = 5 * time.Second
)

// ErrBanned is returned by FetchAll when Binance responds 418,
// meaning the IP has been temporarily banned; callers must stop
// retrying immediately rather than backing off.
var ErrBanned = fmt.Errorf("funding: received HTTP 418, IP banned")

// Sink receives one funding_settlement Observation per settled record.
type Sink func(model.Observation)

// Fetcher periodically pulls Binance's historical funding-rate
// endpoint and also supports a manually triggered fetch, capped at a
// fixed number of calls per process-local wall-clock hour.
type Fetcher struct {
	restURL     string
	client      *http.Client
	limiter     *rate.Limiter
	sink        Sink
	onCycleDone func()
	logger      *slog.Logger

	mu          sync.Mutex
	manualHour  int
	manualCount int
	manualCap   int
}

// New builds a Fetcher against restURL (e.g. https://fapi.binance.com).
// manualCap bounds how many manual triggers are accepted per
// wall-clock hour, reset whenever the local hour changes. onCycleDone,
// if non-nil, is called once after every completed FetchAll cycle so
// the caller can re-arm Stage 0's admission limit for the next batch;
// it is never called after a cycle that aborted on ErrBanned.
func New(restURL string, manualCap int, sink Sink, onCycleDone func()) *Fetcher {
	return &Fetcher{
		restURL:     strings.TrimSuffix(restURL, "/"),
		client:      &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(time.Second), 2),
		sink:        sink,
		onCycleDone: onCycleDone,
		logger:      slog.Default().With("component", "funding_fetcher"),
		manualHour:  time.Now().Hour(),
		manualCap:   manualCap,
	}
}

// CanManuallyFetch reports whether a manual trigger would currently be
// accepted, resetting the per-hour counter on a local wall-clock hour
// change.
func (f *Fetcher) CanManuallyFetch() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolloverManualWindow()
	return f.manualCount < f.manualCap
}

func (f *Fetcher) rolloverManualWindow() {
	hour := time.Now().Hour()
	if hour != f.manualHour {
		f.manualHour = hour
		f.manualCount = 0
	}
}

// TriggerManual runs one fetch cycle if the manual cap allows it,
// recording the attempt regardless of the fetch's outcome.
func (f *Fetcher) TriggerManual(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	f.rolloverManualWindow()
	if f.manualCount >= f.manualCap {
		f.mu.Unlock()
		return fmt.Errorf("funding: manual fetch cap (%d/hour) reached", f.manualCap)
	}
	f.manualCount++
	f.mu.Unlock()

	return f.FetchAll(ctx, symbols)
}

// RunPeriodic sleeps startupDelay, then fetches on interval until ctx
// is done. It exits immediately (without further retries) if a fetch
// returns ErrBanned.
func (f *Fetcher) RunPeriodic(ctx context.Context, startupDelay, interval time.Duration, symbols []string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startupDelay):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := f.FetchAll(ctx, symbols); err != nil {
			f.logger.Error("periodic fetch failed", "err", err)
			if err == ErrBanned {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// FetchAll fetches funding history for every symbol, feeding each
// USDT-perpetual record into the sink.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		if err := f.fetchSymbol(ctx, symbol); err != nil {
			if err == ErrBanned {
				return err
			}
			f.logger.Error("fetch symbol failed", "symbol", symbol, "err", err)
		}
	}
	if f.onCycleDone != nil {
		f.onCycleDone()
	}
	return nil
}

type fundingRecord struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"`
}

func (f *Fetcher) fetchSymbol(ctx context.Context, symbol string) error {
	url := fmt.Sprintf("%s%s?symbol=%s&limit=%d", f.restURL, fetchPath, symbol, fetchLimit)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		records, status, err := f.doRequest(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}

		switch status {
		case http.StatusTeapot:
			return ErrBanned
		case http.StatusTooManyRequests, http.StatusForbidden:
			lastErr = fmt.Errorf("funding: status %d for %s", status, symbol)
			time.Sleep(retryBackoff * time.Duration(attempt))
			continue
		case http.StatusOK:
			for _, r := range records {
				if !isUSDTPerpetual(r.Symbol) {
					continue
				}
				f.emit(r)
			}
			return nil
		default:
			return fmt.Errorf("funding: unexpected status %d for %s", status, symbol)
		}
	}
	return lastErr
}

func (f *Fetcher) doRequest(ctx context.Context, url string) ([]fundingRecord, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	var records []fundingRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode funding response: %w", err)
	}
	return records, resp.StatusCode, nil
}

func (f *Fetcher) emit(r fundingRecord) {
	if f.sink == nil {
		return
	}
	f.sink(model.Observation{
		Exchange: model.ExchangeBinance,
		Symbol:   model.NormalizeSymbol(r.Symbol),
		DataType: model.DataTypeFundingSettlement,
		Payload: map[string]any{
			"symbol":       r.Symbol,
			"funding_rate": r.FundingRate,
			"funding_time": r.FundingTime,
		},
	})
}

// isUSDTPerpetual applies the three predicates the historical fetcher
// uses to exclude non-perpetual and non-USDT-margined contracts: the
// symbol must end in USDT, must not start with the "1000" multiplier
// prefix, and must not contain a settlement-date colon.
func isUSDTPerpetual(symbol string) bool {
	if !strings.HasSuffix(symbol, "USDT") {
		return false
	}
	if strings.HasPrefix(symbol, "1000") {
		return false
	}
	if strings.Contains(symbol, ":") {
		return false
	}
	return true
}
