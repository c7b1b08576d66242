package pipeline

import (
	"log/slog"
	"time"

	"github.com/romanzzaa/crossfeed/internal/model"
)

const processTimeout = 30 * time.Second
const asyncQueueDepth = 10

// Pipeline wires Stage 0 through Stage 5 into a single ingestion path:
// RateLimiter -> Filter -> Fuser -> Aligner -> CalcCache -> CrossCalculator.
// Each observation is processed under a single-writer gate so two
// goroutines can never interleave state mutation across stages; a
// stuck gate times out rather than blocking forever.
type Pipeline struct {
	logger *slog.Logger

	rateLimiter *RateLimiter
	fuser       *Fuser
	aligner     *Aligner
	calc        *CalcCache
	cross       *CrossCalculator

	gate gate

	downstream chan model.CrossPlatform
	sink       func(model.CrossPlatform)

	stop chan struct{}
}

type gate chan struct{}

func newGate() gate { return make(gate, 1) }

func (g gate) acquire(timeout time.Duration) bool {
	select {
	case g <- struct{}{}:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (g gate) release() { <-g }

// New builds a Pipeline. sink receives every terminal CrossPlatform
// record; it is invoked from one background goroutine draining a queue
// of up to asyncQueueDepth records, falling back to a synchronous call
// when that queue is full so a slow sink degrades throughput instead
// of dropping data silently.
func New(rateLimit int, sink func(model.CrossPlatform)) *Pipeline {
	p := &Pipeline{
		logger:      slog.Default().With("component", "pipeline"),
		rateLimiter: NewRateLimiter(rateLimit),
		calc:        NewCalcCache(),
		cross:       NewCrossCalculator(),
		gate:        newGate(),
		downstream:  make(chan model.CrossPlatform, asyncQueueDepth),
		sink:        sink,
		stop:        make(chan struct{}),
	}
	p.aligner = NewAligner(p.handleAligned)
	p.fuser = NewFuser(p.aligner.Ingest)
	return p
}

// Start launches the background eviction loops and the async
// downstream worker.
func (p *Pipeline) Start() {
	go p.fuser.RunEvictionLoop(p.stop)
	go p.aligner.RunEvictionLoop(p.stop)
	go p.drainDownstream()
}

// Stop halts the background loops. Ingest must not be called after
// Stop returns.
func (p *Pipeline) Stop() {
	close(p.stop)
}

// Ingest is the entry point fed by the DataStore's pipeline sink. It
// applies Stage 0's rate limit, then runs Stage 1 under the
// single-writer gate.
func (p *Pipeline) Ingest(obs model.Observation) {
	if !p.rateLimiter.Allow(obs) {
		p.logger.Warn("stage0 rate limit reached, dropping observation", "exchange", obs.Exchange, "symbol", obs.Symbol)
		return
	}

	if !p.gate.acquire(processTimeout) {
		p.logger.Error("pipeline gate timed out, dropping observation", "exchange", obs.Exchange, "symbol", obs.Symbol)
		return
	}
	defer p.gate.release()

	extracted, ok := Filter(obs)
	if !ok {
		return
	}
	p.fuser.Ingest(extracted)
}

func (p *Pipeline) handleAligned(a model.Aligned) {
	okxPE := p.calc.ProcessOKX(a)
	binancePE := p.calc.ProcessBinance(a)
	result := p.cross.Process(okxPE, binancePE)

	select {
	case p.downstream <- result:
	default:
		// Async queue saturated: fall back to a synchronous sink call
		// so a slow consumer degrades latency rather than losing data.
		if p.sink != nil {
			p.sink(result)
		}
	}
}

func (p *Pipeline) drainDownstream() {
	for {
		select {
		case <-p.stop:
			return
		case result := <-p.downstream:
			if p.sink != nil {
				p.sink(result)
			}
		}
	}
}

// PriceInvalidCount exposes Stage 5's running invalid-price counter
// for the HTTP introspection surface.
func (p *Pipeline) PriceInvalidCount() int64 {
	return p.cross.PriceInvalidCount()
}

// ResetHistoricalRateLimit is called by the historical funding fetcher
// after every fetch cycle that was not aborted by a ban, periodic or
// manual, so the next cycle's records are admitted.
func (p *Pipeline) ResetHistoricalRateLimit() {
	p.rateLimiter.ResetLimit()
}
