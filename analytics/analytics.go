// Package analytics annotates a completed FetchResult with a handful of
// derived series — moving averages, momentum, realized volatility —
// computed over the bars a fetch just pulled down. It is grounded on
// the teacher repo's indicator package, a thin go-talib wrapper: the
// same functions (Sma, Rsi) called over a close-price slice,
// retargeted from a strategy's trade decision to a FetchResult
// annotation.
package analytics

import (
	"bytes"
	"math"

	"github.com/anjanpoonacha/tvchart/model"
	"github.com/anjanpoonacha/tvchart/tools/log"
	"github.com/aybabtme/uniplot/histogram"
	"github.com/markcheno/go-talib"
	"github.com/samber/lo"
)

const (
	defaultSMAPeriod = 20
	defaultRSIPeriod = 14
)

// Annotation is the set of derived series computed over one fetch's
// bars, aligned 1:1 with FetchResult.Bars (slots inside the warmup
// window are left as 0 at the front, matching go-talib's own convention).
type Annotation struct {
	Symbol             string
	SMA                []float64
	RSI                []float64
	RealizedVolatility float64 // annualized stdev of log returns
}

// Annotate computes SMA/RSI over result's close prices and realized
// volatility over its log returns. Fewer than 2 bars yields a zero
// Annotation; callers should check len(result.Bars) first if that
// matters to them.
func Annotate(result model.FetchResult) Annotation {
	if len(result.Bars) < 2 {
		return Annotation{Symbol: result.Symbol}
	}

	closes := lo.Map(result.Bars, func(b model.Bar, _ int) float64 { return b.Close })

	ann := Annotation{
		Symbol:             result.Symbol,
		SMA:                talib.Sma(closes, defaultSMAPeriod),
		RSI:                talib.Rsi(closes, defaultRSIPeriod),
		RealizedVolatility: realizedVolatility(closes),
	}

	log.Debugf("analytics: %s return distribution:\n%s", result.Symbol, returnHistogram(closes))
	return ann
}

// realizedVolatility is the annualized standard deviation of daily log
// returns, assuming one bar per trading day.
func realizedVolatility(closes []float64) float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}

	mean := lo.Sum(returns) / float64(len(returns))
	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	stdev := math.Sqrt(sumSq / float64(len(returns)-1))
	const tradingDaysPerYear = 252
	return stdev * math.Sqrt(tradingDaysPerYear)
}

// returnHistogram buckets closes' percent changes into an ASCII
// histogram, for the debug log only.
func returnHistogram(closes []float64) string {
	changes := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		changes = append(changes, (closes[i]-closes[i-1])/closes[i-1]*100)
	}
	if len(changes) == 0 {
		return ""
	}

	buf := &bytes.Buffer{}
	hist := histogram.Hist(15, changes)
	if err := histogram.Fprint(buf, hist, histogram.Linear(10)); err != nil {
		return ""
	}
	return buf.String()
}
