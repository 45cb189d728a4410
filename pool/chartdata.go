package pool

import (
	"context"

	tvchart "github.com/anjanpoonacha/tvchart"
	"github.com/anjanpoonacha/tvchart/model"
)

// ChartDataRequest is the caller-facing argument to FetchChartData (§4.10
// step 4): a symbol/resolution/bar count plus the optional CVD indicator
// knobs. It is distinct from tvchart.FetchSymbolRequest — translateChartDataRequest
// builds the internal shape (including the indicator list, when CVD is
// requested) from it.
type ChartDataRequest struct {
	Symbol          string
	Resolution      string
	BarsCount       int
	CVDEnabled      bool
	CVDAnchorPeriod string
	CVDTimeframe    string
}

// IndicatorData is one resolved indicator in the caller's expected shape:
// its display name (e.g. "CVD") alongside the bars the study produced.
type IndicatorData struct {
	StudyName string
	Values    []model.IndicatorBar
}

// ChartDataResult is what FetchChartData resolves with. It is the pool's
// caller-facing boundary type, transformed from the internal
// model.FetchResult rather than passed through verbatim.
type ChartDataResult struct {
	Symbol     string
	Bars       []model.Bar
	Metadata   model.SymbolMetadata
	Indicators map[string]IndicatorData
	Timing     model.Timing
}

// FetchChartData is the pool's caller-facing fetch contract (§4.10 step 4):
// translate the request (building the CVD indicator list when requested),
// drive it through FetchSymbol's acquire/retry-once machinery, then
// transform the resolved metadata and indicator bars into the caller's
// expected shape.
func (p *Pool) FetchChartData(ctx context.Context, req ChartDataRequest) (ChartDataResult, error) {
	result, err := p.FetchSymbol(ctx, translateChartDataRequest(req))
	if err != nil {
		return ChartDataResult{}, err
	}
	return transformFetchResult(result), nil
}

// translateChartDataRequest builds the internal FetchSymbolRequest for
// req, attaching a cvd IndicatorRequest only when the caller asked for one.
func translateChartDataRequest(req ChartDataRequest) tvchart.FetchSymbolRequest {
	out := tvchart.FetchSymbolRequest{
		Symbol:     req.Symbol,
		Resolution: req.Resolution,
		BarsCount:  req.BarsCount,
	}
	if req.CVDEnabled {
		out.Indicators = []model.IndicatorRequest{{
			Type:            "cvd",
			AnchorPeriod:    req.CVDAnchorPeriod,
			CustomTimeframe: req.CVDTimeframe,
		}}
	}
	return out
}

// transformFetchResult maps the internal model.FetchResult onto the pool's
// caller-facing ChartDataResult shape.
func transformFetchResult(result model.FetchResult) ChartDataResult {
	indicators := make(map[string]IndicatorData, len(result.Indicators))
	for key, ind := range result.Indicators {
		indicators[key] = IndicatorData{StudyName: ind.StudyName, Values: ind.Values}
	}
	return ChartDataResult{
		Symbol:     result.Symbol,
		Bars:       result.Bars,
		Metadata:   result.Metadata,
		Indicators: indicators,
		Timing:     result.Timing,
	}
}
