package tvchart

import (
	"context"
	"fmt"
	"time"

	"github.com/anjanpoonacha/tvchart/cvdconfig"
	"github.com/anjanpoonacha/tvchart/internal/connstate"
	"github.com/anjanpoonacha/tvchart/internal/errs"
	"github.com/anjanpoonacha/tvchart/internal/protocol"
	"github.com/anjanpoonacha/tvchart/internal/seriesreg"
	"github.com/anjanpoonacha/tvchart/internal/tracker"
	"github.com/anjanpoonacha/tvchart/model"
	"golang.org/x/sync/errgroup"
)

const cvdStudyName = "Script@tv-scripting-101!"

// FetchSymbolRequest is fetchSymbol's argument (§4.7): the symbol to
// resolve, the bar resolution/count, optional adjustment/session
// overrides, and any indicators (today: cvd) requested alongside bars.
type FetchSymbolRequest struct {
	Symbol     string
	Resolution string
	BarsCount  int
	Adjustment string
	Session    string
	Indicators []model.IndicatorRequest
}

// FetchSymbol resolves symbol, its OHLCV bars, and any requested
// indicators. When symbol differs from the previous call's symbol, the
// previous symbol's in-flight requests are cancelled first; a concurrent
// call for the same symbol cancels nothing.
func (c *Connection) FetchSymbol(ctx context.Context, req FetchSymbolRequest) (model.FetchResult, error) {
	if err := c.requireReady(); err != nil {
		return model.FetchResult{}, err
	}

	start := time.Now()

	prev := c.currentSymbol.Load()
	if prev != nil && *prev != "" && *prev != req.Symbol {
		n := c.tracker.CancelSymbolRequests(*prev)
		c.warn("symbol switched: cancelled %d pending request(s) for %s", n, *prev)
	}
	symbol := req.Symbol
	c.currentSymbol.Store(&symbol)

	c.seriesReg.CleanupAll()

	pf := model.NewPendingFetch(
		req.Symbol,
		fmt.Sprintf("sds_sym_%d", c.symbolSessionCounter.Add(1)),
		seriesreg.NextSeriesID(c.seriesCounter.Add(1)),
	)
	c.currentPending.Store(pf)
	defer c.currentPending.CompareAndSwap(pf, nil)

	var timing model.Timing

	resolveStart := time.Now()
	if err := c.resolveSymbol(ctx, pf, req); err != nil {
		return model.FetchResult{}, err
	}
	timing.ResolveSymbol = time.Since(resolveStart).Milliseconds()

	seriesStart := time.Now()
	if err := c.fetchSeries(ctx, pf, req); err != nil {
		return model.FetchResult{}, err
	}
	timing.CreateSeries = time.Since(seriesStart).Milliseconds()

	if len(req.Indicators) > 0 {
		studiesStart := time.Now()
		if err := c.fetchIndicators(ctx, pf, req.Indicators); err != nil {
			return model.FetchResult{}, err
		}
		timing.CreateStudies = time.Since(studiesStart).Milliseconds()
	}

	timing.Total = time.Since(start).Milliseconds()
	c.requestCount.Add(1)
	c.history.Add(float64(timing.Total))

	return model.FetchResult{
		Symbol:     pf.Symbol,
		Bars:       pf.Bars,
		Metadata:   pf.Metadata,
		Indicators: pf.Indicators,
		Timing:     timing,
	}, nil
}

func (c *Connection) requireReady() error {
	state := c.state.Current()
	if state == connstate.Ready {
		return nil
	}
	recoverable := state == connstate.Closed
	return errs.NewRecoverable(errs.InvalidState, fmt.Sprintf("fetchSymbol called while %s", state), nil, recoverable)
}

func (c *Connection) resolveSymbol(ctx context.Context, pf *model.PendingFetch, req FetchSymbolRequest) error {
	spec := protocol.SymbolSpec(req.Symbol, req.Adjustment, req.Session)
	r, err := c.tracker.CreateRequest(model.RequestResolveSymbol, []any{c.chartSession, pf.SymbolSessionID, spec}, 0,
		tracker.WithTurnaround(pf.SymbolSessionID))
	if err != nil {
		return err
	}
	if err := c.send("resolve_symbol", []any{c.chartSession, pf.SymbolSessionID, spec}); err != nil {
		c.tracker.Reject(r.ID, err)
		return err
	}
	_, err = r.Wait(ctx)
	return err
}

func (c *Connection) fetchSeries(ctx context.Context, pf *model.PendingFetch, req FetchSymbolRequest) error {
	turnaround := seriesreg.NextSeriesID(c.turnaroundCounter.Add(1))
	r, err := c.tracker.CreateRequest(model.RequestCreateSeries,
		[]any{c.chartSession, pf.SeriesID, turnaround, pf.SymbolSessionID, req.Resolution, req.BarsCount}, 0,
		tracker.WithSymbolID(req.Symbol), tracker.WithTurnaround(turnaround))
	if err != nil {
		return err
	}
	c.seriesReg.Register(pf.SeriesID, r.ID)

	if err := c.send("create_series", []any{c.chartSession, pf.SeriesID, turnaround, pf.SymbolSessionID, req.Resolution, req.BarsCount}); err != nil {
		c.tracker.Reject(r.ID, err)
		return err
	}
	_, err = r.Wait(ctx)
	return err
}

func (c *Connection) fetchIndicators(ctx context.Context, pf *model.PendingFetch, indicators []model.IndicatorRequest) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ind := range indicators {
		ind := ind
		g.Go(func() error { return c.fetchOneIndicator(gctx, pf, ind) })
	}
	return g.Wait()
}

func (c *Connection) fetchOneIndicator(ctx context.Context, pf *model.PendingFetch, ind model.IndicatorRequest) error {
	studyID := fmt.Sprintf("%s_%d", ind.Type, time.Now().UnixMilli())
	turnaround := seriesreg.NextSeriesID(c.turnaroundCounter.Add(1))

	var studyConfig map[string]any
	isCVD := ind.Type == "cvd"
	if isCVD {
		cfg, err := c.resolveCVDConfig(ind)
		if err != nil {
			return err
		}
		anchor := ind.AnchorPeriod
		if anchor == "" {
			anchor = "3M"
		}
		studyConfig = map[string]any{
			"text":        cfg.Text,
			"pineId":      cfg.PineID,
			"pineVersion": cfg.PineVersion,
			"in_0":        anchor,
			"in_1":        ind.CustomTimeframe != "",
			"in_2":        ind.CustomTimeframe,
			"__profile":   false,
		}
	} else {
		studyConfig = ind.Config
	}

	timeout := c.tracker.GetDefaultTimeout(model.RequestCreateStudy)
	if !isCVD {
		timeout = c.cfg.DataTimeout
	}

	r, err := c.tracker.CreateRequest(model.RequestCreateStudy,
		[]any{c.chartSession, studyID, turnaround, pf.SeriesID, cvdStudyName, studyConfig}, timeout,
		tracker.WithCVD(isCVD), tracker.WithTurnaround(turnaround))
	if err != nil {
		return err
	}

	c.mu.Lock()
	pf.StudyIDs[ind.Type] = studyID
	c.mu.Unlock()

	if err := c.send("create_study", []any{c.chartSession, studyID, turnaround, pf.SeriesID, cvdStudyName, studyConfig}); err != nil {
		c.tracker.Reject(r.ID, err)
		return err
	}
	_, err = r.Wait(ctx)
	return err
}

func (c *Connection) resolveCVDConfig(ind model.IndicatorRequest) (cvdconfig.Config, error) {
	anchor := ind.AnchorPeriod
	if anchor == "" {
		anchor = "3M"
	}
	return c.cvdProvider.GetCVDConfig(anchor)
}
