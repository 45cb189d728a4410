package tvchart

import (
	"context"
	"testing"
	"time"

	"github.com/anjanpoonacha/tvchart/internal/errs"
	"github.com/anjanpoonacha/tvchart/internal/protocol"
	"github.com/anjanpoonacha/tvchart/internal/wsconn"
	"github.com/anjanpoonacha/tvchart/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchOutcome struct {
	result model.FetchResult
	err    error
}

func waitForSentCount(t *testing.T, adapter *wsconn.Scripted, n int) {
	t.Helper()
	assert.Eventually(t, func() bool { return adapter.SentCount() >= n }, time.Second, time.Millisecond)
}

func scriptFrame(t *testing.T, adapter *wsconn.Scripted, method string, params []any) {
	t.Helper()
	frame, err := protocol.Encode(method, params)
	require.NoError(t, err)
	adapter.ScriptMessage(frame)
}

func scriptSymbolResolved(t *testing.T, adapter *wsconn.Scripted, chartSession, symbolSessionID, name string) {
	scriptFrame(t, adapter, "symbol_resolved", []any{chartSession, symbolSessionID, map[string]any{
		"name": name, "exchange": "NSE", "pricescale": float64(100),
	}})
}

func barRow(timeSec int64, o, h, l, c, v float64) any {
	return map[string]any{"v": []any{float64(timeSec), o, h, l, c, v}}
}

func scriptSeriesUpdate(t *testing.T, adapter *wsconn.Scripted, chartSession, seriesID string, rows []any) {
	scriptFrame(t, adapter, "timescale_update", []any{chartSession, map[string]any{
		seriesID: map[string]any{"s": rows},
	}})
}

func scriptStudyUpdate(t *testing.T, adapter *wsconn.Scripted, chartSession, studyID string, rows []any) {
	scriptFrame(t, adapter, "du", []any{chartSession, map[string]any{
		studyID: map[string]any{"st": rows},
	}})
}

func TestFetchSymbolBeforeInitializeReturnsInvalidState(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))

	_, err := conn.FetchSymbol(context.Background(), FetchSymbolRequest{Symbol: "NSE:TCS"})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidState, errs.KindOf(err))
}

func TestFetchSymbolResolvesBarsSuccessfully(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))
	require.NoError(t, conn.Initialize(context.Background()))

	done := make(chan fetchOutcome, 1)
	go func() {
		r, err := conn.FetchSymbol(context.Background(), FetchSymbolRequest{
			Symbol: "NSE:TCS", Resolution: "1D", BarsCount: 2,
		})
		done <- fetchOutcome{r, err}
	}()

	waitForSentCount(t, adapter, 5)
	pf := conn.getCurrentPending()
	require.NotNil(t, pf)
	scriptSymbolResolved(t, adapter, conn.chartSession, pf.SymbolSessionID, "TCS")

	waitForSentCount(t, adapter, 6)
	scriptSeriesUpdate(t, adapter, conn.chartSession, pf.SeriesID, []any{
		barRow(1703376000, 3500, 3510, 3490, 3505, 1000),
		barRow(1703376060, 3505, 3520, 3500, 3515, 1200),
	})

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, "NSE:TCS", out.result.Symbol)
	assert.Equal(t, "TCS", out.result.Metadata.Name)
	require.Len(t, out.result.Bars, 2)
	assert.Equal(t, 3515.0, out.result.Bars[1].Close)
	assert.Equal(t, int64(1), conn.GetStats().RequestCount)
}

func TestFetchSymbolSymbolErrorPropagates(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))
	require.NoError(t, conn.Initialize(context.Background()))

	done := make(chan fetchOutcome, 1)
	go func() {
		r, err := conn.FetchSymbol(context.Background(), FetchSymbolRequest{
			Symbol: "NSE:NOPE", Resolution: "1D", BarsCount: 1,
		})
		done <- fetchOutcome{r, err}
	}()

	waitForSentCount(t, adapter, 5)
	scriptFrame(t, adapter, "symbol_error", []any{conn.chartSession, "NSE:NOPE", "symbol not found"})

	out := <-done
	require.Error(t, out.err)
	assert.Equal(t, errs.SymbolError, errs.KindOf(out.err))
}

func TestFetchSymbolWithCVDIndicator(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))
	require.NoError(t, conn.Initialize(context.Background()))

	done := make(chan fetchOutcome, 1)
	go func() {
		r, err := conn.FetchSymbol(context.Background(), FetchSymbolRequest{
			Symbol:     "NSE:TCS",
			Resolution: "1D",
			BarsCount:  1,
			Indicators: []model.IndicatorRequest{{Type: "cvd"}},
		})
		done <- fetchOutcome{r, err}
	}()

	waitForSentCount(t, adapter, 5)
	pf := conn.getCurrentPending()
	require.NotNil(t, pf)
	scriptSymbolResolved(t, adapter, conn.chartSession, pf.SymbolSessionID, "TCS")

	waitForSentCount(t, adapter, 6)
	scriptSeriesUpdate(t, adapter, conn.chartSession, pf.SeriesID, []any{
		barRow(1703376000, 3500, 3510, 3490, 3505, 1000),
	})

	waitForSentCount(t, adapter, 7)
	var studyID string
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		id, ok := pf.StudyIDs["cvd"]
		if ok {
			studyID = id
		}
		return ok
	}, time.Second, time.Millisecond)

	scriptStudyUpdate(t, adapter, conn.chartSession, studyID, []any{
		map[string]any{"v": []any{float64(1703376000), 10.0, 2.0, 8.0}},
	})

	out := <-done
	require.NoError(t, out.err)
	require.Contains(t, out.result.Indicators, "cvd")
	cvd := out.result.Indicators["cvd"]
	assert.Equal(t, "CVD", cvd.StudyName)
	require.Len(t, cvd.Values, 1)
	assert.Equal(t, []float64{2.0, 8.0}, cvd.Values[0].Values[1:])
}

func TestFetchSymbolSwitchCancelsPriorSeriesRequest(t *testing.T) {
	adapter := wsconn.NewScripted()
	conn := NewConnection(testConfig(), adapter, newMockCVD(t))
	require.NoError(t, conn.Initialize(context.Background()))

	doneA := make(chan fetchOutcome, 1)
	go func() {
		r, err := conn.FetchSymbol(context.Background(), FetchSymbolRequest{
			Symbol: "NSE:AAA", Resolution: "1D", BarsCount: 10,
		})
		doneA <- fetchOutcome{r, err}
	}()

	waitForSentCount(t, adapter, 5)
	pfA := conn.getCurrentPending()
	require.NotNil(t, pfA)
	scriptSymbolResolved(t, adapter, conn.chartSession, pfA.SymbolSessionID, "AAA")

	waitForSentCount(t, adapter, 6) // A's create_series went out, A now blocked on it

	doneB := make(chan fetchOutcome, 1)
	go func() {
		r, err := conn.FetchSymbol(context.Background(), FetchSymbolRequest{
			Symbol: "NSE:BBB", Resolution: "1D", BarsCount: 10,
		})
		doneB <- fetchOutcome{r, err}
	}()

	outA := <-doneA
	require.Error(t, outA.err)
	assert.Equal(t, errs.RequestCancelled, errs.KindOf(outA.err))

	waitForSentCount(t, adapter, 8) // B's remove_series (cleanup) + resolve_symbol
	pfB := conn.getCurrentPending()
	require.NotNil(t, pfB)
	require.Equal(t, "NSE:BBB", pfB.Symbol)
	scriptSymbolResolved(t, adapter, conn.chartSession, pfB.SymbolSessionID, "BBB")

	waitForSentCount(t, adapter, 9)
	scriptSeriesUpdate(t, adapter, conn.chartSession, pfB.SeriesID, []any{
		barRow(1703376000, 1, 2, 0.5, 1.5, 500),
	})

	outB := <-doneB
	require.NoError(t, outB.err)
	assert.Equal(t, "NSE:BBB", outB.result.Symbol)
}
