package router

import (
	"context"
	"testing"
	"time"

	"github.com/anjanpoonacha/tvchart/internal/connstate"
	"github.com/anjanpoonacha/tvchart/internal/errs"
	"github.com/anjanpoonacha/tvchart/internal/seriesreg"
	"github.com/anjanpoonacha/tvchart/internal/tracker"
	"github.com/anjanpoonacha/tvchart/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopRemover struct{}

func (noopRemover) RemoveSeries(string, string) error { return nil }

func newTestRouter(pf *model.PendingFetch) (*Router, *tracker.Tracker, *seriesreg.Registry, *connstate.Machine) {
	tr := tracker.New()
	sr := seriesreg.New("cs_1", noopRemover{})
	sm := connstate.New()
	r := &Router{
		Tracker: tr,
		Series:  sr,
		State:   sm,
		Current: func() *model.PendingFetch { return pf },
	}
	return r, tr, sr, sm
}

func TestSymbolResolvedUpdatesTrackerAndPendingFetch(t *testing.T) {
	pf := model.NewPendingFetch("NSE:TCS", "sds_sym_1", "sds_1")
	r, tr, _, _ := newTestRouter(pf)

	req, err := tr.CreateRequest(model.RequestResolveSymbol, nil, time.Minute, tracker.WithTurnaround("sds_sym_1"))
	require.NoError(t, err)

	r.Dispatch("symbol_resolved", []any{"cs_1", "sds_sym_1", map[string]any{
		"name": "TCS", "exchange": "NSE", "pricescale": float64(100),
	}})

	val, err := req.Wait(context.Background())
	require.NoError(t, err)
	md := val.(model.SymbolMetadata)
	assert.Equal(t, "TCS", md.Name)
	assert.True(t, pf.MetadataSet)
	assert.Equal(t, "NSE", pf.Metadata.Exchange)
}

func TestSymbolErrorRejectsOldestResolveSymbol(t *testing.T) {
	pf := model.NewPendingFetch("NSE:XX", "sds_sym_1", "sds_1")
	r, tr, _, _ := newTestRouter(pf)

	req, err := tr.CreateRequest(model.RequestResolveSymbol, nil, time.Minute)
	require.NoError(t, err)

	r.Dispatch("symbol_error", []any{"cs_1", "NSE:XX", "symbol not found"})

	_, err = req.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.SymbolError, errs.KindOf(err))
}

func TestTimescaleUpdateAppendsBarsAndResolvesBySeriesID(t *testing.T) {
	pf := model.NewPendingFetch("NSE:TCS", "sds_sym_1", "sds_1")
	r, tr, sr, _ := newTestRouter(pf)

	req, err := tr.CreateRequest(model.RequestCreateSeries, nil, time.Minute)
	require.NoError(t, err)
	sr.Register("sds_1", req.ID)

	r.Dispatch("timescale_update", []any{"cs_1", map[string]any{
		"sds_1": map[string]any{
			"s": []any{
				map[string]any{"v": []any{float64(1703376000), float64(3500), float64(3510), float64(3490), float64(3505), float64(1000)}},
			},
		},
	}})

	val, err := req.Wait(context.Background())
	require.NoError(t, err)
	bars := val.([]model.Bar)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1703376000), bars[0].Time)
	assert.Equal(t, 3500.0, bars[0].Open)
	assert.Len(t, pf.Bars, 1)
}

func TestTimescaleUpdateCorrelatesByTurnaroundWhenNotRegistered(t *testing.T) {
	pf := model.NewPendingFetch("NSE:TCS", "sds_sym_1", "sds_1")
	r, tr, _, _ := newTestRouter(pf)

	req, err := tr.CreateRequest(model.RequestCreateSeries, nil, time.Minute, tracker.WithTurnaround("turn_1"))
	require.NoError(t, err)

	r.Dispatch("du", []any{"cs_1", map[string]any{
		"sds_1": map[string]any{
			"s":  []any{},
			"ns": map[string]any{"d": "turn_1"},
		},
	}})

	_, err = req.Wait(context.Background())
	assert.NoError(t, err)
}

func TestRecoverableProtocolErrorCancelsOnlyThatRequest(t *testing.T) {
	pf := model.NewPendingFetch("NSE:TCS", "sds_sym_1", "sds_1")
	r, tr, _, sm := newTestRouter(pf)
	require.NoError(t, sm.Transition(connstate.Connecting))
	require.NoError(t, sm.Transition(connstate.Connected))
	require.NoError(t, sm.Transition(connstate.Authenticating))
	require.NoError(t, sm.Transition(connstate.Authenticated))
	require.NoError(t, sm.Transition(connstate.Ready))

	target, _ := tr.CreateRequest(model.RequestCreateSeries, nil, time.Minute, tracker.WithTurnaround("sds_7"))
	_, _ = tr.CreateRequest(model.RequestCreateSeries, nil, time.Minute, tracker.WithTurnaround("sds_8"))

	r.Dispatch("protocol_error", []any{"sds_7", "exceed limit of series"})

	_, err := target.Wait(context.Background())
	assert.Equal(t, errs.ProtocolError, errs.KindOf(err))
	assert.True(t, errs.IsRecoverable(err))
	assert.Equal(t, connstate.Ready, sm.Current())

	// The other pending request (turnaround sds_8) must be unaffected by a
	// recoverable protocol error scoped to sds_7.
	assert.Equal(t, 1, tr.Len())
}

func TestNonRecoverableProtocolErrorForcesErrorAndCancelsAll(t *testing.T) {
	pf := model.NewPendingFetch("NSE:TCS", "sds_sym_1", "sds_1")
	r, tr, _, sm := newTestRouter(pf)
	var gotErr error
	r.OnError = func(err error) { gotErr = err }

	a, _ := tr.CreateRequest(model.RequestCreateSeries, nil, time.Minute)
	b, _ := tr.CreateRequest(model.RequestCreateSeries, nil, time.Minute)

	r.Dispatch("critical_error", []any{"", "fatal wire desync"})

	assert.Equal(t, connstate.Error, sm.Current())
	assert.Equal(t, 0, tr.Len())
	require.Error(t, gotErr)
	assert.Equal(t, errs.ProtocolError, errs.KindOf(gotErr))

	_, errA := a.Wait(context.Background())
	_, errB := b.Wait(context.Background())
	assert.Error(t, errA)
	assert.Error(t, errB)
}

func TestUnknownMethodIgnored(t *testing.T) {
	pf := model.NewPendingFetch("NSE:TCS", "sds_sym_1", "sds_1")
	r, _, _, _ := newTestRouter(pf)
	assert.NotPanics(t, func() { r.Dispatch("some_future_method", []any{1, 2, 3}) })
}
