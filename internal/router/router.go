// Package router implements the message dispatcher of §4.6: classify
// protocol_error/critical_error text, correlate symbol_resolved and
// timescale_update/du payloads back to tracked requests via the
// three-tier strategy, and ignore unknown methods at debug level.
//
// Heartbeat draining happens one layer up, in the Connection's read
// loop, which echoes every heartbeat of a read before dispatching any
// protocol message from it — the router only ever sees protocol.Message
// frames.
package router

import (
	"strings"

	"github.com/anjanpoonacha/tvchart/internal/connstate"
	"github.com/anjanpoonacha/tvchart/internal/errs"
	"github.com/anjanpoonacha/tvchart/internal/seriesreg"
	"github.com/anjanpoonacha/tvchart/internal/tracker"
	"github.com/anjanpoonacha/tvchart/model"
	"github.com/anjanpoonacha/tvchart/tools/log"
)

// studyDisplayNames maps an indicator's internal type key (model.IndicatorRequest.Type,
// e.g. "cvd") to the display name reported in IndicatorResult.StudyName.
var studyDisplayNames = map[string]string{
	"cvd": "CVD",
}

// studyDisplayName looks up indicatorType's display name, falling back to
// the key itself for indicator types with no registered mapping.
func studyDisplayName(indicatorType string) string {
	if name, ok := studyDisplayNames[indicatorType]; ok {
		return name
	}
	return indicatorType
}

var recoverableErrorText = []string{
	"exceed limit of series",
	"symbol not found",
	"invalid resolution",
	"invalid timeframe",
	"invalid period",
	"symbol error",
	"study error",
	"series error",
}

// CurrentFetchFunc returns the Connection's current pending fetch record,
// or nil if none is in flight.
type CurrentFetchFunc func() *model.PendingFetch

// Router dispatches inbound protocol.Message values to the tracker,
// series registry, and state machine of one Connection.
type Router struct {
	Tracker *tracker.Tracker
	Series  *seriesreg.Registry
	State   *connstate.Machine
	Current CurrentFetchFunc

	OnWarning func(msg string)
	OnError   func(err error)
}

// Dispatch routes one decoded protocol message.
func (r *Router) Dispatch(method string, params []any) {
	switch method {
	case "protocol_error", "critical_error":
		r.handleProtocolError(params)
	case "symbol_resolved":
		r.handleSymbolResolved(params)
	case "symbol_error":
		r.handleSymbolError(params)
	case "timescale_update", "du":
		r.handleData(params)
	default:
		log.Debugf("router: ignoring unknown method %q", method)
	}
}

func (r *Router) warn(msg string) {
	log.Warn(msg)
	if r.OnWarning != nil {
		r.OnWarning(msg)
	}
}

func (r *Router) handleProtocolError(params []any) {
	var turnaround, text string
	if len(params) > 0 {
		turnaround, _ = params[0].(string)
	}
	if len(params) > 1 {
		text, _ = params[1].(string)
	}

	if isRecoverableText(text) {
		if req, ok := r.Tracker.GetRequestByTurnaround(turnaround); ok {
			r.Tracker.Reject(req.ID, errs.NewRecoverable(errs.ProtocolError, text, nil, true))
		}
		r.warn("protocol_error (recoverable): " + text)
		return
	}

	r.State.Force(connstate.Error)
	r.Tracker.CancelAllRequests("protocol_error: " + text)
	err := errs.New(errs.ProtocolError, text, nil)
	if r.OnError != nil {
		r.OnError(err)
	}
}

func isRecoverableText(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range recoverableErrorText {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (r *Router) handleSymbolResolved(params []any) {
	if len(params) < 3 {
		return
	}
	symbolSession, _ := params[1].(string)
	metadata := parseMetadata(params[2])

	if req, ok := r.Tracker.GetRequestByTurnaround(symbolSession); ok {
		r.Tracker.Resolve(req.ID, metadata)
	}

	if pf := r.Current(); pf != nil && pf.SymbolSessionID == symbolSession {
		pf.Metadata = metadata
		pf.MetadataSet = true
	}
}

func (r *Router) handleSymbolError(params []any) {
	var reason string
	if len(params) > 2 {
		reason, _ = params[2].(string)
	}
	if req, ok := r.Tracker.OldestPending(model.RequestResolveSymbol); ok {
		r.Tracker.Reject(req.ID, errs.New(errs.SymbolError, reason, nil))
	}
}

func (r *Router) handleData(params []any) {
	if len(params) < 2 {
		return
	}
	data, ok := params[1].(map[string]any)
	if !ok {
		return
	}

	pf := r.Current()
	if pf == nil {
		return
	}

	for key, raw := range data {
		switch {
		case key == pf.SeriesID:
			r.handleSeriesUpdate(pf, raw)
		default:
			for indicatorType, studyID := range pf.StudyIDs {
				if key == studyID {
					r.handleStudyUpdate(pf, indicatorType, studyID, raw)
				}
			}
		}
	}
}

func (r *Router) handleSeriesUpdate(pf *model.PendingFetch, raw any) {
	bars, turnaround := parseSeriesUpdate(raw)
	pf.Bars = append(pf.Bars, bars...)

	req, ok := r.correlate(pf.SeriesID, turnaround, model.RequestCreateSeries)
	if ok {
		r.Tracker.Resolve(req.ID, pf.Bars)
	}
}

func (r *Router) handleStudyUpdate(pf *model.PendingFetch, indicatorType, studyID string, raw any) {
	bars := parseStudyUpdate(raw)
	result := pf.Indicators[indicatorType]
	result.StudyName = studyDisplayName(indicatorType)
	result.Values = append(result.Values, bars...)
	pf.Indicators[indicatorType] = result

	req, ok := r.correlate(studyID, "", model.RequestCreateStudy)
	if ok {
		r.Tracker.Resolve(req.ID, result)
	}
}

// correlate implements the three-tier strategy of §4.6: series/study-id
// map lookup, then turnaround id, then (with a warning, since whether
// this should fire during normal operation is unproven — see DESIGN.md)
// the oldest pending request of kind.
func (r *Router) correlate(handle, turnaround string, kind model.RequestKind) (*tracker.Request, bool) {
	if id, ok := r.Series.GetRequestID(handle); ok {
		if req, ok := r.Tracker.ByID(id); ok {
			return req, true
		}
	}
	if turnaround != "" {
		if req, ok := r.Tracker.GetRequestByTurnaround(turnaround); ok {
			return req, true
		}
	}
	if req, ok := r.Tracker.OldestPending(kind); ok {
		r.warn("router: tier-3 fallback correlation used for " + string(kind))
		return req, true
	}
	return nil, false
}
