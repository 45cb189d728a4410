package tvchart

import "github.com/anjanpoonacha/tvchart/internal/errs"

// Kind classifies a client error per the taxonomy in §7.
type Kind = errs.Kind

const (
	KindConnectionTimeout = errs.ConnectionTimeout
	KindNetworkError      = errs.NetworkError
	KindProtocolError     = errs.ProtocolError
	KindSymbolError       = errs.SymbolError
	KindDataTimeout       = errs.DataTimeout
	KindCVDTimeout        = errs.CVDTimeout
	KindRequestCancelled  = errs.RequestCancelled
	KindConnectionClosed  = errs.ConnectionClosed
	KindInvalidState      = errs.InvalidState
	KindStaleConnection   = errs.StaleConnection
	KindQueueFull         = errs.QueueFull
)

// Error is the typed error every public operation returns on failure. It
// carries a human-readable message, a machine-readable Kind, and whether
// the pool or caller may treat it as recoverable.
type Error = errs.Error

// IsRecoverable reports whether err (or any *Error in its chain) is
// marked recoverable.
func IsRecoverable(err error) bool { return errs.IsRecoverable(err) }

// KindOf extracts the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind { return errs.KindOf(err) }
