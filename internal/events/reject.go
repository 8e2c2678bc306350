package events

import "errors"

// Reason classifies why an event was rejected. Every rejection is
// recoverable at the per-event level: the record is skipped and
// reported, never applied partially.
type Reason string

const (
	// ReasonMalformed marks unparseable records or missing required fields.
	ReasonMalformed Reason = "malformed_event"
	// ReasonInvalidValue marks well-formed records with out-of-range
	// values, e.g. a negative amount or a self-friendship.
	ReasonInvalidValue Reason = "invalid_event_value"
	// ReasonUnknownKind marks records whose event_type is not recognized.
	ReasonUnknownKind Reason = "unknown_event_kind"
)

// Rejection is the error returned for any event that must be skipped.
// Raw carries the offending wire record when the event arrived through
// the codec, so invalid-entry sinks can preserve it verbatim.
type Rejection struct {
	Reason Reason
	Raw    string
	Err    error
}

func (r *Rejection) Error() string {
	return string(r.Reason) + ": " + r.Err.Error()
}

func (r *Rejection) Unwrap() error { return r.Err }

// Malformed wraps err as a malformed-event rejection.
func Malformed(err error) *Rejection {
	return &Rejection{Reason: ReasonMalformed, Err: err}
}

// InvalidValue wraps err as an invalid-value rejection.
func InvalidValue(err error) *Rejection {
	return &Rejection{Reason: ReasonInvalidValue, Err: err}
}

// UnknownKind wraps err as an unknown-kind rejection.
func UnknownKind(err error) *Rejection {
	return &Rejection{Reason: ReasonUnknownKind, Err: err}
}

// ReasonOf extracts the rejection reason from err, defaulting to
// malformed for errors that are not rejections.
func ReasonOf(err error) Reason {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ReasonMalformed
}
