package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// flexible is a JSON value that may arrive as a string or a number.
// The ingest contract is loose on this point, so both are accepted.
type flexible string

func (f *flexible) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = flexible(str)
		return nil
	}
	if s == "null" {
		*f = ""
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*f = flexible(num.String())
	return nil
}

// rawEvent is the wire shape of one JSON-lines record.
type rawEvent struct {
	EventType flexible `json:"event_type"`
	Timestamp flexible `json:"timestamp"`
	ID        flexible `json:"id"`
	Amount    flexible `json:"amount"`
	ID1       flexible `json:"id1"`
	ID2       flexible `json:"id2"`
}

// rawParams is the wire shape of a batch-file parameter header.
type rawParams struct {
	D flexible `json:"D"`
	T flexible `json:"T"`
}

// Parse decodes and validates one JSON-lines event record. On failure
// it returns a *Rejection carrying the raw line and a reason code.
func Parse(line []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, reject(Malformed(fmt.Errorf("unparseable record: %w", err)), line)
	}

	var ev Event
	switch Kind(raw.EventType) {
	case KindPurchase:
		ts, err := parseTimestamp(string(raw.Timestamp))
		if err != nil {
			return Event{}, reject(Malformed(err), line)
		}
		if raw.Amount == "" {
			return Event{}, reject(Malformed(fmt.Errorf("purchase missing amount")), line)
		}
		amount, err := strconv.ParseFloat(string(raw.Amount), 64)
		if err != nil {
			return Event{}, reject(Malformed(fmt.Errorf("unparseable amount %q", string(raw.Amount))), line)
		}
		ev = Purchase(string(raw.ID), amount, ts)

	case KindBefriend, KindUnfriend:
		ts, err := parseTimestamp(string(raw.Timestamp))
		if err != nil {
			return Event{}, reject(Malformed(err), line)
		}
		ev = Event{Kind: Kind(raw.EventType), UserA: string(raw.ID1), UserB: string(raw.ID2), Timestamp: ts}

	case "":
		return Event{}, reject(Malformed(fmt.Errorf("missing event_type")), line)

	default:
		return Event{}, reject(UnknownKind(fmt.Errorf("unknown event kind %q", string(raw.EventType))), line)
	}

	if err := ev.Validate(); err != nil {
		var rej *Rejection
		if !errors.As(err, &rej) {
			rej = Malformed(err)
		}
		return Event{}, reject(rej, line)
	}
	return ev, nil
}

// ParseParams decodes a batch-file parameter header such as
// {"D":"3", "T":"50"}.
func ParseParams(line []byte) (Params, error) {
	var raw rawParams
	if err := json.Unmarshal(line, &raw); err != nil {
		return Params{}, fmt.Errorf("unparseable parameter header: %w", err)
	}
	if raw.D == "" || raw.T == "" {
		return Params{}, fmt.Errorf("parameter header must carry both D and T")
	}
	d, err := strconv.Atoi(string(raw.D))
	if err != nil {
		return Params{}, fmt.Errorf("unparseable D %q", string(raw.D))
	}
	t, err := strconv.Atoi(string(raw.T))
	if err != nil {
		return Params{}, fmt.Errorf("unparseable T %q", string(raw.T))
	}
	p := Params{Degree: d, Tracked: t}
	return p, p.Validate()
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	ts, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	}
	return ts, nil
}

func reject(rej *Rejection, line []byte) *Rejection {
	rej.Raw = strings.TrimRight(string(line), "\n")
	return rej
}

// FlaggedRecord is the wire shape of one flagged purchase in the replay
// output: the input purchase fields as strings, plus the population
// statistics that triggered the flag.
type FlaggedRecord struct {
	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Mean      string `json:"mean"`
	SD        string `json:"sd"`
}

// NewFlaggedRecord formats a flagged purchase for the output file.
// Statistics carry exactly two decimal places.
func NewFlaggedRecord(ev Event, mean, stddev float64) FlaggedRecord {
	return FlaggedRecord{
		EventType: string(KindPurchase),
		Timestamp: ev.Timestamp.Format(TimeLayout),
		ID:        ev.User,
		Amount:    Format2(ev.Amount),
		Mean:      Format2(mean),
		SD:        Format2(stddev),
	}
}

// Format2 renders v with exactly two decimal places, rounding to
// nearest: 59.867 becomes "59.87". Amounts that already carry two
// decimals, like 1601.83, survive exactly.
func Format2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
