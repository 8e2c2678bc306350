package events

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParse_Purchase(t *testing.T) {
	line := `{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "1", "amount": "16.83"}`

	ev, err := Parse([]byte(line))
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if ev.Kind != KindPurchase || ev.User != "1" || ev.Amount != 16.83 {
		t.Errorf("parsed %+v", ev)
	}
	want := time.Date(2017, 6, 13, 11, 33, 1, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestParse_NumericFieldsCoerced(t *testing.T) {
	line := `{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": 7, "amount": 16.83}`

	ev, err := Parse([]byte(line))
	if err != nil {
		t.Fatalf("numeric id/amount must be accepted: %v", err)
	}
	if ev.User != "7" || ev.Amount != 16.83 {
		t.Errorf("parsed %+v", ev)
	}
}

func TestParse_Friendship(t *testing.T) {
	for _, kind := range []Kind{KindBefriend, KindUnfriend} {
		line := `{"event_type":"` + string(kind) + `", "timestamp":"2017-06-13 11:33:01", "id1": "1", "id2": "2"}`
		ev, err := Parse([]byte(line))
		if err != nil {
			t.Fatalf("%s: unexpected rejection: %v", kind, err)
		}
		if ev.Kind != kind || ev.UserA != "1" || ev.UserB != "2" {
			t.Errorf("%s: parsed %+v", kind, ev)
		}
	}
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason Reason
	}{
		{"garbage", `not json at all`, ReasonMalformed},
		{"missing kind", `{"timestamp":"2017-06-13 11:33:01"}`, ReasonMalformed},
		{"unknown kind", `{"event_type":"refund", "timestamp":"2017-06-13 11:33:01", "id":"1"}`, ReasonUnknownKind},
		{"missing amount", `{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id":"1"}`, ReasonMalformed},
		{"bad amount", `{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id":"1", "amount":"abc"}`, ReasonMalformed},
		{"negative amount", `{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id":"1", "amount":"-5"}`, ReasonInvalidValue},
		{"missing id", `{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "amount":"5"}`, ReasonMalformed},
		{"bad timestamp", `{"event_type":"purchase", "timestamp":"13/06/2017", "id":"1", "amount":"5"}`, ReasonMalformed},
		{"missing friend id", `{"event_type":"befriend", "timestamp":"2017-06-13 11:33:01", "id1":"1"}`, ReasonMalformed},
		{"self friendship", `{"event_type":"befriend", "timestamp":"2017-06-13 11:33:01", "id1":"1", "id2":"1"}`, ReasonInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.line))
			if err == nil {
				t.Fatal("expected a rejection")
			}
			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Fatalf("error %v is not a *Rejection", err)
			}
			if rej.Reason != tt.reason {
				t.Errorf("reason = %s, want %s", rej.Reason, tt.reason)
			}
			if rej.Raw != strings.TrimRight(tt.line, "\n") {
				t.Errorf("raw line not preserved: %q", rej.Raw)
			}
		})
	}
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams([]byte(`{"D":"3", "T":"50"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Degree != 3 || p.Tracked != 50 {
		t.Errorf("params = %+v", p)
	}

	if _, err := ParseParams([]byte(`{"D":2, "T":10}`)); err != nil {
		t.Errorf("numeric D/T must be accepted: %v", err)
	}

	for _, bad := range []string{
		`{"D":"3"}`,
		`{"D":"0", "T":"50"}`,
		`{"D":"3", "T":"-1"}`,
		`{"D":"x", "T":"50"}`,
	} {
		if _, err := ParseParams([]byte(bad)); err == nil {
			t.Errorf("header %s must be rejected", bad)
		}
	}
}

func TestFormat2(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{59.867, "59.87"},
		{100, "100.00"},
		{0.999, "1.00"},
		{16.83, "16.83"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		if got := Format2(tt.in); got != tt.want {
			t.Errorf("Format2(%g) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewFlaggedRecord(t *testing.T) {
	ev := Purchase("9", 1601.83, time.Date(2017, 6, 13, 11, 33, 1, 0, time.UTC))
	rec := NewFlaggedRecord(ev, 29.342, 21.467)

	if rec.EventType != "purchase" || rec.ID != "9" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Timestamp != "2017-06-13 11:33:01" {
		t.Errorf("timestamp = %q", rec.Timestamp)
	}
	if rec.Amount != "1601.83" || rec.Mean != "29.34" || rec.SD != "21.47" {
		t.Errorf("amount/mean/sd = %q/%q/%q", rec.Amount, rec.Mean, rec.SD)
	}
}

func TestEventValidate_TypedConstructors(t *testing.T) {
	now := time.Now()
	if err := Purchase("1", 10, now).Validate(); err != nil {
		t.Errorf("valid purchase rejected: %v", err)
	}
	if err := Befriend("1", "2", now).Validate(); err != nil {
		t.Errorf("valid befriend rejected: %v", err)
	}
	if err := (Event{Kind: "transfer"}).Validate(); ReasonOf(err) != ReasonUnknownKind {
		t.Errorf("unknown kind reason = %v", ReasonOf(err))
	}
	if err := Purchase("1", -1, now).Validate(); ReasonOf(err) != ReasonInvalidValue {
		t.Errorf("negative amount reason = %v", ReasonOf(err))
	}
}
