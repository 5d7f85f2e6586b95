package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"schedimport/internal/model"
)

// Kind is the closed set of property value kinds the normalizer cares
// about.
type Kind int

const (
	KindText Kind = iota + 1
	KindDate
	KindDateTime
	KindRecurrence
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindDateTime:
		return "date-time"
	case KindRecurrence:
		return "recurrence"
	default:
		return "unknown"
	}
}

// Value is one typed property value.
//
// Text holds the text for KindText (golang-ical has already unescaped it)
// and the raw rule for KindRecurrence. When and TZID are set for KindDate
// and KindDateTime.
type Value struct {
	Kind Kind
	Text string
	When model.When
	TZID string
}

// String renders any kind of value as text.
func (v Value) String() string {
	switch v.Kind {
	case KindDate, KindDateTime:
		return v.When.String()
	default:
		return v.Text
	}
}

// PropertyBag is the read-only property set of one decoded event.
// Lookup reports ok == false when the property is absent.
type PropertyBag interface {
	Lookup(name string) (Value, bool)
}

// Properties whose value is a DATE or DATE-TIME.
var dateProperties = map[string]bool{
	"DTSTART":       true,
	"DTEND":         true,
	"DUE":           true,
	"RECURRENCE-ID": true,
	"DTSTAMP":       true,
	"CREATED":       true,
	"LAST-MODIFIED": true,
}

type veventBag struct {
	ve *ical.VEvent
}

// NewEventBag wraps a decoded VEVENT.
func NewEventBag(ve *ical.VEvent) PropertyBag {
	return veventBag{ve: ve}
}

func (b veventBag) Lookup(name string) (Value, bool) {
	name = strings.ToUpper(name)
	p := b.ve.GetProperty(ical.ComponentProperty(name))
	if p == nil {
		return Value{}, false
	}
	return classify(name, p.Value, p.ICalParameters), true
}

// classify turns a raw property value into a typed Value. A date property
// whose value cannot be parsed degrades to KindText.
func classify(name, raw string, params map[string][]string) Value {
	switch {
	case name == "RRULE":
		return Value{Kind: KindRecurrence, Text: strings.TrimSpace(raw)}
	case dateProperties[name]:
		tzid := firstParam(params, "TZID")
		w, err := parseWhen(raw, firstParam(params, "VALUE"), tzid)
		if err != nil {
			return Value{Kind: KindText, Text: raw}
		}
		kind := KindDateTime
		if w.DateOnly {
			kind = KindDate
		}
		return Value{Kind: kind, When: w, TZID: tzid}
	default:
		return Value{Kind: KindText, Text: raw}
	}
}

func firstParam(params map[string][]string, key string) string {
	if params == nil {
		return ""
	}
	vs := params[key]
	if len(vs) == 0 {
		return ""
	}
	return strings.Trim(vs[0], `"`)
}

const (
	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
	layoutUTC      = "20060102T150405Z"
)

// parseWhen parses a DATE or DATE-TIME value.
//
//   - VALUE=DATE or an 8-digit value -> calendar date
//   - trailing Z -> UTC date-time
//   - TZID resolvable by the host -> date-time in that zone
//   - otherwise -> floating date-time (TZID, if any, is passed through by
//     the caller)
func parseWhen(raw, valueType, tzid string) (model.When, error) {
	v := strings.TrimSpace(raw)

	if strings.EqualFold(valueType, "DATE") || (len(v) == len(layoutDate) && !strings.Contains(v, "T")) {
		t, err := time.Parse(layoutDate, v)
		if err != nil {
			return model.When{}, err
		}
		return model.When{Time: t, DateOnly: true}, nil
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		if err != nil {
			return model.When{}, err
		}
		return model.When{Time: t}, nil
	}

	if tzid != "" {
		if loc, err := loadLocation(tzid); err == nil {
			t, err := time.ParseInLocation(layoutDateTime, v, loc)
			if err != nil {
				return model.When{}, err
			}
			return model.When{Time: t}, nil
		}
	}

	t, err := time.Parse(layoutDateTime, v)
	if err != nil {
		return model.When{}, err
	}
	return model.When{Time: t, Floating: true}, nil
}

// loadLocation resolves a TZID. Some producers prefix IANA names with a
// vendor path such as "/mozilla.org/20050126_1/Europe/Berlin".
func loadLocation(tzid string) (*time.Location, error) {
	loc, err := time.LoadLocation(tzid)
	if err == nil {
		return loc, nil
	}
	parts := strings.Split(strings.Trim(tzid, "/"), "/")
	for i := 1; i < len(parts)-1; i++ {
		if l, lerr := time.LoadLocation(strings.Join(parts[i:], "/")); lerr == nil {
			return l, nil
		}
	}
	return nil, err
}
