package ics

import (
	"strings"

	"github.com/teambition/rrule-go"

	appLog "schedimport/internal/log"
	"schedimport/internal/model"
)

// Normalize maps one event's properties into a model.Event.
//
// It never fails: text fields default to "", dates that are absent or not
// parseable are omitted, and a recurrence rule that rrule-go cannot read is
// kept as its raw text. Tasks is left empty for the extractor to fill.
func Normalize(bag PropertyBag, sourceFile string) model.Event {
	ev := model.Event{
		UID:         textOf(bag, "UID"),
		Summary:     textOf(bag, "SUMMARY"),
		Description: textOf(bag, "DESCRIPTION"),
		Location:    textOf(bag, "LOCATION"),
		SourceFile:  sourceFile,
		Tasks:       []model.Task{},
	}

	ev.Start, ev.StartTZ = whenOf(bag, "DTSTART", ev.UID, sourceFile)
	ev.End, ev.EndTZ = whenOf(bag, "DTEND", ev.UID, sourceFile)

	if v, ok := bag.Lookup("RRULE"); ok {
		ev.RecurrenceRule = canonicalRRule(v.String())
	}

	return ev
}

func textOf(bag PropertyBag, name string) string {
	v, ok := bag.Lookup(name)
	if !ok {
		return ""
	}
	return v.String()
}

func whenOf(bag PropertyBag, name, uid, sourceFile string) (*model.When, string) {
	v, ok := bag.Lookup(name)
	if !ok {
		return nil, ""
	}
	if v.Kind != KindDate && v.Kind != KindDateTime {
		appLog.Debug("ics: dropping unparseable date", "property", name, "value", v.Text, "uid", uid, "file", sourceFile)
		return nil, ""
	}
	w := v.When
	return &w, v.TZID
}

// canonicalRRule re-encodes a rule in rrule-go's part order. UNTIL is
// written back exactly as given: rrule-go turns DATE and floating values
// into UTC, and UNTIL must keep DTSTART's value type.
func canonicalRRule(raw string) string {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "RRULE:"))
	if raw == "" {
		return ""
	}
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		appLog.Debug("ics: keeping raw RRULE", "rrule", raw, "err", err)
		return raw
	}
	out := opt.RRuleString()
	if until, ok := rulePart(raw, "UNTIL"); ok {
		out = setRulePart(out, "UNTIL", until)
	}
	return out
}

// rulePart returns the value of key in a NAME=VALUE;... rule.
func rulePart(rule, key string) (string, bool) {
	for _, part := range strings.Split(rule, ";") {
		name, value, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(strings.TrimSpace(name), key) {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

// setRulePart replaces the value of key, appending it when absent.
func setRulePart(rule, key, value string) string {
	parts := strings.Split(rule, ";")
	for i, part := range parts {
		name, _, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(name, key) {
			parts[i] = key + "=" + value
			return strings.Join(parts, ";")
		}
	}
	return rule + ";" + key + "=" + value
}
