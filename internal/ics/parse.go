package ics

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ical "github.com/arran4/golang-ical"

	appLog "schedimport/internal/log"
)

// Source names one calendar payload: a local file or a remote subscription.
type Source struct {
	// Name is what ends up in each event's source_file.
	Name string
	// Path is set for local files.
	Path string
	// URL is set for remote subscriptions.
	URL string
}

// FileSource builds a Source for a local calendar file.
func FileSource(path string) Source {
	return Source{Name: filepath.Base(path), Path: path}
}

// ErrNotCalendar is returned for payloads without a VCALENDAR block.
var ErrNotCalendar = errors.New("not an iCalendar payload")

// Decode parses one iCalendar payload into a property bag per VEVENT, in
// file order. Any parse error fails the whole payload.
func Decode(src Source, body []byte) ([]PropertyBag, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%s: empty calendar", src.Name)
	}
	if !bytes.Contains(bytes.ToUpper(body), []byte("BEGIN:VCALENDAR")) {
		return nil, fmt.Errorf("%s: %w", src.Name, ErrNotCalendar)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name, err)
	}

	vevents := cal.Events()
	bags := make([]PropertyBag, 0, len(vevents))
	for _, ve := range vevents {
		bags = append(bags, NewEventBag(ve))
	}

	appLog.Debug("ics decode completed", "source", src.Name, "event_count", len(bags))
	return bags, nil
}

// ReadFile loads a local calendar file.
func ReadFile(src Source) ([]byte, error) {
	body, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Path, err)
	}
	return body, nil
}
