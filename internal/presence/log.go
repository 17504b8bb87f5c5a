package presence

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var logHeader = []string{"timestamp", "date", "time", "day_of_week", "event", "device_name", "ip_address"}

// EventLog is the append-only CSV history of presence transitions. The file
// format is a contract: external tooling graphs it, so columns never move.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog opens (or creates, header included) the history file at path.
func NewEventLog(path string) (*EventLog, error) {
	l := &EventLog{path: path}
	if err := l.ensureHeader(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *EventLog) ensureHeader() error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create event log dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create event log: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(logHeader); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Append records one transition.
func (l *EventLog) Append(kind Kind, deviceName, ip string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := []string{
		at.Format(time.RFC3339),
		at.Format("2006-01-02"),
		at.Format("15:04:05"),
		at.Weekday().String(),
		string(kind),
		deviceName,
		ip,
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Stats summarizes the whole history file.
type Stats struct {
	TotalEvents   int
	Arrivals      int
	Departures    int
	DaysTracked   int
	UniqueDevices int
}

// Entry is one parsed history row.
type Entry struct {
	At         time.Time
	Event      Kind
	DeviceName string
	IP         string
}

// Stats re-reads the file and counts events. Malformed rows are skipped, not
// fatal: the log may predate this build or carry a torn last line from a
// crash.
func (l *EventLog) Stats() (Stats, error) {
	entries, err := l.read()
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	days := make(map[string]struct{})
	names := make(map[string]struct{})
	for _, e := range entries {
		switch e.Event {
		case Arrived:
			s.Arrivals++
		case Left:
			s.Departures++
		default:
			continue
		}
		days[e.At.Format("2006-01-02")] = struct{}{}
		names[e.DeviceName] = struct{}{}
	}
	s.TotalEvents = s.Arrivals + s.Departures
	s.DaysTracked = len(days)
	s.UniqueDevices = len(names)
	return s, nil
}

// EventsSince returns the entries at or after since, oldest first.
func (l *EventLog) EventsSince(since time.Time) ([]Entry, error) {
	entries, err := l.read()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.At.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *EventLog) read() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	entries := make([]Entry, 0, len(records)-1)
	for _, row := range records[1:] {
		at, err := parseTimestamp(field(row, "timestamp"))
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			At:         at,
			Event:      Kind(field(row, "event")),
			DeviceName: field(row, "device_name"),
			IP:         field(row, "ip_address"),
		})
	}
	return entries, nil
}

// parseTimestamp accepts RFC3339 and the zone-less ISO form older history
// files carry.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}
