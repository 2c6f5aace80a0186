package trace

import "github.com/sirupsen/logrus"

// Level controls which records are kept.
type Level string

const (
	// LevelEvents keeps state-changing domain events only.
	LevelEvents Level = "events"
	// LevelFull also keeps periodic stock snapshots and demand forecasts.
	LevelFull Level = "full"
)

// validLevels maps accepted trace level strings.
var validLevels = map[Level]bool{
	LevelEvents: true,
	LevelFull:   true,
	"":          true, // empty defaults to full
}

// IsValidLevel returns true if the given level string is a recognized trace level.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// Recorder accepts domain events. Implemented by *Log.
type Recorder interface {
	Record(r Record)
}

// Observer is notified of every record kept by a Log, in order.
type Observer interface {
	Observe(r Record)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(r Record)

// Observe calls f(r).
func (f ObserverFunc) Observe(r Record) { f(r) }

// Log collects domain events during a simulation run in dispatch order.
type Log struct {
	level     Level
	records   []Record
	observers []Observer
	nextSeq   int64
}

// NewLog creates a Log ready for recording.
func NewLog(level Level) *Log {
	if level == "" {
		level = LevelFull
	}
	return &Log{
		level:   level,
		records: make([]Record, 0),
	}
}

// Subscribe registers an observer for subsequent records.
func (l *Log) Subscribe(o Observer) {
	l.observers = append(l.observers, o)
}

// Record assigns the next sequence number, keeps the record if the level
// allows it and forwards it to observers. Observers see periodic records even
// at LevelEvents so gauges stay current.
func (l *Log) Record(r Record) {
	l.nextSeq++
	r.Seq = l.nextSeq
	for _, o := range l.observers {
		o.Observe(r)
	}
	if l.level == LevelEvents && periodicKinds[r.Kind] {
		return
	}
	logrus.Debugf("[tick %07d] %s %s qty=%d %s", r.Time, r.Kind, r.Location, r.Quantity, r.Detail)
	l.records = append(l.records, r)
}

// Records returns the kept records in order.
// The returned slice is the log's internal storage; callers MUST NOT modify it.
func (l *Log) Records() []Record {
	return l.records
}

// Len returns the number of kept records.
func (l *Log) Len() int {
	return len(l.records)
}
