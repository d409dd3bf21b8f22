package logsink

import "time"

// Entry is one completed request as seen by the router.
type Entry struct {
	Timestamp      time.Time
	RequestID      string
	SourceHost     string
	Endpoint       string
	OriginalModel  string
	ResolvedModel  string
	UpstreamModel  string
	Route          string // alias name or route label
	Provider       string
	KeyFingerprint string
	Attempts       int
	Status         int
	Duration       time.Duration
	RequestBytes   int64
	ResponseBytes  int64
	Streaming      bool
	Error          string
}

// Sink receives completed request entries. Record must not block.
type Sink interface {
	Record(Entry)
}

// NopSink discards entries.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(Entry) {}

// MultiSink forwards each entry to every sink in order.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(e Entry) {
	for _, s := range m {
		if s != nil {
			s.Record(e)
		}
	}
}
