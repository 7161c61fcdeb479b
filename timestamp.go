package xtrack

import (
	"time"
)

// Timestamp kinds.
const (
	DeviceTimestampType = "dtm"
	TrueTimestampType   = "ttm"
)

// Timestamp is an event time in milliseconds since the epoch. Type decides
// whether it is sent as dtm (device created) or ttm (true time).
type Timestamp struct {
	Type  string
	Value int64
}

// DeviceTimestamp returns a dtm timestamp.
func DeviceTimestamp(ms int64) Timestamp { return Timestamp{Type: DeviceTimestampType, Value: ms} }

// TrueTimestamp returns a ttm timestamp.
func TrueTimestamp(ms int64) Timestamp { return Timestamp{Type: TrueTimestampType, Value: ms} }

// TimestampFromTime converts t to a timestamp of the given kind.
func TimestampFromTime(kind string, t time.Time) Timestamp {
	return Timestamp{Type: kind, Value: t.UnixMilli()}
}

func (ts Timestamp) addTo(p *Payload) {
	kind := ts.Type
	if kind != TrueTimestampType {
		kind = DeviceTimestampType
	}
	p.Add(kind, ts.Value)
}
