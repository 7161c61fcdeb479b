package xtrack

// Version of the tracker, sent as tv with the "go-" prefix.
const Version = "0.3.0"

// TrackerVersion returns the tv value.
func TrackerVersion() string { return "go-" + Version }
