package redisstream

// Stream entry fields.
const (
	fieldEventType = "e"
	fieldEventID   = "eid"
	fieldPayload   = "payload" // JSON object of every event field
	fieldSentAt    = "stm"
)
