// Package redisstream delivers tracked events to a Redis Stream instead of
// an HTTP collector. Every event becomes one XADD entry:
//
//	XADD <stream> [MAXLEN ~ n] * e <event type> eid <event id> stm <send time> payload <json>
//
// Transport name: "redis-streams"
//
// Config keys:
//   - addr: "host:port" (default "127.0.0.1:6379")
//   - username, password, db
//   - tls, tls_server_name
//   - stream: stream key (default "xtrack:events")
//   - max_len_approx: approximate MAXLEN trim (default 0 = untrimmed)
//
// Example:
//
//	em, _ := xtrack.NewEmitterBuilder().
//	    WithConfig(xtrack.Config{Method: xtrack.MethodPost, BufferSize: 50}).
//	    WithTransport(redisstream.TransportName, map[string]any{
//	        "addr":   "localhost:6379",
//	        "stream": "analytics",
//	    }).
//	    Build()
package redisstream
