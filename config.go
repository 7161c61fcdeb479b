package xtrack

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	MethodGet  = "get"
	MethodPost = "post"

	ProtocolHTTP  = "http"
	ProtocolHTTPS = "https"

	DefaultGetPath  = "/i"
	DefaultPostPath = "/com.snowplowanalytics.snowplow/tp2"

	DefaultGetBufferSize  = 1
	DefaultPostBufferSize = 10
)

// Config holds emitter settings. Zero values are filled in by Defaults and
// the method-dependent rules in Resolved.
type Config struct {
	// Path overrides the collector path (default /i for GET, tp2 for POST).
	Path string
	// Protocol is http or https.
	Protocol string
	// Port is appended to the endpoint when positive.
	Port int
	// Method is get or post.
	Method string
	// BufferSize is the number of events that triggers a flush
	// (default 1 for GET, 10 for POST).
	BufferSize int
	OnSuccess  SuccessCallback
	OnFailure  FailureCallback
	// ThreadCount is the worker count of an async emitter. Synchronous
	// emitters ignore it.
	ThreadCount int
}

// Defaults returns a Config with the collector defaults.
func Defaults() Config {
	return Config{
		Protocol:    ProtocolHTTP,
		Method:      MethodGet,
		ThreadCount: 1,
	}
}

// Resolved returns a copy with method-dependent defaults applied.
func (c Config) Resolved() Config {
	d := Defaults()
	if c.Protocol == "" {
		c.Protocol = d.Protocol
	}
	if c.Method == "" {
		c.Method = d.Method
	}
	c.Protocol = strings.ToLower(c.Protocol)
	c.Method = strings.ToLower(c.Method)
	if c.ThreadCount == 0 {
		c.ThreadCount = d.ThreadCount
	}
	if c.Path == "" {
		if c.Method == MethodPost {
			c.Path = DefaultPostPath
		} else {
			c.Path = DefaultGetPath
		}
	}
	if c.BufferSize == 0 {
		if c.Method == MethodPost {
			c.BufferSize = DefaultPostBufferSize
		} else {
			c.BufferSize = DefaultGetBufferSize
		}
	}
	return c
}

// Validate checks a resolved Config.
func (c Config) Validate() error {
	switch c.Protocol {
	case ProtocolHTTP, ProtocolHTTPS:
	default:
		return &ConfigError{Key: "protocol", Reason: fmt.Sprintf("must be http or https, got %q", c.Protocol)}
	}
	switch c.Method {
	case MethodGet, MethodPost:
	default:
		return &ConfigError{Key: "method", Reason: fmt.Sprintf("must be get or post, got %q", c.Method)}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Key: "port", Reason: fmt.Sprintf("out of range: %d", c.Port)}
	}
	if c.BufferSize < 1 {
		return &ConfigError{Key: "buffer_size", Reason: fmt.Sprintf("must be >= 1, got %d", c.BufferSize)}
	}
	if c.ThreadCount < 1 {
		return &ConfigError{Key: "thread_count", Reason: fmt.Sprintf("must be >= 1, got %d", c.ThreadCount)}
	}
	if !strings.HasPrefix(c.Path, "/") {
		return &ConfigError{Key: "path", Reason: "must start with /"}
	}
	return nil
}

// CollectorURI builds protocol://endpoint[:port]path.
func (c Config) CollectorURI(endpoint string) string {
	var b strings.Builder
	b.WriteString(c.Protocol)
	b.WriteString("://")
	b.WriteString(endpoint)
	if c.Port > 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(c.Port))
	}
	b.WriteString(c.Path)
	return b.String()
}

// configKeys lists every key ConfigFromMap accepts.
var configKeys = map[string]struct{}{
	"path":         {},
	"protocol":     {},
	"port":         {},
	"method":       {},
	"buffer_size":  {},
	"on_success":   {},
	"on_failure":   {},
	"thread_count": {},
}

// ConfigFromMap converts a generic option map (for example decoded YAML) to
// Config. Unknown keys and mistyped values are rejected with *ConfigError.
func ConfigFromMap(m map[string]any) (Config, error) {
	c := Defaults()

	unknown := make([]string, 0)
	for k := range m {
		if _, ok := configKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Config{}, &ConfigError{Key: unknown[0], Reason: "unknown option"}
	}

	var err error
	if v, ok := m["path"]; ok {
		if c.Path, err = stringOption("path", v); err != nil {
			return Config{}, err
		}
	}
	if v, ok := m["protocol"]; ok {
		if c.Protocol, err = stringOption("protocol", v); err != nil {
			return Config{}, err
		}
	}
	if v, ok := m["method"]; ok {
		if c.Method, err = stringOption("method", v); err != nil {
			return Config{}, err
		}
	}
	if v, ok := m["port"]; ok {
		if c.Port, err = positiveIntOption("port", v); err != nil {
			return Config{}, err
		}
	}
	if v, ok := m["buffer_size"]; ok {
		if c.BufferSize, err = positiveIntOption("buffer_size", v); err != nil {
			return Config{}, err
		}
	}
	if v, ok := m["thread_count"]; ok {
		if c.ThreadCount, err = positiveIntOption("thread_count", v); err != nil {
			return Config{}, err
		}
	}
	if v, ok := m["on_success"]; ok && v != nil {
		switch f := v.(type) {
		case SuccessCallback:
			c.OnSuccess = f
		case func(int):
			c.OnSuccess = f
		default:
			return Config{}, &ConfigError{Key: "on_success", Reason: fmt.Sprintf("expected func(int), got %T", v)}
		}
	}
	if v, ok := m["on_failure"]; ok && v != nil {
		switch f := v.(type) {
		case FailureCallback:
			c.OnFailure = f
		case func(int, []*Payload):
			c.OnFailure = f
		default:
			return Config{}, &ConfigError{Key: "on_failure", Reason: fmt.Sprintf("expected func(int, []*Payload), got %T", v)}
		}
	}

	return c, nil
}

func stringOption(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &ConfigError{Key: key, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

func positiveIntOption(key string, v any) (int, error) {
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int32:
		n = int(t)
	case int64:
		n = int(t)
	case uint:
		n = int(t)
	case uint64:
		n = int(t)
	case float64:
		if t != math.Trunc(t) {
			return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("expected integer, got %v", t)}
		}
		n = int(t)
	default:
		return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("expected integer, got %T", v)}
	}
	if n < 1 {
		return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("must be positive, got %d", n)}
	}
	return n, nil
}
