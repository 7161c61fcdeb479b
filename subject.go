package xtrack

import (
	"fmt"
	"strconv"
	"sync"
)

// Platform codes accepted for the p field.
const (
	PlatformDesktop = "pc"
	PlatformTV      = "tv"
	PlatformMobile  = "mob"
	PlatformConsole = "cnsl"
	PlatformIoT     = "iot"
	PlatformWeb     = "web"
	PlatformServer  = "srv"
	PlatformApp     = "app"
	DefaultPlatform = PlatformServer
)

var supportedPlatforms = map[string]struct{}{
	PlatformDesktop: {},
	PlatformTV:      {},
	PlatformMobile:  {},
	PlatformConsole: {},
	PlatformIoT:     {},
	PlatformWeb:     {},
	PlatformServer:  {},
	PlatformApp:     {},
}

// ValidPlatform reports whether p is a supported platform code.
func ValidPlatform(p string) bool {
	_, ok := supportedPlatforms[p]
	return ok
}

// Subject holds user and device fields attached to tracked events.
// It is safe for concurrent use.
type Subject struct {
	mu     sync.RWMutex
	fields map[string]string
}

// NewSubject returns a Subject with the default platform.
func NewSubject() *Subject {
	return &Subject{fields: map[string]string{"p": DefaultPlatform}}
}

func (s *Subject) set(key, value string) *Subject {
	s.mu.Lock()
	if s.fields == nil {
		s.fields = make(map[string]string)
	}
	if value == "" {
		delete(s.fields, key)
	} else {
		s.fields[key] = value
	}
	s.mu.Unlock()
	return s
}

// SetPlatform sets p. Unsupported codes are rejected.
func (s *Subject) SetPlatform(platform string) error {
	if !ValidPlatform(platform) {
		return fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}
	s.set("p", platform)
	return nil
}

func (s *Subject) SetUserID(id string) *Subject { return s.set("uid", id) }

// SetScreenResolution sets res as WxH.
func (s *Subject) SetScreenResolution(width, height int) *Subject {
	return s.set("res", dimensions(width, height))
}

// SetViewport sets vp as WxH.
func (s *Subject) SetViewport(width, height int) *Subject {
	return s.set("vp", dimensions(width, height))
}

func (s *Subject) SetColorDepth(depth int) *Subject { return s.set("cd", strconv.Itoa(depth)) }
func (s *Subject) SetTimezone(tz string) *Subject   { return s.set("tz", tz) }
func (s *Subject) SetLanguage(lang string) *Subject { return s.set("lang", lang) }
func (s *Subject) SetIPAddress(ip string) *Subject  { return s.set("ip", ip) }
func (s *Subject) SetUserAgent(ua string) *Subject  { return s.set("ua", ua) }

// SetDomainUserID sets duid, the first-party cookie id.
func (s *Subject) SetDomainUserID(id string) *Subject { return s.set("duid", id) }

// SetNetworkUserID sets tnuid, the collector's third-party cookie id.
func (s *Subject) SetNetworkUserID(id string) *Subject { return s.set("tnuid", id) }

// SetDomainSessionID sets sid.
func (s *Subject) SetDomainSessionID(id string) *Subject { return s.set("sid", id) }

// SetDomainSessionIndex sets vid.
func (s *Subject) SetDomainSessionIndex(n int) *Subject { return s.set("vid", strconv.Itoa(n)) }

// Fields returns a copy of the subject fields.
func (s *Subject) Fields() map[string]string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

// Merge returns the fields of s overlaid with those of other; other wins.
func (s *Subject) Merge(other *Subject) map[string]string {
	out := s.Fields()
	if out == nil {
		out = make(map[string]string)
	}
	for k, v := range other.Fields() {
		out[k] = v
	}
	return out
}

func dimensions(w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}
