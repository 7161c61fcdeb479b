package xtrack

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/trickstertwo/xclock"
)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Namespace string
	AppID     string
	// EncodeBase64 selects cx/ue_px (base64) over co/ue_pr (plain JSON).
	// Nil means true.
	EncodeBase64 *bool
	// Subject defaults to NewSubject().
	Subject  *Subject
	Emitters []API
	// Clock supplies dtm. Defaults to xclock.Default().
	Clock  xclock.Clock
	Logger *zerolog.Logger
}

// Tracker builds event payloads and hands each one to every emitter.
type Tracker struct {
	namespace    string
	appID        string
	encodeBase64 bool
	clock        xclock.Clock
	logger       zerolog.Logger
	newEventID   func() string

	mu       sync.RWMutex
	subject  *Subject
	emitters []API
}

// NewTracker validates cfg and returns a Tracker.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if len(cfg.Emitters) == 0 {
		return nil, ErrNoEmitters
	}
	for _, e := range cfg.Emitters {
		if e == nil {
			return nil, ErrNoEmitters
		}
	}
	t := &Tracker{
		namespace:    cfg.Namespace,
		appID:        cfg.AppID,
		encodeBase64: true,
		clock:        cfg.Clock,
		newEventID:   uuid.NewString,
		subject:      cfg.Subject,
		emitters:     append([]API(nil), cfg.Emitters...),
	}
	if cfg.EncodeBase64 != nil {
		t.encodeBase64 = *cfg.EncodeBase64
	}
	if t.clock == nil {
		t.clock = xclock.Default()
	}
	if t.subject == nil {
		t.subject = NewSubject()
	}
	if cfg.Logger != nil {
		t.logger = *cfg.Logger
	} else {
		t.logger = defaultLogger()
	}
	return t, nil
}

// Namespace returns tna.
func (t *Tracker) Namespace() string { return t.namespace }

// AppID returns aid.
func (t *Tracker) AppID() string { return t.appID }

// Subject returns the tracker subject. Setters on it affect later events.
func (t *Tracker) Subject() *Subject {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.subject
}

// SetSubject replaces the tracker subject.
func (t *Tracker) SetSubject(s *Subject) {
	if s == nil {
		s = NewSubject()
	}
	t.mu.Lock()
	t.subject = s
	t.mu.Unlock()
}

// AddEmitter registers another emitter for subsequent events.
func (t *Tracker) AddEmitter(e API) {
	if e == nil {
		return
	}
	t.mu.Lock()
	t.emitters = append(t.emitters, e)
	t.mu.Unlock()
}

// Emitters returns the registered emitters.
func (t *Tracker) Emitters() []API {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]API(nil), t.emitters...)
}

// TrackPageView tracks a page view.
func (t *Tracker) TrackPageView(ev PageView, opts ...TrackOption) error {
	p, err := ev.payload()
	if err != nil {
		return err
	}
	o := collectOptions(opts)
	return t.track(p, o, t.eventTimestamp(o))
}

// TrackScreenView tracks a screen view as a self-describing event.
func (t *Tracker) TrackScreenView(ev ScreenView, opts ...TrackOption) error {
	sd, err := ev.selfDescribing()
	if err != nil {
		return err
	}
	return t.TrackSelfDescribingEvent(sd, opts...)
}

// TrackStructEvent tracks a structured event.
func (t *Tracker) TrackStructEvent(ev StructEvent, opts ...TrackOption) error {
	p, err := ev.payload()
	if err != nil {
		return err
	}
	o := collectOptions(opts)
	return t.track(p, o, t.eventTimestamp(o))
}

// TrackSelfDescribingEvent tracks a custom event wrapped in the
// unstruct_event schema.
func (t *Tracker) TrackSelfDescribingEvent(ev SelfDescribing, opts ...TrackOption) error {
	p, err := ev.payload(t.encodeBase64)
	if err != nil {
		return err
	}
	o := collectOptions(opts)
	return t.track(p, o, t.eventTimestamp(o))
}

// TrackEcommerceTransaction tracks the transaction followed by one event
// per item. Items share the transaction's order id, currency, timestamp,
// contexts, subject and page. The events are submitted independently.
func (t *Tracker) TrackEcommerceTransaction(ev Transaction, opts ...TrackOption) error {
	p, err := ev.payload()
	if err != nil {
		return err
	}
	o := collectOptions(opts)
	ts := t.eventTimestamp(o)
	if err := t.track(p, o, ts); err != nil {
		return err
	}
	for _, item := range ev.Items {
		if err := t.track(ev.itemPayload(item), o, ts); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every emitter.
func (t *Tracker) Flush(async bool) {
	for _, e := range t.Emitters() {
		e.Flush(async)
	}
}

// Close closes every emitter and returns their errors combined.
func (t *Tracker) Close(ctx context.Context) error {
	var result *multierror.Error
	for _, e := range t.Emitters() {
		if err := e.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (t *Tracker) eventTimestamp(o trackOptions) Timestamp {
	if o.timestamp != nil {
		return *o.timestamp
	}
	return TimestampFromTime(DeviceTimestampType, t.clock.Now())
}

// track completes p with the tracker-level fields and inputs it into every
// emitter.
func (t *Tracker) track(p *Payload, o trackOptions, ts Timestamp) error {
	p.Add("tv", TrackerVersion())
	p.Add("tna", t.namespace)
	p.Add("aid", t.appID)

	subject := t.Subject().Merge(o.subject)
	keys := make([]string, 0, len(subject))
	for k := range subject {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.Add(k, subject[k])
	}

	if o.page != nil {
		o.page.addTo(p)
	}
	if len(o.contexts) > 0 {
		if err := p.AddJSON(contextEnvelope(o.contexts), t.encodeBase64, "cx", "co"); err != nil {
			return err
		}
	}
	ts.addTo(p)
	p.Add("eid", t.newEventID())

	emitters := t.Emitters()
	t.logger.Debug().Str("e", p.GetString("e")).Str("eid", p.GetString("eid")).Int("emitters", len(emitters)).Msg("xtrack: tracking event")
	for _, e := range emitters {
		e.Input(p)
	}
	return nil
}
