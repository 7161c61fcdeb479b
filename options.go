package xtrack

// TrackOption adds optional data to a single Track call.
type TrackOption func(*trackOptions)

type trackOptions struct {
	contexts  []SelfDescribingJSON
	subject   *Subject
	page      *Page
	timestamp *Timestamp
}

// WithContext attaches custom contexts to the event.
func WithContext(contexts ...SelfDescribingJSON) TrackOption {
	return func(o *trackOptions) { o.contexts = append(o.contexts, contexts...) }
}

// WithSubject overlays s on the tracker subject for this event only.
func WithSubject(s *Subject) TrackOption {
	return func(o *trackOptions) { o.subject = s }
}

// WithPage attaches page fields to the event.
func WithPage(p Page) TrackOption {
	return func(o *trackOptions) { o.page = &p }
}

// WithTimestamp overrides the device timestamp. A ttm timestamp replaces
// dtm; the two are never sent together.
func WithTimestamp(ts Timestamp) TrackOption {
	return func(o *trackOptions) { o.timestamp = &ts }
}

func collectOptions(opts []TrackOption) trackOptions {
	var o trackOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
