package xtrack

// Page describes the page an event happened on.
type Page struct {
	URL      string
	Title    string
	Referrer string
}

// addTo adds the page fields the event did not set itself.
func (p Page) addTo(pl *Payload) {
	for _, f := range [...]struct{ key, value string }{
		{"url", p.URL},
		{"page", p.Title},
		{"refr", p.Referrer},
	} {
		if _, ok := pl.Get(f.key); !ok {
			pl.Add(f.key, f.value)
		}
	}
}
