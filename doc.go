// Package xtrack tracks analytics events and delivers them to a Snowplow
// compatible collector.
//
// A Tracker turns page views, structured events, self-describing events and
// ecommerce transactions into Payloads and inputs each one into its
// emitters. An Emitter buffers payloads and sends them in batches over a
// Transport: one GET request per event, or one POST request per batch.
//
//	em, err := xtrack.NewEmitter("collector.example.com", xtrack.Config{Method: xtrack.MethodPost})
//	if err != nil {
//		return err
//	}
//	tracker, err := xtrack.NewTracker(xtrack.TrackerConfig{
//		Namespace: "shop",
//		AppID:     "web",
//		Emitters:  []xtrack.API{em},
//	})
//	if err != nil {
//		return err
//	}
//	defer tracker.Close(ctx)
//
//	_ = tracker.TrackPageView(xtrack.PageView{URL: "https://shop.example.com/"})
//
// NewAsyncEmitter sends batches on a pool of worker goroutines instead of
// the goroutine that filled the buffer. Other destinations plug in through
// RegisterTransport; see the adapter packages.
package xtrack
