package xtrack

// Iglu schema URIs understood by the collector.
const (
	SchemaPayloadData   = "iglu:com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-4"
	SchemaContexts      = "iglu:com.snowplowanalytics.snowplow/contexts/jsonschema/1-0-1"
	SchemaUnstructEvent = "iglu:com.snowplowanalytics.snowplow/unstruct_event/jsonschema/1-0-0"
	SchemaScreenView    = "iglu:com.snowplowanalytics.snowplow/screen_view/jsonschema/1-0-0"
)

// SelfDescribingJSON pairs a JSON value with the schema that describes it.
type SelfDescribingJSON struct {
	Schema string `json:"schema"`
	Data   any    `json:"data"`
}

// NewSelfDescribingJSON returns a {schema, data} envelope.
func NewSelfDescribingJSON(schema string, data any) SelfDescribingJSON {
	return SelfDescribingJSON{Schema: schema, Data: data}
}

// contextEnvelope wraps custom contexts in the contexts schema.
func contextEnvelope(contexts []SelfDescribingJSON) SelfDescribingJSON {
	return NewSelfDescribingJSON(SchemaContexts, contexts)
}
