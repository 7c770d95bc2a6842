package types

// Event represents a typed event emitted by a committed invocation.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute value, or "" when absent.
func (e Event) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// EventType implements events.Event.
func (e Event) EventType() string { return e.Type }
