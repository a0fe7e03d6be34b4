package invalidation

import (
	"encoding/json"
)

// Event is one cache-invalidation message: a variant tag plus the variant's
// string-valued payload fields. Events serialize as a flat JSON object with
// the tag under "type".
type Event struct {
	Type   string
	Fields map[string]string
}

// Field returns the named payload field, or "" if absent.
func (e Event) Field(name string) string {
	return e.Fields[name]
}

func (e Event) MarshalJSON() ([]byte, error) {
	obj := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		obj[k] = v
	}
	obj["type"] = e.Type
	return json.Marshal(obj)
}

// Schema is the closed set of event variants accepted on one channel: a map
// from variant tag to the exact payload fields that variant carries.
type Schema map[string][]string

// Validate checks raw against the schema and returns the decoded event.
//
// The payload must be a JSON object whose "type" is a declared variant tag,
// carrying exactly that variant's declared fields, each a JSON string.
// Extra keys are rejected outright: an old consumer must fail closed on a
// widened schema rather than act on a half-understood event.
func (s Schema) Validate(raw []byte) (Event, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Event{}, false
	}
	var tag string
	if err := json.Unmarshal(obj["type"], &tag); err != nil {
		return Event{}, false
	}
	fields, ok := s[tag]
	if !ok {
		return Event{}, false
	}
	if len(obj) != len(fields)+1 {
		return Event{}, false
	}
	ev := Event{Type: tag}
	if len(fields) > 0 {
		ev.Fields = make(map[string]string, len(fields))
	}
	for _, name := range fields {
		rawVal, ok := obj[name]
		if !ok {
			return Event{}, false
		}
		var val string
		if err := json.Unmarshal(rawVal, &val); err != nil {
			return Event{}, false
		}
		ev.Fields[name] = val
	}
	return ev, true
}
