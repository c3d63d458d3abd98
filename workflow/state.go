package workflow

import "encoding/json"

// Before/after states are stored as JSON objects of canonical field -> value.

func DecodeState(raw []byte) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	var state map[string]string
	if err := json.Unmarshal(raw, &state); err != nil {
		return map[string]string{}
	}
	return state
}

func EncodeState(state map[string]string) []byte {
	b, _ := json.Marshal(state)
	return b
}

// DetectStaleFields returns the before-state fields whose live value no longer
// matches the snapshot. Any non-empty result means the resource changed since
// the fix was proposed and the fix must not be applied.
func DetectStaleFields(before map[string]string, live map[string]string) []string {
	var stale []string
	for field, expected := range before {
		if live[field] != expected {
			stale = append(stale, field)
		}
	}
	return stale
}

func stateFields(state map[string]string) []string {
	fields := make([]string, 0, len(state))
	for f := range state {
		fields = append(fields, f)
	}
	return fields
}
