package scanning

import (
	"encoding/json"
	"strings"
)

// ExtractObject pulls the first balanced JSON object out of a model reply.
//
// The reply is expected to be pure JSON, but models routinely wrap it in
// markdown fences or prose. The extraction slices from the first "{" to the
// last "}" and strict-parses that span; if the span does not parse, the whole
// text is tried as JSON. When both attempts fail the reply is unparsable and
// the caller gets the raw text back inside the error.
func ExtractObject(text string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first != -1 && last > first {
		span := cleaned[first : last+1]
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(span), &obj); err == nil {
			return json.RawMessage(span), nil
		}
	}

	// Fall back to parsing the entire reply as a JSON value.
	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil && v != nil {
		return json.RawMessage(cleaned), nil
	}

	return nil, &UnparsableError{Text: text}
}
