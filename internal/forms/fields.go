package forms

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseFields parses --field flag values into a JSON object payload.
// Format: "name=value" or "name=val1,val2" for a list. Values that are
// valid JSON scalars (numbers, true, false, null) keep their type; anything
// else becomes a string.
func ParseFields(fields []string) ([]byte, error) {
	result := make(map[string]any, len(fields))

	for _, s := range fields {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --field format %q: expected name=value", s)
		}

		name := strings.TrimSpace(parts[0])
		value := parts[1]

		if name == "" {
			return nil, fmt.Errorf("invalid --field format %q: empty name", s)
		}

		if strings.Contains(value, ",") {
			values := strings.Split(value, ",")
			list := make([]any, len(values))
			for i := range values {
				list[i] = scalar(strings.TrimSpace(values[i]))
			}
			result[name] = list
		} else {
			result[name] = scalar(value)
		}
	}

	return json.Marshal(result)
}

func scalar(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		switch v.(type) {
		case float64, bool, nil:
			return json.RawMessage(s)
		}
	}
	return s
}
