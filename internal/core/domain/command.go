package domain

// Command is one concrete operation request produced from a user turn.
type Command struct {
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params,omitempty"`
	Rule      string         `json:"rule"` // name of the classifier rule that produced it

	// Missing names a required parameter the text did not provide. A command
	// with Missing set is a clarification request and never reaches a backend.
	Missing string `json:"missing,omitempty"`

	// Defaulted is set when no rule matched and the command fell back to the
	// summary operation.
	Defaulted bool `json:"defaulted,omitempty"`
}

// NeedsClarification reports whether the command lacks a required parameter.
func (c Command) NeedsClarification() bool {
	return c.Missing != ""
}

// StringParam returns params[key] when it is a non-empty string.
func (c Command) StringParam(key string) string {
	return StringParam(c.Params, key)
}

// StringParam reads a string parameter from a loosely typed map.
func StringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return s
}

// StringSliceParam reads a list parameter. It accepts []string, []any of
// strings (decoded JSON) and a single string.
func StringSliceParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// IntParam reads an integer parameter that may have arrived as a JSON number.
func IntParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
