package models

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrIncorrectField    = errors.New("field must be name=value")
	ErrInvalidEntityType = errors.New("invalid entity type")
)

// ParseFields turns name=value pairs into record fields. Values that decode
// as JSON numbers, booleans, null, objects or arrays keep their JSON type;
// anything else is a string.
func ParseFields(s []string) (map[string]any, error) {
	data := make(map[string]any, len(s))
	for _, item := range s {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, ErrIncorrectField
		}
		data[name] = parseValue(value)
	}
	return data, nil
}

func parseValue(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return s
	}
	switch t[0] {
	case '{', '[', 't', 'f', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var v any
		if err := json.Unmarshal([]byte(t), &v); err == nil {
			return v
		}
	}
	return s
}
