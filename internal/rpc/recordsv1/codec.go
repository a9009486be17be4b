package recordsv1

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// NewStruct wraps structpb.NewStruct with a contextual error.
func NewStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// String returns a string field or "".
func String(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// Object returns a nested struct field as a map, or nil.
func Object(s *structpb.Struct, key string) map[string]any {
	if s == nil {
		return nil
	}
	v, ok := s.GetFields()[key]
	if !ok || v.GetStructValue() == nil {
		return nil
	}
	return v.GetStructValue().AsMap()
}

// Objects returns a list-of-structs field as maps. Non-object items are
// skipped.
func Objects(s *structpb.Struct, key string) []map[string]any {
	if s == nil {
		return nil
	}
	v, ok := s.GetFields()[key]
	if !ok || v.GetListValue() == nil {
		return nil
	}
	var out []map[string]any
	for _, item := range v.GetListValue().GetValues() {
		if st := item.GetStructValue(); st != nil {
			out = append(out, st.AsMap())
		}
	}
	return out
}
