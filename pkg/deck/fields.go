package deck

import (
	"encoding/json"
	"maps"
	"reflect"
	"strings"
	"sync"
)

// Extra holds JSON object members that the model does not name. They are
// written back unchanged on marshal.
type Extra map[string]json.RawMessage

var fieldNameCache sync.Map // reflect.Type -> []string

// marshalObject encodes known (a tag-annotated struct without custom
// marshalers) and overlays it on extra. Named members win over extras.
func marshalObject(known any, extra Extra) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return data, nil
	}

	var named map[string]json.RawMessage
	if err := json.Unmarshal(data, &named); err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(named)+len(extra))
	maps.Copy(merged, extra)
	maps.Copy(merged, named)
	return json.Marshal(merged)
}

// unmarshalObject decodes data into known and returns every member whose
// name is not one of known's JSON field names.
func unmarshalObject(data []byte, known any) (Extra, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	for _, name := range jsonFieldNames(reflect.TypeOf(known).Elem()) {
		delete(members, name)
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members, nil
}

func jsonFieldNames(t reflect.Type) []string {
	if cached, ok := fieldNameCache.Load(t); ok {
		return cached.([]string)
	}

	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}
		names = append(names, name)
	}
	fieldNameCache.Store(t, names)
	return names
}
