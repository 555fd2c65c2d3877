package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/roach88/mbrel/internal/ir"
)

// Object is a host object that knows its own id.
type Object interface {
	ObjectID() int64
}

// resolveItems turns the value of a "from"/"to" key into a set of ids.
// The value may be one id, one host object, or a list of either. Ids come
// first; a list whose first element is not an id is read as host objects
// and the id is taken from the field named by objectType.IDField.
// Duplicates are dropped; first occurrence order is kept.
func resolveItems(raw any, objectType ir.ObjectType, field string) ([]int64, error) {
	values := asList(raw)

	ids := make([]int64, 0, len(values))
	seen := make(map[int64]struct{}, len(values))
	for i, v := range values {
		id, err := itemID(v, objectType)
		if err != nil {
			return nil, specErrorf(CodeInvalidItems, fmt.Sprintf("%s.%d", field, i), "%v", err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// asList wraps a scalar or map into a one-element list and passes slices
// through. nil becomes the empty list.
func asList(raw any) []any {
	if raw == nil {
		return []any{}
	}
	switch v := raw.(type) {
	case []any:
		return v
	case []int64:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	case []int:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{raw}
}

// itemID extracts one id from a raw id or a host object.
func itemID(v any, objectType ir.ObjectType) (int64, error) {
	switch obj := v.(type) {
	case Object:
		return checkID(obj.ObjectID())
	case map[string]any:
		idVal, ok := obj[objectType.IDField()]
		if !ok {
			return 0, fmt.Errorf("object has no %q field", objectType.IDField())
		}
		return scalarID(idVal)
	}
	return scalarID(v)
}

// scalarID converts a numeric value (or numeric string) to an id.
func scalarID(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return checkID(int64(n))
	case int8:
		return checkID(int64(n))
	case int16:
		return checkID(int64(n))
	case int32:
		return checkID(int64(n))
	case int64:
		return checkID(n)
	case uint:
		return checkUnsigned(uint64(n))
	case uint8:
		return checkUnsigned(uint64(n))
	case uint16:
		return checkUnsigned(uint64(n))
	case uint32:
		return checkUnsigned(uint64(n))
	case uint64:
		return checkUnsigned(n)
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("id %v is not an integer", n)
		}
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("id %v is out of range", n)
		}
		return checkID(int64(n))
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("id %q is not an integer", n.String())
		}
		return checkID(parsed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("id %q is not numeric", n)
		}
		return checkID(parsed)
	default:
		return 0, fmt.Errorf("unsupported item type %T", v)
	}
}

func checkID(id int64) (int64, error) {
	if id < 0 {
		return 0, fmt.Errorf("id %d is negative", id)
	}
	return id, nil
}

func checkUnsigned(id uint64) (int64, error) {
	if id > math.MaxInt64 {
		return 0, fmt.Errorf("id %d is out of range", id)
	}
	return int64(id), nil
}
