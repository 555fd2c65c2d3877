package clause

import "strconv"

// Distribute partitions rows onto the anchors they were connected
// through. origin returns the OriginField value of a row and false when
// the row carries none.
//
// Every anchor gets an entry, empty when nothing connected to it. Rows
// keep their relative order within each anchor; rows whose origin is not
// an anchor are dropped.
func Distribute[T any](anchors []int64, rows []T, origin func(T) (int64, bool)) map[int64][]T {
	out := make(map[int64][]T, len(anchors))
	for _, a := range anchors {
		if _, ok := out[a]; !ok {
			out[a] = []T{}
		}
	}
	for _, row := range rows {
		id, ok := origin(row)
		if !ok {
			continue
		}
		if list, known := out[id]; known {
			out[id] = append(list, row)
		}
	}
	return out
}

// DistributeMaps is Distribute for rows decoded as maps, reading the
// origin from the marker key.
func DistributeMaps(anchors []int64, rows []map[string]any, marker string) map[int64][]map[string]any {
	return Distribute(anchors, rows, func(row map[string]any) (int64, bool) {
		switch v := row[marker].(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		case float64:
			return int64(v), true
		case []byte:
			return parseID(string(v))
		case string:
			return parseID(v)
		default:
			return 0, false
		}
	})
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}
