package attributes

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// splitPath turns a dotted attribute path into its segments. The empty path
// addresses the root of the tree.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func joinPath(segs []string) string {
	return strings.Join(segs, ".")
}

// lookup walks segs from root. Integer segments index into lists; on a map
// they are ordinary keys.
func lookup(root any, segs []string) (any, bool) {
	cur := root
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// firstListPrefix returns the length of the shortest prefix of segs that
// resolves to a list in root, or -1 when no prefix does.
func firstListPrefix(root any, segs []string) int {
	cur := root
	for i := 0; i < len(segs); i++ {
		if _, ok := cur.([]any); ok {
			return i
		}
		next, ok := lookup(cur, segs[i:i+1])
		if !ok {
			return -1
		}
		cur = next
	}
	if _, ok := cur.([]any); ok {
		return len(segs)
	}
	return -1
}

// assign stores value at segs below node and returns the (possibly new)
// node. Missing intermediate maps are created; scalars in the way are
// replaced by maps.
func assign(node any, segs []string, value any) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}
	seg := segs[0]

	if list, ok := node.([]any); ok {
		i, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("segment %q does not index a list", seg)
		}
		switch {
		case i >= 0 && i < len(list):
			v, err := assign(list[i], segs[1:], value)
			if err != nil {
				return nil, err
			}
			list[i] = v
			return list, nil
		case i == len(list):
			v, err := assign(nil, segs[1:], value)
			if err != nil {
				return nil, err
			}
			return append(list, v), nil
		default:
			return nil, fmt.Errorf("index %d out of range for list of %d", i, len(list))
		}
	}

	m, ok := node.(map[string]any)
	if !ok {
		m = make(map[string]any)
	}
	v, err := assign(m[seg], segs[1:], value)
	if err != nil {
		return nil, err
	}
	m[seg] = v
	return m, nil
}

// remove deletes the value at segs below node. It reports whether
// anything was removed.
func remove(node any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return nil, false
	}
	seg := segs[0]
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[seg]
		if !ok {
			return n, false
		}
		if len(segs) == 1 {
			delete(n, seg)
			return n, true
		}
		v, removed := remove(child, segs[1:])
		n[seg] = v
		return n, removed
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(n) {
			return n, false
		}
		if len(segs) == 1 {
			return append(n[:i:i], n[i+1:]...), true
		}
		v, removed := remove(n[i], segs[1:])
		n[i] = v
		return n, removed
	}
	return node, false
}

// normalize converts arbitrary Go maps and slices into the map[string]any
// and []any shapes the store works with.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case string, bool, int, int64, float64:
		return t
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

// deepCopy copies maps and lists so callers never alias store internals.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	}
	return v
}

// merge overlays src onto dst. Maps merge key by key; lists and scalars
// in src replace whatever dst held.
func merge(dst, src any) any {
	sm, ok := src.(map[string]any)
	if !ok {
		return deepCopy(src)
	}
	dm, ok := dst.(map[string]any)
	if !ok {
		return deepCopy(sm)
	}
	for k, v := range sm {
		dm[k] = merge(dm[k], v)
	}
	return dm
}

// Merge overlays the documents in order onto a fresh tree using the same
// rules as tier resolution.
func Merge(docs ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, d := range docs {
		if d == nil {
			continue
		}
		out = merge(out, normalize(d)).(map[string]any)
	}
	return out
}
