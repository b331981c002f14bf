package firebase

import "strings"

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// applyPut writes data at path below root and returns the new root.
// A nil value deletes, and maps left empty collapse to nil, the way the
// database never stores empty objects.
func applyPut(root any, path string, data any) any {
	return put(root, splitPath(path), data)
}

func put(node any, segs []string, data any) any {
	if len(segs) == 0 {
		return data
	}
	m, _ := node.(map[string]any)
	if m == nil {
		if data == nil {
			return node
		}
		m = make(map[string]any)
	}
	child := put(m[segs[0]], segs[1:], data)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// applyPatch writes every key of data as a child of path.
func applyPatch(root any, path string, data any) any {
	fields, ok := data.(map[string]any)
	if !ok {
		return root
	}
	for k, v := range fields {
		root = put(root, append(splitPath(path), splitPath(k)...), v)
	}
	return root
}
