package main

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/drpcorg/rtcdoc/value"
)

// parseValue reads a REPL argument as JSON; anything that is not JSON
// is taken as a plain string. Integral numbers become int64, the rest
// float64. A {"$counter": n} object makes a counter.
func parseValue(arg string) (any, error) {
	arg = strings.TrimSpace(arg)
	dec := json.NewDecoder(strings.NewReader(arg))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil || dec.More() {
		return arg, nil
	}
	return fromJSON(parsed), nil
}

func fromJSON(x any) any {
	switch t := x.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = fromJSON(t[i])
		}
		return t
	case map[string]any:
		if n, ok := t["$counter"].(json.Number); ok && len(t) == 1 {
			if i, err := n.Int64(); err == nil {
				return value.Counter(i)
			}
		}
		for k := range t {
			t[k] = fromJSON(t[k])
		}
		return t
	}
	return x
}

// renderValue prints a document value as indented JSON with sorted keys.
func renderValue(x any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toJSON(x)); err != nil {
		return err.Error()
	}
	return strings.TrimRight(buf.String(), "\n")
}

func toJSON(x any) any {
	switch t := x.(type) {
	case value.Counter:
		return map[string]any{"$counter": int64(t)}
	case []any:
		ret := make([]any, len(t))
		for i, e := range t {
			ret[i] = toJSON(e)
		}
		return ret
	case map[string]any:
		ret := make(map[string]any, len(t))
		for k, e := range t {
			ret[k] = toJSON(e)
		}
		return ret
	}
	return x
}
