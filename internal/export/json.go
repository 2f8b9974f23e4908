package export

import (
	"bytes"
	"encoding/json"
	"sort"
)

// keyRank orders mapping keys the way readers expect them; unknown keys follow alphabetically.
var keyRank = map[string]int{}

func init() {
	for i, k := range []string{
		"Framework", "Id", "ItemId", "Name", "Version", "Provider", "Description",
		"Section", "SubSection", "SubGroup", "Service", "Attributes", "Checks", "Requirements",
	} {
		keyRank[k] = i
	}
}

// MarshalResult renders a decoded mapping as 2-space indented JSON without HTML escaping.
func MarshalResult(v any) ([]byte, error) {
	var compact bytes.Buffer
	if err := writeOrdered(&compact, v); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func writeOrdered(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			ri, iok := keyRank[keys[i]]
			rj, jok := keyRank[keys[j]]
			switch {
			case iok && jok:
				return ri < rj
			case iok != jok:
				return iok
			default:
				return keys[i] < keys[j]
			}
		})
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeOrdered(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeOrdered(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return writeScalar(buf, t)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
