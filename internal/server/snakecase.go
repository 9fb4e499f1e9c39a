package server

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// snakeCaseKeys rewrites every object key in a JSON document to snake_case
// and strips a single leading underscore. Arrays and primitive values pass
// through untouched, and the transform is idempotent: a document already in
// snake_case comes back byte-for-byte identical in key content.
func snakeCaseKeys(data []byte) []byte {
	v := gjson.ParseBytes(data)
	if !v.IsObject() && !v.IsArray() {
		return data
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + 16)
	writeSnakeValue(&buf, v)
	return buf.Bytes()
}

func writeSnakeValue(buf *bytes.Buffer, v gjson.Result) {
	switch {
	case v.IsObject():
		buf.WriteByte('{')
		first := true
		v.ForEach(func(k, val gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			buf.WriteString(strconv.Quote(snakeKey(k.String())))
			buf.WriteByte(':')
			writeSnakeValue(buf, val)
			return true
		})
		buf.WriteByte('}')
	case v.IsArray():
		buf.WriteByte('[')
		first := true
		v.ForEach(func(_, val gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeSnakeValue(buf, val)
			return true
		})
		buf.WriteByte(']')
	default:
		// Raw preserves the original encoding of strings and numbers.
		buf.WriteString(v.Raw)
	}
}

// snakeKey converts a camelCase key to snake_case. Keys without uppercase
// letters are returned unchanged, which makes the edge transform idempotent.
func snakeKey(k string) string {
	k = strings.TrimPrefix(k, "_")
	upper := false
	for i := 0; i < len(k); i++ {
		if k[i] >= 'A' && k[i] <= 'Z' {
			upper = true
			break
		}
	}
	if !upper {
		return k
	}
	var b strings.Builder
	b.Grow(len(k) + 4)
	for i := 0; i < len(k); i++ {
		c := k[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 && k[i-1] != '_' {
				b.WriteByte('_')
			}
			b.WriteByte(c - 'A' + 'a')
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}
