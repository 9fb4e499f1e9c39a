package gateway

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// ContentText extracts the plain text of a message content value, which is
// either a JSON string or an array of content parts. Non-text parts (images,
// audio) contribute nothing.
func ContentText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	v := gjson.ParseBytes(content)
	switch v.Type {
	case gjson.String:
		return v.String()
	case gjson.JSON:
		if !v.IsArray() {
			return ""
		}
		var b strings.Builder
		for _, part := range v.Array() {
			switch part.Get("type").String() {
			case "text", "input_text":
				b.WriteString(part.Get("text").String())
			}
		}
		return b.String()
	default:
		return ""
	}
}

// StringContent wraps plain text as a JSON string content value.
func StringContent(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// ResponsesInputText flattens a responses-protocol input (string or message
// array with typed parts) into plain text.
func ResponsesInputText(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	v := gjson.ParseBytes(input)
	if v.Type == gjson.String {
		return v.String()
	}
	if !v.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, msg := range v.Array() {
		content := msg.Get("content")
		if content.Type == gjson.String {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(content.String())
			continue
		}
		for _, part := range content.Array() {
			switch part.Get("type").String() {
			case "input_text", "text", "output_text":
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(part.Get("text").String())
			}
		}
	}
	return b.String()
}
