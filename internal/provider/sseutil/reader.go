// Package sseutil holds the SSE plumbing shared by provider adapters: line
// scanning, frame parsing and OpenAI-format chunk builders.
package sseutil

import (
	"bufio"
	"io"
	"strings"
)

// maxLineBytes caps one SSE line. Chunks carrying base64 payloads can run
// long, so the scanner buffer grows well past the bufio default.
const maxLineBytes = 64 * 1024

// NewScanner wraps r in a line scanner sized for SSE payloads. Each Scan
// yields one line without its trailing newline.
func NewScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), maxLineBytes)
	return s
}

// ParseSSELine splits one SSE line into its field name and value. Only the
// "event" and "data" fields matter to the adapters; blank lines, comments
// and every other field report ok=false.
func ParseSSELine(line string) (event, data string, ok bool) {
	if line == "" || line[0] == ':' {
		return "", "", false
	}

	field, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	// A single space after the colon is part of the framing, not the value.
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "event":
		return value, "", true
	case "data":
		return "", value, true
	}
	return "", "", false
}
