// Package decode implements incremental decoders for the two stream wire
// formats spoken by correction backends.
//
// [SSE] handles OpenAI-style chat-completion streams: "data:"-prefixed
// lines carrying JSON delta fragments, terminated by a "[DONE]" sentinel.
// [NDJSON] handles Ollama's generate API: one JSON object per line with a
// "response" field.
//
// Both decoders are push-based. Callers feed raw network chunks via
// Consume as they arrive; the decoder buffers partial lines internally and
// returns the text fragments completed by each chunk. Finalize flushes any
// unterminated trailing line. Malformed lines are skipped silently in both
// formats — a stuttering proxy or a keep-alive comment must never abort an
// otherwise healthy stream.
package decode

import (
	"bytes"
	"encoding/json"
	"strings"
)

// lineSplitter accumulates raw bytes and yields complete lines.
type lineSplitter struct {
	buf []byte
}

// push appends chunk and returns all newline-terminated lines now complete,
// with line endings stripped.
func (l *lineSplitter) push(chunk []byte) []string {
	l.buf = append(l.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			return lines
		}
		line := string(bytes.TrimSuffix(l.buf[:i], []byte{'\r'}))
		l.buf = l.buf[i+1:]
		lines = append(lines, line)
	}
}

// rest returns the unterminated remainder and clears the buffer.
func (l *lineSplitter) rest() string {
	if len(l.buf) == 0 {
		return ""
	}
	line := string(bytes.TrimSuffix(l.buf, []byte{'\r'}))
	l.buf = nil
	return line
}

// SSE decodes chat-completion server-sent-event streams.
//
// Only "data:" lines carry payload; event names, comments, and blank
// separator lines are ignored. The "[DONE]" sentinel marks the end of the
// stream and produces no fragment. Every other data payload is parsed as a
// JSON chunk and its choices[0].delta.content is returned; payloads that do
// not parse, or parse to an empty delta, are dropped.
type SSE struct {
	lines lineSplitter
}

// sseChunk is the subset of the chat-completion stream payload we consume.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Consume feeds a raw network chunk and returns the content fragments it
// completed, in order.
func (d *SSE) Consume(chunk []byte) []string {
	var out []string
	for _, line := range d.lines.push(chunk) {
		if frag, ok := d.decodeLine(line); ok {
			out = append(out, frag)
		}
	}
	return out
}

// Finalize flushes a trailing unterminated line. Servers normally end
// streams on a line boundary, but a truncated connection may not.
func (d *SSE) Finalize() []string {
	if frag, ok := d.decodeLine(d.lines.rest()); ok {
		return []string{frag}
	}
	return nil
}

func (d *SSE) decodeLine(line string) (string, bool) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "[DONE]" {
		return "", false
	}

	var c sseChunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return "", false
	}
	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == "" {
		return "", false
	}
	return c.Choices[0].Delta.Content, true
}

// NDJSON decodes Ollama generate-API streams: one JSON object per line
// with a "response" text field and a "done" flag on the final object.
type NDJSON struct {
	lines lineSplitter
	done  bool
}

// ndjsonChunk is the subset of the generate-API payload we consume.
type ndjsonChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Consume feeds a raw network chunk and returns the response fragments it
// completed, in order.
func (d *NDJSON) Consume(chunk []byte) []string {
	var out []string
	for _, line := range d.lines.push(chunk) {
		if frag, ok := d.decodeLine(line); ok {
			out = append(out, frag)
		}
	}
	return out
}

// Finalize flushes a trailing unterminated line.
func (d *NDJSON) Finalize() []string {
	if frag, ok := d.decodeLine(d.lines.rest()); ok {
		return []string{frag}
	}
	return nil
}

// Done reports whether the stream's final object has been seen.
func (d *NDJSON) Done() bool {
	return d.done
}

func (d *NDJSON) decodeLine(line string) (string, bool) {
	if strings.TrimSpace(line) == "" {
		return "", false
	}

	var c ndjsonChunk
	if err := json.Unmarshal([]byte(line), &c); err != nil {
		return "", false
	}
	if c.Done {
		d.done = true
	}
	return c.Response, c.Response != ""
}
