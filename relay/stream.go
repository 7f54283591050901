package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const dataPrefix = "data: "

// doneSentinel is the provider's explicit end-of-stream marker. It is a
// signal, never content.
const doneSentinel = "[DONE]"

// StreamDecoder converts the provider's raw streamed bytes into a sequence of
// plain-text content deltas plus one accumulated final string. It is a
// single-pass transducer: lines are framed on newlines with any trailing
// partial line carried to the next read, so the output is identical for
// every re-chunking of the same byte stream.
type StreamDecoder struct {
	reader *bufio.Reader
}

// NewStreamDecoder wraps an upstream response body.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	return &StreamDecoder{reader: bufio.NewReader(r)}
}

// Run consumes the stream until EOF. onDelta is invoked once per non-empty
// content delta, in order, while the final string is being built. The
// returned string is the canonical assistant content for persistence; it is
// valid even when an error is returned. Malformed frame lines are dropped
// silently, as expected for lines split across chunk boundaries upstream.
func (d *StreamDecoder) Run(ctx context.Context, onDelta func(delta string) error) (string, error) {
	var content strings.Builder

	for {
		select {
		case <-ctx.Done():
			return content.String(), ctx.Err()
		default:
		}

		line, err := d.reader.ReadString('\n')
		if len(line) > 0 {
			if delta := parseLine(line); delta != "" {
				content.WriteString(delta)
				if cbErr := onDelta(delta); cbErr != nil {
					return content.String(), cbErr
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return content.String(), nil
			}
			return content.String(), fmt.Errorf("failed to read stream: %w", err)
		}
	}
}

// parseLine extracts the content delta from one SSE line, or "" when the
// line carries none.
func parseLine(line string) string {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return ""
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if data == doneSentinel {
		return ""
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Incomplete-frame noise, not an error
		return ""
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}
