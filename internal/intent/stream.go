package intent

import (
	"context"
	"strings"

	"github.com/mecaparts/knowledge-gateway/internal/retrieval"
)

// FrameType is the kind of one streaming frame.
type FrameType string

const (
	FrameMetadata FrameType = "metadata"
	FrameChunk    FrameType = "chunk"
	FrameSources  FrameType = "sources"
	FrameDone     FrameType = "done"
	FrameError    FrameType = "error"
)

// Frame is one element of a streamed answer.
type Frame struct {
	Type    FrameType             `json:"type"`
	Intent  *Classification       `json:"intent,omitempty"`
	Text    string                `json:"text,omitempty"`
	Sources []retrieval.SearchHit `json:"sources,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// chunkWords is how many words each chunk frame carries.
const chunkWords = 6

// Replay turns a computed answer into an ordered frame stream: one
// metadata frame, the answer in word-delimited chunks, the sources, then
// the done frame. The channel is closed after the terminal frame. A
// canceled context stops the replay without a terminal frame.
func Replay(ctx context.Context, c Classification, answer *retrieval.AnswerResponse) <-chan Frame {
	frames := make(chan Frame)
	go func() {
		defer close(frames)
		if !send(ctx, frames, Frame{Type: FrameMetadata, Intent: &c}) {
			return
		}
		words := strings.Fields(answer.Answer)
		for start := 0; start < len(words); start += chunkWords {
			end := start + chunkWords
			if end > len(words) {
				end = len(words)
			}
			text := strings.Join(words[start:end], " ")
			if end < len(words) {
				text += " "
			}
			if !send(ctx, frames, Frame{Type: FrameChunk, Text: text}) {
				return
			}
		}
		if len(answer.Sources) > 0 {
			if !send(ctx, frames, Frame{Type: FrameSources, Sources: answer.Sources}) {
				return
			}
		}
		send(ctx, frames, Frame{Type: FrameDone})
	}()
	return frames
}

// ReplayError produces a single-frame stream carrying the failure. The
// error frame is terminal.
func ReplayError(message string) <-chan Frame {
	frames := make(chan Frame, 1)
	frames <- Frame{Type: FrameError, Error: message}
	close(frames)
	return frames
}

func send(ctx context.Context, frames chan<- Frame, f Frame) bool {
	select {
	case frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
