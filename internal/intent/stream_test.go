package intent

import (
	"context"
	"strings"
	"testing"

	"github.com/mecaparts/knowledge-gateway/internal/retrieval"
)

func collect(frames <-chan Frame) []Frame {
	var out []Frame
	for f := range frames {
		out = append(out, f)
	}
	return out
}

func TestReplayFrameOrder(t *testing.T) {
	answer := &retrieval.AnswerResponse{
		Answer: "Les disques ventilés dissipent mieux la chaleur que les disques pleins sur freinages répétés.",
		Sources: []retrieval.SearchHit{
			{Source: "gammes/disques-de-frein.md", Score: 0.91},
		},
	}
	frames := collect(Replay(context.Background(), Classify("différence disque plein ventilé"), answer))

	if len(frames) < 4 {
		t.Fatalf("got %d frames, want metadata + chunks + sources + done", len(frames))
	}
	if frames[0].Type != FrameMetadata || frames[0].Intent == nil {
		t.Fatalf("first frame = %+v, want metadata with intent", frames[0])
	}
	if frames[0].Intent.UserIntent != IntentCompare {
		t.Fatalf("metadata intent = %s, want compare", frames[0].Intent.UserIntent)
	}

	var rebuilt strings.Builder
	for _, f := range frames[1 : len(frames)-2] {
		if f.Type != FrameChunk {
			t.Fatalf("middle frame type = %s, want chunk", f.Type)
		}
		rebuilt.WriteString(f.Text)
	}
	if got := rebuilt.String(); got != answer.Answer {
		t.Fatalf("chunks rebuild %q, want original answer", got)
	}

	if frames[len(frames)-2].Type != FrameSources || len(frames[len(frames)-2].Sources) != 1 {
		t.Fatalf("penultimate frame = %+v, want sources", frames[len(frames)-2])
	}
	if frames[len(frames)-1].Type != FrameDone {
		t.Fatalf("last frame = %+v, want done", frames[len(frames)-1])
	}
}

func TestReplayNoSourcesSkipsSourceFrame(t *testing.T) {
	answer := &retrieval.AnswerResponse{Answer: "Oui."}
	frames := collect(Replay(context.Background(), catchAll, answer))
	for _, f := range frames {
		if f.Type == FrameSources {
			t.Fatal("sources frame emitted for an answer without sources")
		}
	}
	if frames[len(frames)-1].Type != FrameDone {
		t.Fatalf("last frame = %+v, want done", frames[len(frames)-1])
	}
}

func TestReplayCancelStopsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	answer := &retrieval.AnswerResponse{Answer: strings.Repeat("mot ", 500)}
	frames := collect(Replay(ctx, catchAll, answer))
	for _, f := range frames {
		if f.Type == FrameDone {
			t.Fatal("done frame emitted after cancellation")
		}
	}
}

func TestReplayError(t *testing.T) {
	frames := collect(ReplayError("retrieval service unavailable"))
	if len(frames) != 1 || frames[0].Type != FrameError {
		t.Fatalf("frames = %+v, want single error frame", frames)
	}
	if frames[0].Error == "" {
		t.Fatal("error frame without message")
	}
}
