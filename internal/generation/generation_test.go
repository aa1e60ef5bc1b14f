package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/caselight/cqa-go/internal/rag"
)

// fakeChatModel returns a scripted response and records the messages it saw.
type fakeChatModel struct {
	response string
	err      error
	seen     []*schema.Message
}

func (m *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.seen = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.response, nil), nil
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.seen = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(m.response, nil)}), nil
}

// retrievedFixture builds n scored chunks with distinct sources and texts.
func retrievedFixture(n int) []rag.ScoredChunk {
	out := make([]rag.ScoredChunk, 0, n)
	for i := range n {
		out = append(out, rag.ScoredChunk{
			Chunk: rag.Chunk{
				ID:     rag.ChunkID("contract.txt", i),
				Source: "contract.txt",
				Text:   "the tenant shall pay rent monthly",
				Index:  i,
				Start:  i * 100,
				End:    i*100 + 100,
			},
			Score: 0.9 - float32(i)*0.1,
		})
	}
	return out
}

func newTestGenerator(t *testing.T, m model.BaseChatModel) *Generator {
	t.Helper()
	g, err := New(Config{ChatModel: m})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	return g
}

func Test_Generator_CitationsResolveToRetrievedChunks(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{response: "Rent is due monthly [2]. Late fees apply [1]."}
	g := newTestGenerator(t, fake)

	res, err := g.Generate(context.Background(), "When is rent due?", retrievedFixture(3), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Citations) != 2 {
		t.Fatalf("want 2 citations, got %d", len(res.Citations))
	}
	// First-mention order: [2] before [1].
	if res.Citations[0].ChunkID != rag.ChunkID("contract.txt", 1) {
		t.Errorf("first citation must be chunk 1, got %s", res.Citations[0].ChunkID)
	}
	if res.Citations[1].ChunkID != rag.ChunkID("contract.txt", 0) {
		t.Errorf("second citation must be chunk 0, got %s", res.Citations[1].ChunkID)
	}
	if res.Citations[0].Relevance != 0.8 {
		t.Errorf("citation must carry retrieval score, got %v", res.Citations[0].Relevance)
	}
}

func Test_Generator_FabricatedMarkersStripped(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{response: "Rent is due monthly [1] per clause [7]."}
	g := newTestGenerator(t, fake)

	res, err := g.Generate(context.Background(), "When is rent due?", retrievedFixture(2), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.Contains(res.Answer, "[7]") {
		t.Errorf("out-of-range marker must be stripped, got %q", res.Answer)
	}
	if !strings.Contains(res.Answer, "[1]") {
		t.Errorf("valid marker must survive, got %q", res.Answer)
	}
	if len(res.Citations) != 1 {
		t.Errorf("want 1 citation, got %d", len(res.Citations))
	}
}

func Test_Generator_NoMarkersCitesAllRetrieved(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{response: "the tenant shall pay rent monthly"}
	g := newTestGenerator(t, fake)

	res, err := g.Generate(context.Background(), "q", retrievedFixture(3), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Citations) != 3 {
		t.Errorf("markerless answer must cite all retrieved chunks, got %d", len(res.Citations))
	}
}

func Test_Generator_CitationCapApplied(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{response: "the tenant shall pay rent monthly"}
	g, err := New(Config{ChatModel: fake, MaxCitations: 2})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	res, err := g.Generate(context.Background(), "q", retrievedFixture(5), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Citations) != 2 {
		t.Errorf("want citations capped at 2, got %d", len(res.Citations))
	}
}

func Test_Generator_LowGroundingGetsNote(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{response: "Quantum synergy blockchain paradigm [1]"}
	g := newTestGenerator(t, fake)

	res, err := g.Generate(context.Background(), "q", retrievedFixture(1), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.LowConfidence {
		t.Error("ungrounded answer must be flagged low confidence")
	}
	if !strings.Contains(res.Answer, "confidence is low") {
		t.Errorf("want low-confidence note, got %q", res.Answer)
	}
}

func Test_Generator_GroundedAnswerHasNoNote(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{response: "The tenant shall pay rent monthly [1]"}
	g := newTestGenerator(t, fake)

	res, err := g.Generate(context.Background(), "q", retrievedFixture(1), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.LowConfidence {
		t.Errorf("grounded answer flagged low confidence (ratio %v)", res.GroundingRatio)
	}
	if strings.Contains(res.Answer, "confidence is low") {
		t.Errorf("unexpected note: %q", res.Answer)
	}
}

func Test_Generator_PromptCarriesNumberedContext(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{response: "answer [1]"}
	g := newTestGenerator(t, fake)

	if _, err := g.Generate(context.Background(), "When is rent due?", retrievedFixture(2), nil); err != nil {
		t.Fatalf("generate: %v", err)
	}

	last := fake.seen[len(fake.seen)-1]
	if last.Role != schema.User {
		t.Fatalf("last message must be the user turn, got %s", last.Role)
	}
	if !strings.Contains(last.Content, "When is rent due?") {
		t.Error("prompt must carry the question")
	}
	if !strings.Contains(last.Content, "[1] ") || !strings.Contains(last.Content, "[2] ") {
		t.Errorf("prompt must number context blocks, got %q", last.Content)
	}
	if fake.seen[0].Role != schema.System {
		t.Error("first message must be the system prompt")
	}
}

func Test_Generator_HistoryInjectedBetweenSystemAndQuestion(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{response: "answer [1]"}
	g := newTestGenerator(t, fake)

	history := []*schema.Message{
		schema.UserMessage("earlier question"),
		schema.AssistantMessage("earlier answer", nil),
	}
	if _, err := g.Generate(context.Background(), "q", retrievedFixture(1), history); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(fake.seen) != 4 {
		t.Fatalf("want system + 2 history + user, got %d messages", len(fake.seen))
	}
	if fake.seen[1].Content != "earlier question" || fake.seen[2].Content != "earlier answer" {
		t.Error("history not injected in order")
	}
}

func Test_Generator_ModelErrorPropagates(t *testing.T) {
	t.Parallel()
	modelErr := errors.New("upstream timeout")
	g := newTestGenerator(t, &fakeChatModel{err: modelErr})

	if _, err := g.Generate(context.Background(), "q", retrievedFixture(1), nil); !errors.Is(err, modelErr) {
		t.Fatalf("want wrapped model error, got %v", err)
	}
}

func Test_Generator_EmptyRetrievalRejected(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, &fakeChatModel{response: "x"})
	if _, err := g.Generate(context.Background(), "q", nil, nil); err == nil {
		t.Fatal("want error for empty retrieval")
	}
}

func Test_Generator_Summarize(t *testing.T) {
	t.Parallel()
	fake := &fakeChatModel{response: "- rent due monthly\n- 30 day notice"}
	g := newTestGenerator(t, fake)

	summary, err := g.Summarize(context.Background(), []string{"chunk one", "chunk two"})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.Contains(summary, "rent due monthly") {
		t.Errorf("unexpected summary %q", summary)
	}
	last := fake.seen[len(fake.seen)-1]
	if !strings.Contains(last.Content, "chunk one") || !strings.Contains(last.Content, "chunk two") {
		t.Error("summary prompt must join the chunk texts")
	}

	if _, err := g.Summarize(context.Background(), nil); err == nil {
		t.Error("want error for empty input")
	}
}
