// Package generation turns retrieved contract chunks into a cited answer.
// The generator never invents sources: the model sees numbered context
// blocks, cites them inline as [n], and every citation in the result maps
// back to a retrieved chunk. Canned fallbacks cover the cases where no
// generation should happen at all.
package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/caselight/cqa-go/internal/budget"
	"github.com/caselight/cqa-go/internal/guardrail"
	"github.com/caselight/cqa-go/internal/rag"
)

// Canned responses returned without calling the model.
const (
	// RefusalMessage answers queries rejected by the safety screen.
	RefusalMessage = "I cannot process that request."

	// InsufficientEvidenceMessage answers queries whose retrieval scored
	// below the relevance threshold.
	InsufficientEvidenceMessage = "I do not have enough evidence in the uploaded documents to answer that."

	// EmptyIndexMessage answers queries asked before any document was
	// ingested.
	EmptyIndexMessage = "I do not have indexed documents yet. Upload a contract first."
)

// lowConfidenceNote is appended when the answer's grounding ratio falls
// below the configured floor.
const lowConfidenceNote = "\n\nNote: confidence is low because evidence overlap is limited."

const answerSystemPrompt = "You are a contract question-answering assistant. " +
	"Answer strictly using the provided context. " +
	"If the answer is not present, say you do not have enough information. " +
	"Return a concise answer with inline citations like [1], [2]."

const summarySystemPrompt = "Summarize the following contract content in bullet points. " +
	"Include key obligations, durations, payment terms, and termination clauses if present."

// DefaultMaxCitations caps the citation list attached to an answer.
const DefaultMaxCitations = 10

// Config holds the generator's dependencies and tuning knobs.
type Config struct {
	// ChatModel produces the answer text. Required.
	ChatModel model.BaseChatModel

	// MaxContextTokens bounds the prompt size; prior turns are dropped
	// oldest-first to fit. 0 uses budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// MaxCitations caps the citation list. 0 uses DefaultMaxCitations.
	MaxCitations int

	// GroundingFloor is the grounding ratio below which the answer gets
	// the low-confidence note. 0 uses guardrail.GroundingFloor.
	GroundingFloor float64
}

// Result is a generated answer with its provenance.
type Result struct {
	// Answer is the final answer text, including any low-confidence note.
	Answer string

	// Citations maps the answer's inline [n] markers to retrieved chunks.
	Citations []rag.Citation

	// Contexts are the retrieved chunk texts the answer was grounded on,
	// in prompt order.
	Contexts []string

	// GroundingRatio is the token-overlap score of the answer against the
	// contexts.
	GroundingRatio float64

	// LowConfidence reports whether the grounding ratio fell below the
	// floor.
	LowConfidence bool
}

// Generator produces cited answers and summaries from retrieved chunks.
type Generator struct {
	cfg Config
}

// New constructs a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("generation: chat model is required")
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.MaxCitations <= 0 {
		cfg.MaxCitations = DefaultMaxCitations
	}
	if cfg.GroundingFloor <= 0 {
		cfg.GroundingFloor = guardrail.GroundingFloor
	}
	return &Generator{cfg: cfg}, nil
}

// Generate answers question from the retrieved chunks. history carries prior
// conversation turns, oldest first; it is trimmed to the token budget, never
// the question or the context. The caller guarantees retrieved is non-empty
// and already passed the relevance gate.
func (g *Generator) Generate(ctx context.Context, question string, retrieved []rag.ScoredChunk, history []*schema.Message) (*Result, error) {
	if len(retrieved) == 0 {
		return nil, fmt.Errorf("generation: no retrieved chunks to answer from")
	}

	contexts := make([]string, 0, len(retrieved))
	var blocks strings.Builder
	for i, sc := range retrieved {
		contexts = append(contexts, sc.Text)
		fmt.Fprintf(&blocks, "[%d] %s\n\n", i+1, sc.Text)
	}

	userMsg := schema.UserMessage(fmt.Sprintf("Question: %s\n\nContext:\n%s", question, blocks.String()))
	fixed := []*schema.Message{schema.SystemMessage(answerSystemPrompt), userMsg}
	history = budget.TrimHistory(fixed, history, g.cfg.MaxContextTokens)

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(answerSystemPrompt))
	messages = append(messages, history...)
	messages = append(messages, userMsg)

	out, err := g.cfg.ChatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generation: model call failed: %w", err)
	}

	answer, citations := resolveCitations(out.Content, retrieved, g.cfg.MaxCitations)

	ratio := guardrail.GroundingRatio(answer, contexts)
	low := ratio < g.cfg.GroundingFloor
	if low {
		answer += lowConfidenceNote
	}

	return &Result{
		Answer:         answer,
		Citations:      citations,
		Contexts:       contexts,
		GroundingRatio: ratio,
		LowConfidence:  low,
	}, nil
}

// Summarize produces a bullet-point summary of the given chunk texts.
// source labels what is being summarized and is only used for the prompt.
func (g *Generator) Summarize(ctx context.Context, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", fmt.Errorf("generation: nothing to summarize")
	}

	messages := []*schema.Message{
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage("Content:\n" + strings.Join(texts, "\n\n")),
	}
	out, err := g.cfg.ChatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generation: summary model call failed: %w", err)
	}
	return out.Content, nil
}
