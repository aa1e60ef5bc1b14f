// Package budget keeps generation prompts inside the model's context window.
// The engine serves several LLM backends with different tokenizers, so token
// counts are estimated with a character heuristic (1 token ~ 4 characters of
// English prose) rather than a per-model tokenizer. The estimate rounds down,
// leaving headroom for backend-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverheadTokens approximates the per-message framing cost most
	// chat APIs charge on top of the content.
	messageOverheadTokens = 4

	// DefaultMaxContextTokens bounds the assembled prompt. Sized to fit
	// 8k-context models with room left for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Non-empty strings estimate to
// at least 1.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token total for msgs, including
// role names and per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverheadTokens
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest conversation turns until fixed plus history
// fits within maxTokens. History arrives as alternating question/answer
// messages, so messages are dropped in pairs: an answer never survives
// without the question that produced it. fixed (system prompt, retrieved
// context, the current question) is never trimmed here; when fixed alone
// exceeds the budget the whole history is dropped and the caller decides
// how to proceed.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)

	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		if len(history) >= 2 {
			history = history[2:]
		} else {
			history = history[1:]
		}
	}
	return history
}
