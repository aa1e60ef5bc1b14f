package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Budget_Estimate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := Estimate(tc.input); got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_Budget_EstimateMessages(t *testing.T) {
	t.Parallel()

	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2.
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	}
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

// turn builds one question/answer message pair with content of the given size.
func turn(chars int) []*schema.Message {
	text := strings.Repeat("q", chars)
	return []*schema.Message{
		schema.UserMessage(text),
		schema.AssistantMessage(strings.Repeat("a", chars), nil),
	}
}

func Test_Budget_TrimHistoryKeepsFittingTurns(t *testing.T) {
	t.Parallel()

	history := append(turn(40), turn(40)...)
	got := TrimHistory(nil, history, 1000)

	if len(got) != 4 {
		t.Fatalf("trimmed %d messages, want all 4 kept", 4-len(got))
	}
}

func Test_Budget_TrimHistoryDropsOldestPairFirst(t *testing.T) {
	t.Parallel()

	oldest := turn(400)
	newest := turn(40)
	history := append(oldest, newest...)

	// Budget fits one small turn but not the large one plus it.
	got := TrimHistory(nil, history, 50)

	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Content != newest[0].Content {
		t.Error("surviving turn is not the newest one")
	}
	if got[0].Role != schema.User || got[1].Role != schema.Assistant {
		t.Errorf("surviving pair roles = %q, %q", got[0].Role, got[1].Role)
	}
}

func Test_Budget_TrimHistoryNeverOrphansAnAnswer(t *testing.T) {
	t.Parallel()

	history := append(turn(100), turn(100)...)

	// A budget between one and two turns must drop a whole pair, never a
	// single message.
	got := TrimHistory(nil, history, 80)

	if len(got)%2 != 0 {
		t.Fatalf("got %d messages, want an even count", len(got))
	}
	if len(got) > 0 && got[0].Role != schema.User {
		t.Errorf("history starts with role %q, want user", got[0].Role)
	}
}

func Test_Budget_TrimHistoryFixedExceedsBudget(t *testing.T) {
	t.Parallel()

	fixed := []*schema.Message{schema.SystemMessage(strings.Repeat("s", 4000))}
	history := append(turn(40), turn(40)...)

	got := TrimHistory(fixed, history, 100)

	if len(got) != 0 {
		t.Errorf("got %d messages, want history fully dropped", len(got))
	}
}

func Test_Budget_TrimHistoryEmpty(t *testing.T) {
	t.Parallel()

	if got := TrimHistory(nil, nil, 100); len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}
