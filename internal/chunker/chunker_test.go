package chunker

import (
	"errors"
	"strings"
	"testing"
)

func Test_Chunker_InvalidConfigRejected(t *testing.T) {
	t.Parallel()
	cases := []struct{ size, overlap int }{
		{0, 0},
		{-1, 0},
		{100, 100},
		{100, 150},
		{100, -1},
	}
	for _, c := range cases {
		if _, err := New(c.size, c.overlap); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("New(%d, %d): want ErrInvalidConfig, got %v", c.size, c.overlap, err)
		}
	}
}

func Test_Chunker_ShortTextIsSinglePiece(t *testing.T) {
	t.Parallel()
	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	pieces := c.Split("short contract text")
	if len(pieces) != 1 {
		t.Fatalf("want 1 piece, got %d", len(pieces))
	}
	p := pieces[0]
	if p.Text != "short contract text" || p.Start != 0 || p.End != len(p.Text) || p.Index != 0 {
		t.Errorf("unexpected piece: %+v", p)
	}
}

func Test_Chunker_WhitespaceOnlyYieldsNothing(t *testing.T) {
	t.Parallel()
	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if pieces := c.Split("   \n\t  "); len(pieces) != 0 {
		t.Errorf("want no pieces for whitespace input, got %d", len(pieces))
	}
	if pieces := c.Split(""); len(pieces) != 0 {
		t.Errorf("want no pieces for empty input, got %d", len(pieces))
	}
}

func Test_Chunker_WindowsOverlapAndCoverText(t *testing.T) {
	t.Parallel()
	c, err := New(10, 3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	text := "abcdefghijklmnopqrstuvwxyz"
	pieces := c.Split(text)

	// Every byte covered, in order, with the configured stride.
	if pieces[0].Start != 0 {
		t.Errorf("first piece must start at 0, got %d", pieces[0].Start)
	}
	if last := pieces[len(pieces)-1]; last.End != len(text) {
		t.Errorf("last piece must end at len(text)=%d, got %d", len(text), last.End)
	}
	for i := 1; i < len(pieces); i++ {
		if pieces[i].Start != pieces[i-1].Start+7 {
			t.Errorf("piece %d: want stride 7, got start %d after %d", i, pieces[i].Start, pieces[i-1].Start)
		}
		if pieces[i].Start >= pieces[i-1].End {
			t.Errorf("piece %d does not overlap its predecessor", i)
		}
		if pieces[i].Index != i {
			t.Errorf("piece %d has index %d", i, pieces[i].Index)
		}
	}
	for _, p := range pieces {
		if p.Text != text[p.Start:p.End] {
			t.Errorf("piece %d text does not match its offsets", p.Index)
		}
	}
}

func Test_Chunker_Deterministic(t *testing.T) {
	t.Parallel()
	c, err := New(DefaultSize, DefaultOverlap)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	text := strings.Repeat("the tenant shall pay rent monthly. ", 200)
	a := c.Split(text)
	b := c.Split(text)
	if len(a) != len(b) {
		t.Fatalf("runs disagree on piece count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("piece %d differs between runs", i)
		}
	}
}

func Test_Chunker_ExactMultipleHasNoEmptyTail(t *testing.T) {
	t.Parallel()
	c, err := New(10, 5)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// len 15 = 10 + stride 5: second window ends exactly at len(text).
	pieces := c.Split("abcdefghijklmno")
	if len(pieces) != 2 {
		t.Fatalf("want 2 pieces, got %d", len(pieces))
	}
	if pieces[1].End != 15 || pieces[1].Text != "fghijklmno" {
		t.Errorf("unexpected tail piece: %+v", pieces[1])
	}
}
