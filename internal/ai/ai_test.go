package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// scriptedProvider returns a fixed reply and records prompts. When
// block is set, requests park on it so tests can observe the busy
// state.
type scriptedProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	images  [][]byte
	block   chan struct{}
}

func (p *scriptedProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()
	return p.reply, p.err
}

func (p *scriptedProvider) GenerateFromImage(ctx context.Context, prompt string, png []byte) (string, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.images = append(p.images, png)
	p.mu.Unlock()
	return p.reply, p.err
}

func (p *scriptedProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[len(p.prompts)-1]
}

func TestUnconfiguredManagerRejectsEverything(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	if m.Configured() {
		t.Error("nil provider reports configured")
	}
	if _, err := m.Summarize(ctx, "text"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("summarize: %v", err)
	}
	if _, err := m.ExtractTable(ctx, []byte{1}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("extract: %v", err)
	}
	if _, err := m.NewChat(""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("chat: %v", err)
	}
}

func TestSetProviderEnablesRequests(t *testing.T) {
	m := NewManager(nil)
	m.SetProvider(&scriptedProvider{reply: "ok"})

	if !m.Configured() {
		t.Fatal("not configured after SetProvider")
	}
	got, err := m.Summarize(context.Background(), "long document")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok" {
		t.Errorf("reply = %q", got)
	}
}

func TestExtractTableSendsImageAndTrims(t *testing.T) {
	p := &scriptedProvider{reply: "  a,b\n1,2\n  "}
	m := NewManager(p)

	png := []byte{0x89, 'P', 'N', 'G'}
	got, err := m.ExtractTable(context.Background(), png)
	if err != nil {
		t.Fatal(err)
	}
	if got != "a,b\n1,2" {
		t.Errorf("csv = %q", got)
	}
	if len(p.images) != 1 || string(p.images[0]) != string(png) {
		t.Error("image bytes not forwarded")
	}
	if !strings.Contains(p.lastPrompt(), "CSV") {
		t.Errorf("prompt = %q", p.lastPrompt())
	}
}

func TestCorrectOCRIncludesText(t *testing.T) {
	p := &scriptedProvider{reply: "DM74LS244N"}
	m := NewManager(p)

	got, err := m.CorrectOCR(context.Background(), "DM74LS244N with I/1 noise")
	if err != nil {
		t.Fatal(err)
	}
	if got != "DM74LS244N" {
		t.Errorf("corrected = %q", got)
	}
	if !strings.Contains(p.lastPrompt(), "with I/1 noise") {
		t.Error("source text missing from prompt")
	}
}

func TestBusyPerCategory(t *testing.T) {
	p := &scriptedProvider{reply: "x", block: make(chan struct{})}
	m := NewManager(p)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Summarize(ctx, "slow")
	}()

	// Wait until the first summary holds the category slot.
	for !func() bool {
		_, err := m.Summarize(ctx, "second")
		return errors.Is(err, ErrBusy)
	}() {
	}

	// Other categories stay available; images bypass the blocker.
	if _, err := m.ExtractTable(ctx, []byte{1}); err != nil {
		t.Errorf("table blocked by summary: %v", err)
	}

	close(p.block)
	<-done
	if _, err := m.Summarize(ctx, "after"); err != nil {
		t.Errorf("slot not released: %v", err)
	}
}

func TestProviderErrorIsWrapped(t *testing.T) {
	boom := errors.New("quota exhausted")
	m := NewManager(&scriptedProvider{err: boom})

	_, err := m.Summarize(context.Background(), "text")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	// The slot is released after a failure.
	if _, err := m.Summarize(context.Background(), "text"); !errors.Is(err, boom) {
		t.Errorf("second call: %v", err)
	}
}

func TestChatCarriesContextAndHistory(t *testing.T) {
	p := &scriptedProvider{reply: "The total is 42."}
	m := NewManager(p)

	c, err := m.NewChat("Invoice total: 42 EUR")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Send(context.Background(), "What is the total?"); err != nil {
		t.Fatal(err)
	}
	first := p.lastPrompt()
	if !strings.Contains(first, "Invoice total: 42 EUR") {
		t.Error("document context missing from prompt")
	}
	if !strings.Contains(first, "User: What is the total?") {
		t.Error("question missing from prompt")
	}

	p.reply = "Euros."
	if _, err := c.Send(context.Background(), "In what currency?"); err != nil {
		t.Fatal(err)
	}
	second := p.lastPrompt()
	if !strings.Contains(second, "Assistant: The total is 42.") {
		t.Error("previous answer missing from follow-up prompt")
	}

	want := []string{
		"What is the total?", "The total is 42.",
		"In what currency?", "Euros.",
	}
	if diff := cmp.Diff(want, c.History()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestChatWithoutContextHasNoSystemBlock(t *testing.T) {
	p := &scriptedProvider{reply: "hi"}
	m := NewManager(p)

	c, err := m.NewChat("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(p.lastPrompt(), "document analysis assistant") {
		t.Error("system context present without document text")
	}
}
