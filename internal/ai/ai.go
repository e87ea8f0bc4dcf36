// Package ai exposes generative-model assistance for document text:
// table extraction from page images, OCR typo correction, summaries
// and a document-grounded chat.
//
// The model transport is injected through Provider; the package itself
// never talks to a network. A nil provider means no API key is
// configured, and every operation reports that instead of failing
// deep in a request.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrNotConfigured is returned while no provider is installed.
	ErrNotConfigured = errors.New("ai: no API key configured, set one in preferences")

	// ErrBusy is returned when a request of the same category is still
	// in flight.
	ErrBusy = errors.New("ai: a request of this kind is already running")
)

// Provider is the transport to a generative model.
type Provider interface {
	// GenerateText sends a text prompt and returns the model's reply.
	GenerateText(ctx context.Context, prompt string) (string, error)
	// GenerateFromImage sends a prompt with an attached PNG image.
	GenerateFromImage(ctx context.Context, prompt string, png []byte) (string, error)
}

// Category partitions requests; one request per category may be
// outstanding at a time, so a slow summary does not block the chat.
type Category int

const (
	CategoryTable Category = iota
	CategoryCorrection
	CategorySummary
	CategoryChat
)

const (
	tablePrompt = "Analyze the table in this image and convert it to CSV. " +
		"Output only the CSV text, with no commentary and no markdown code fences."

	correctionPrompt = "The following text was extracted by OCR and may contain " +
		"recognition mistakes such as 1 read as I or 0 read as O. Fix the mistakes " +
		"to match the context. Output only the corrected text, nothing else.\n\n"

	summaryPrompt = "Summarize the key points of the following text clearly and concisely:\n\n"

	chatSystemPrompt = "You are a document analysis assistant. The following is the " +
		"content of the document the user is currently viewing:\n\n%s\n\n" +
		"Answer the user's questions based on this content. If something is not " +
		"in the document, say you do not know."
)

// Manager serializes model requests per category over an injected
// provider.
type Manager struct {
	mu       sync.Mutex
	provider Provider
	busy     map[Category]bool
}

// NewManager creates a manager. A nil provider is valid and leaves the
// manager unconfigured until SetProvider.
func NewManager(p Provider) *Manager {
	return &Manager{provider: p, busy: make(map[Category]bool)}
}

// SetProvider swaps the transport, typically after the user updates
// the API key. A nil provider disables all operations.
func (m *Manager) SetProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provider = p
}

// Configured reports whether requests can be made.
func (m *Manager) Configured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider != nil
}

// begin reserves a category slot and returns the provider to use.
func (m *Manager) begin(cat Category) (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.provider == nil {
		return nil, ErrNotConfigured
	}
	if m.busy[cat] {
		return nil, ErrBusy
	}
	m.busy[cat] = true
	return m.provider, nil
}

func (m *Manager) end(cat Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.busy, cat)
}

// ExtractTable converts a table captured as a PNG into CSV text.
func (m *Manager) ExtractTable(ctx context.Context, png []byte) (string, error) {
	p, err := m.begin(CategoryTable)
	if err != nil {
		return "", err
	}
	defer m.end(CategoryTable)

	out, err := p.GenerateFromImage(ctx, tablePrompt, png)
	if err != nil {
		return "", fmt.Errorf("ai: table extraction: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// CorrectOCR fixes recognition mistakes in OCR output.
func (m *Manager) CorrectOCR(ctx context.Context, text string) (string, error) {
	p, err := m.begin(CategoryCorrection)
	if err != nil {
		return "", err
	}
	defer m.end(CategoryCorrection)

	out, err := p.GenerateText(ctx, correctionPrompt+text)
	if err != nil {
		return "", fmt.Errorf("ai: ocr correction: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Summarize produces a summary of the given text.
func (m *Manager) Summarize(ctx context.Context, text string) (string, error) {
	p, err := m.begin(CategorySummary)
	if err != nil {
		return "", err
	}
	defer m.end(CategorySummary)

	out, err := p.GenerateText(ctx, summaryPrompt+text)
	if err != nil {
		return "", fmt.Errorf("ai: summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// NewChat starts a chat session, optionally grounded in document text.
func (m *Manager) NewChat(documentText string) (*Chat, error) {
	m.mu.Lock()
	configured := m.provider != nil
	m.mu.Unlock()
	if !configured {
		return nil, ErrNotConfigured
	}

	c := &Chat{m: m}
	if documentText != "" {
		c.system = fmt.Sprintf(chatSystemPrompt, documentText)
	}
	return c, nil
}

type turn struct {
	user, assistant string
}

// Chat is a stateful conversation. The provider transport is
// stateless, so each Send replays the system context and the history.
type Chat struct {
	m       *Manager
	system  string
	history []turn
}

// Send asks a question and records the exchange in the history.
func (c *Chat) Send(ctx context.Context, message string) (string, error) {
	p, err := c.m.begin(CategoryChat)
	if err != nil {
		return "", err
	}
	defer c.m.end(CategoryChat)

	var b strings.Builder
	if c.system != "" {
		b.WriteString(c.system)
		b.WriteString("\n\n")
	}
	for _, t := range c.history {
		b.WriteString("User: ")
		b.WriteString(t.user)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.assistant)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")

	reply, err := p.GenerateText(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("ai: chat: %w", err)
	}
	reply = strings.TrimSpace(reply)
	c.history = append(c.history, turn{user: message, assistant: reply})
	return reply, nil
}

// History returns the user/assistant exchanges so far as alternating
// strings, for transcript display.
func (c *Chat) History() []string {
	out := make([]string, 0, len(c.history)*2)
	for _, t := range c.history {
		out = append(out, t.user, t.assistant)
	}
	return out
}
