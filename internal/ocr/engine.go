// Package ocr recognizes text on rendered document pages so scanned
// files become searchable.
package ocr

import (
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Language selects the recognition models a run loads.
type Language struct {
	Label string // shown in the UI
	Tess  string // tesseract language spec, e.g. "kor+eng"
}

var (
	KoreanEnglish   = Language{Label: "Korean + English", Tess: "kor+eng"}
	English         = Language{Label: "English", Tess: "eng"}
	JapaneseEnglish = Language{Label: "Japanese + English", Tess: "jpn+eng"}
	ChineseEnglish  = Language{Label: "Chinese + English", Tess: "chi_sim+eng"}
)

// Languages lists the selectable languages in menu order.
func Languages() []Language {
	return []Language{KoreanEnglish, English, JapaneseEnglish, ChineseEnglish}
}

// Engine wraps a Tesseract client configured for full-page recognition.
// An Engine is not safe for concurrent use; the manager gives each run
// its own.
type Engine struct {
	client *gosseract.Client
}

// NewEngine creates an engine for the given language.
func NewEngine(lang Language) (*Engine, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage(strings.Split(lang.Tess, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("ocr: set language %q: %w", lang.Tess, err)
	}
	// Full automatic page segmentation; pages mix columns, headings and
	// paragraphs.
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("ocr: set page segmentation: %w", err)
	}

	return &Engine{client: client}, nil
}

// Recognize runs OCR over a rendered page image.
func (e *Engine) Recognize(img image.Image) (string, error) {
	data, err := prepare(img)
	if err != nil {
		return "", err
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("ocr: set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: recognize: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the Tesseract client.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
