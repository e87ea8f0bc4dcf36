// Package fontres resolves which font the PDF engine should write text
// with.
//
// Two resolution paths exist. Free-text annotations only need a font
// that can show the characters, so they use builtin engine fonts and
// never touch the filesystem. Native text editing must reproduce the
// original layout, so it runs a three-tier cascade: the document's own
// embedded font, then a matching system font file, then a builtin.
package fontres

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pdf-studio/internal/pdf"
)

// Builtin engine font names.
const (
	BuiltinHelvetica = "helv"
	BuiltinCourier   = "cour"
	BuiltinTimes     = "tiro"
	BuiltinKorean    = "korea"
	BuiltinChinese   = "china-s"
)

// Choice names a resolved font. File is empty for builtin fonts.
type Choice struct {
	Name string
	File string
}

// HasCJK reports whether any rune falls outside the Latin and symbol
// ranges the builtin Western fonts cover.
func HasCJK(text string) bool {
	for _, r := range text {
		if r > 0x2E7F {
			return true
		}
	}
	return false
}

func hasKorean(text string) bool {
	for _, r := range text {
		if (r >= 0xAC00 && r <= 0xD7AF) || (r >= 0x3131 && r <= 0x318E) {
			return true
		}
	}
	return false
}

// FreeTextFont picks the builtin font for a free-text annotation. CJK
// text gets the builtin Korean font so creation stays instant, with no
// font file I/O.
func FreeTextFont(text, fontName string) Choice {
	if HasCJK(text) {
		return Choice{Name: BuiltinKorean}
	}
	name := fontName
	if name == "" {
		name = BuiltinHelvetica
	}
	switch strings.ToLower(name) {
	case "helvetica", "arial":
		name = BuiltinHelvetica
	}
	return Choice{Name: name}
}

// Resolver runs the text-edit font cascade. Extracted embedded fonts
// are written to temp files once per document and reused by reference
// number.
type Resolver struct {
	// FontsDir is the system font directory searched by the second
	// cascade tier.
	FontsDir string
	// TempDir receives extracted embedded fonts; empty means the OS
	// default.
	TempDir string
	// Fonts indexes FontsDir; lookups go through it when set. A zero
	// Resolver stats files directly instead.
	Fonts *Catalog

	mu        sync.Mutex
	extracted map[int]string // font xref -> temp file path
}

// NewResolver uses the platform font directory, indexed lazily by a
// shared catalog.
func NewResolver() *Resolver {
	dir := defaultFontsDir()
	return &Resolver{
		FontsDir:  dir,
		Fonts:     NewCatalog(dir),
		extracted: make(map[int]string),
	}
}

func defaultFontsDir() string {
	if windir := os.Getenv("WINDIR"); windir != "" {
		return filepath.Join(windir, "Fonts")
	}
	return `C:\Windows\Fonts`
}

// EditFont resolves the font for rewriting a native text line that was
// originally set in fontName. The replacement text matters: a CJK
// replacement needs a CJK-capable font whatever the original was.
func (r *Resolver) EditFont(doc pdf.Document, page int, fontName, text string) Choice {
	if c, ok := r.embedded(doc, page, fontName); ok {
		return c
	}
	return r.systemFont(fontName, text)
}

// embedded extracts the document's own copy of the font. Subset fonts
// (a "+" in the name, e.g. "ABCDEF+ArialMT") carry only the glyphs the
// document already uses, so they cannot set arbitrary replacement text
// and are skipped.
func (r *Resolver) embedded(doc pdf.Document, page int, fontName string) (Choice, bool) {
	fonts, err := doc.Fonts(page)
	if err != nil {
		return Choice{}, false
	}
	for _, ref := range fonts {
		if fontName != ref.Name && fontName != ref.BaseName {
			continue
		}
		if strings.Contains(ref.Name, "+") {
			continue
		}

		r.mu.Lock()
		cached, ok := r.extracted[ref.Ref]
		r.mu.Unlock()
		if ok {
			if _, err := os.Stat(cached); err == nil {
				return Choice{Name: ref.Name, File: cached}, true
			}
		}

		data, err := doc.ExtractFont(ref)
		if err != nil || len(data) < 100 {
			continue
		}
		path, err := r.writeTemp(data)
		if err != nil {
			continue
		}
		r.mu.Lock()
		r.extracted[ref.Ref] = path
		r.mu.Unlock()
		return Choice{Name: ref.Name, File: path}, true
	}
	return Choice{}, false
}

func (r *Resolver) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(r.TempDir, "pdfstudio_font_*.ttf")
	if err != nil {
		return "", fmt.Errorf("fontres: temp font file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("fontres: write font program: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// cjkFamilies maps original family keywords to system font files:
// keyword, regular, bold, light.
var cjkFamilies = [][4]string{
	{"malgun", "malgun.ttf", "malgunbd.ttf", "malgunsl.ttf"},
	{"gothic", "malgun.ttf", "malgunbd.ttf", "malgunsl.ttf"},
	{"gulim", "gulim.ttc", "gulim.ttc", "gulim.ttc"},
	{"dotum", "gulim.ttc", "gulim.ttc", "gulim.ttc"},
	{"batang", "batang.ttc", "batang.ttc", "batang.ttc"},
	{"gungsuh", "batang.ttc", "batang.ttc", "batang.ttc"},
	{"myeongjo", "batang.ttc", "batang.ttc", "batang.ttc"},
	{"nanum", "NanumGothic.ttf", "NanumGothicBold.ttf", "NanumGothicLight.ttf"},
}

// latinFamilies maps keywords to system font files: keyword, regular,
// bold, italic, bold italic.
var latinFamilies = [][5]string{
	{"arial", "arial.ttf", "arialbd.ttf", "ariali.ttf", "arialbi.ttf"},
	{"helvetica", "arial.ttf", "arialbd.ttf", "ariali.ttf", "arialbi.ttf"},
	{"calibri", "calibri.ttf", "calibrib.ttf", "calibrii.ttf", "calibriz.ttf"},
	{"cambria", "cambria.ttc", "cambriab.ttf", "cambriai.ttf", "cambriaz.ttf"},
	{"times", "times.ttf", "timesbd.ttf", "timesi.ttf", "timesbi.ttf"},
	{"georgia", "georgia.ttf", "georgiab.ttf", "georgiai.ttf", "georgiaz.ttf"},
	{"verdana", "verdana.ttf", "verdanab.ttf", "verdanai.ttf", "verdanaz.ttf"},
	{"tahoma", "tahoma.ttf", "tahomabd.ttf", "tahoma.ttf", "tahomabd.ttf"},
	{"trebuchet", "trebuc.ttf", "trebucbd.ttf", "trebucit.ttf", "trebucbi.ttf"},
	{"segoeui", "segoeui.ttf", "segoeuib.ttf", "segoeuii.ttf", "segoeuiz.ttf"},
	{"segoe", "segoeui.ttf", "segoeuib.ttf", "segoeuii.ttf", "segoeuiz.ttf"},
	{"consola", "consola.ttf", "consolab.ttf", "consolai.ttf", "consolaz.ttf"},
	{"courier", "cour.ttf", "courbd.ttf", "couri.ttf", "courbi.ttf"},
	{"mono", "consola.ttf", "consolab.ttf", "consolai.ttf", "consolaz.ttf"},
	{"garamond", "GARA.TTF", "GARABD.TTF", "GARAIT.TTF", "GARABD.TTF"},
	{"bookantiqua", "BKANT.TTF", "ANTQUAB.TTF", "ANTQUAI.TTF", "ANTQUABI.TTF"},
}

// normalize strips separators so "Malgun-Gothic Bold" matches "malgun".
func normalize(fontName string) string {
	lower := strings.ToLower(fontName)
	lower = strings.ReplaceAll(lower, "-", "")
	lower = strings.ReplaceAll(lower, " ", "")
	return strings.ReplaceAll(lower, "_", "")
}

// systemFont maps the original font family to an installed font file,
// matching weight and style keywords in the name.
func (r *Resolver) systemFont(originalFont, text string) Choice {
	lower := normalize(originalFont)
	isBold := strings.Contains(lower, "bold") || strings.Contains(lower, "heavy") ||
		strings.Contains(lower, "black")

	if HasCJK(text) {
		isLight := strings.Contains(lower, "light") || strings.Contains(lower, "thin")

		for _, fam := range cjkFamilies {
			if !strings.Contains(lower, fam[0]) {
				continue
			}
			file := fam[1]
			if isBold {
				file = fam[2]
			} else if isLight {
				file = fam[3]
			}
			if c, ok := r.installed(file); ok {
				return c
			}
			break
		}

		// Default CJK family with weight matching.
		file := "malgun.ttf"
		if isBold {
			file = "malgunbd.ttf"
		} else if isLight {
			file = "malgunsl.ttf"
		}
		if c, ok := r.installed(file); ok {
			return c
		}
		if c, ok := r.installed("malgun.ttf"); ok {
			return c
		}

		if hasKorean(text) {
			return Choice{Name: BuiltinKorean}
		}
		return Choice{Name: BuiltinChinese}
	}

	isItalic := strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")

	for _, fam := range latinFamilies {
		if !strings.Contains(lower, fam[0]) {
			continue
		}
		file := fam[1]
		switch {
		case isBold && isItalic:
			file = fam[4]
		case isBold:
			file = fam[2]
		case isItalic:
			file = fam[3]
		}
		if c, ok := r.installed(file); ok {
			return c
		}
		if c, ok := r.installed(fam[1]); ok {
			return c
		}
		break
	}

	fallback := "arial.ttf"
	if isBold {
		fallback = "arialbd.ttf"
	}
	if c, ok := r.installed(fallback); ok {
		return c
	}

	switch {
	case strings.Contains(lower, "courier") || strings.Contains(lower, "mono") ||
		strings.Contains(lower, "consol"):
		return Choice{Name: BuiltinCourier}
	case strings.Contains(lower, "times") ||
		(strings.Contains(lower, "serif") && !strings.Contains(lower, "sans")):
		return Choice{Name: BuiltinTimes}
	default:
		return Choice{Name: BuiltinHelvetica}
	}
}

func (r *Resolver) installed(file string) (Choice, bool) {
	name := strings.TrimSuffix(file, filepath.Ext(file))
	if r.Fonts != nil {
		path, ok := r.Fonts.Lookup(file)
		if !ok {
			return Choice{}, false
		}
		return Choice{Name: name, File: path}, true
	}
	path := filepath.Join(r.FontsDir, file)
	if _, err := os.Stat(path); err != nil {
		return Choice{}, false
	}
	return Choice{Name: name, File: path}, true
}
