// Package mainwindow provides the main application window.
package mainwindow

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"pdf-studio/internal/ai"
	"pdf-studio/internal/annot"
	"pdf-studio/internal/doc"
	"pdf-studio/internal/ocr"
	"pdf-studio/internal/pdf"
	"pdf-studio/internal/textedit"
	"pdf-studio/internal/version"
	"pdf-studio/pkg/geometry"
	"pdf-studio/ui/pdfview"
	"pdf-studio/ui/prefs"
)

const (
	prefKeyLastDir   = "lastDirectory"
	prefKeyZoom      = "lastZoom"
	prefKeyWinWidth  = "windowWidth"
	prefKeyWinHeight = "windowHeight"

	appTitle = "PDF Studio"

	// tableRenderScale rasterizes crop selections at double resolution
	// before they go to table extraction.
	tableRenderScale = 2.0
)

// MainWindow is the primary application window: thin glue between the
// document session, the view widget and the background managers.
type MainWindow struct {
	fyne.Window
	app     fyne.App
	prefs   *prefs.Prefs
	session *doc.Session
	view    *pdfview.View
	ocr     *ocr.Manager
	ai      *ai.Manager

	statusBar *widget.Label
	pageLabel *widget.Label
	zoomLabel *widget.Label

	search   *widget.Entry
	matches  []pdfview.Highlight
	matchIdx int
}

// New creates the main window around a fresh document session.
func New(fyneApp fyne.App, appPrefs *prefs.Prefs) *MainWindow {
	win := fyneApp.NewWindow(appTitle)

	mw := &MainWindow{
		Window:  win,
		app:     fyneApp,
		prefs:   appPrefs,
		session: doc.NewSession(),
		ocr:     ocr.NewManager(),
		ai:      ai.NewManager(nil),
	}
	mw.view = pdfview.New(mw.session)

	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()

	win.SetCloseIntercept(mw.onClose)
	win.Resize(fyne.NewSize(
		float32(appPrefs.FloatWithFallback(prefKeyWinWidth, 1100)),
		float32(appPrefs.FloatWithFallback(prefKeyWinHeight, 800)),
	))
	return mw
}

// OpenFile loads a document given on the command line.
func (mw *MainWindow) OpenFile(path string) {
	if err := mw.session.Open(path); err != nil {
		log.Printf("open %s: %v", path, err)
		dialog.ShowError(err, mw.Window)
	}
}

func (mw *MainWindow) setupUI() {
	mw.statusBar = widget.NewLabel("Ready")
	mw.pageLabel = widget.NewLabel("")
	mw.zoomLabel = widget.NewLabel("100%")

	mw.search = widget.NewEntry()
	mw.search.SetPlaceHolder("Search...")
	mw.search.OnSubmitted = func(q string) { mw.onSearch(q) }

	toolbar := container.NewHBox(
		widget.NewButton("Open", mw.onOpen),
		widget.NewButton("Save", mw.onSave),
		widget.NewSeparator(),
		widget.NewButton("-", mw.view.ZoomOut),
		widget.NewButton("+", mw.view.ZoomIn),
		widget.NewButton("1:1", func() { mw.view.SetZoom(1.0) }),
		widget.NewSeparator(),
		widget.NewButton("Add Text", mw.onAddText),
		widget.NewButton("Stamp", mw.onPlaceStamp),
		widget.NewButton("Table", mw.onExtractTable),
		widget.NewButton("Edit Text", mw.onEditPageText),
	)

	searchBox := container.NewBorder(nil, nil, nil,
		container.NewHBox(
			widget.NewButton("<", func() { mw.stepMatch(-1) }),
			widget.NewButton(">", func() { mw.stepMatch(1) }),
		),
		mw.search,
	)

	status := container.NewBorder(nil, nil, mw.statusBar,
		container.NewHBox(mw.pageLabel, mw.zoomLabel))

	content := container.NewBorder(
		container.NewBorder(nil, nil, toolbar, nil, searchBox), // top
		container.NewPadded(status),                            // bottom
		nil, nil,
		mw.view,
	)
	mw.SetContent(content)
}

func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open...", mw.onOpen),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Save", mw.onSave),
		fyne.NewMenuItem("Save As...", mw.onSaveAs),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Close Document", mw.onCloseDocument),
		fyne.NewMenuItem("Quit", func() { mw.onClose() }),
	)

	editMenu := fyne.NewMenu("Edit",
		fyne.NewMenuItem("Add Text...", mw.onAddText),
		fyne.NewMenuItem("Place Stamp...", mw.onPlaceStamp),
		fyne.NewMenuItem("Edit Page Text", mw.onEditPageText),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Delete Selected", mw.onDeleteSelected),
		fyne.NewMenuItem("Flatten Stamps", mw.onFlattenStamps),
	)

	ocrItems := make([]*fyne.MenuItem, 0, len(ocr.Languages())+2)
	for _, lang := range ocr.Languages() {
		lang := lang
		ocrItems = append(ocrItems, fyne.NewMenuItem("Recognize: "+lang.Label, func() {
			mw.onRunOCR(lang)
		}))
	}
	ocrItems = append(ocrItems,
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Cancel Recognition", func() { mw.ocr.Cancel() }),
	)
	toolsMenu := fyne.NewMenu("Tools", append(ocrItems,
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Extract Table from Region...", mw.onExtractTable),
		fyne.NewMenuItem("Summarize Document", mw.onSummarize),
	)...)

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.view.ZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.view.ZoomOut),
		fyne.NewMenuItem("Actual Size", func() { mw.view.SetZoom(1.0) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Next Page", func() { mw.jumpPage(1) }),
		fyne.NewMenuItem("Previous Page", func() { mw.jumpPage(-1) }),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", func() {
			dialog.ShowInformation("About",
				fmt.Sprintf("%s v%s (%s)", appTitle, version.Version, version.GitCommit),
				mw.Window)
		}),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, editMenu, toolsMenu, viewMenu, helpMenu))
}

func (mw *MainWindow) setupEventHandlers() {
	mw.session.On(doc.EventDocumentLoaded, func(data interface{}) {
		path, _ := data.(string)
		mw.SetTitle(fmt.Sprintf("%s - %s", appTitle, filepath.Base(path)))
		mw.statusBar.SetText(fmt.Sprintf("Loaded %s", filepath.Base(path)))
		mw.updatePageLabel(0)
		if z := mw.prefs.FloatWithFallback(prefKeyZoom, 1.0); z != 1.0 {
			mw.view.SetZoom(z)
		}
	})
	mw.session.On(doc.EventModified, func(interface{}) {
		mw.SetTitle(fmt.Sprintf("%s - %s *", appTitle, filepath.Base(mw.session.Path())))
	})
	mw.session.On(doc.EventDocumentSaved, func(interface{}) {
		mw.SetTitle(fmt.Sprintf("%s - %s", appTitle, filepath.Base(mw.session.Path())))
		mw.statusBar.SetText("Saved")
	})
	mw.session.On(doc.EventDocumentClosed, func(interface{}) {
		mw.SetTitle(appTitle)
		mw.statusBar.SetText("Ready")
		mw.pageLabel.SetText("")
	})

	mw.view.OnZoomChanged(func(z float64) {
		mw.zoomLabel.SetText(fmt.Sprintf("%d%%", int(z*100+0.5)))
		mw.prefs.SetFloat(prefKeyZoom, z)
	})
	mw.view.OnPageChanged(mw.updatePageLabel)
	mw.view.OnEditStart(mw.showInlineEditor)
	mw.view.OnEditRequested(mw.showAnnotationEditor)
}

func (mw *MainWindow) updatePageLabel(page int) {
	d := mw.session.Document()
	if d == nil {
		return
	}
	mw.pageLabel.SetText(fmt.Sprintf("Page %d / %d", page+1, d.PageCount()))
}

func (mw *MainWindow) jumpPage(delta int) {
	d := mw.session.Document()
	if d == nil {
		return
	}
	page := mw.view.VisiblePage() + delta
	if page < 0 {
		page = 0
	}
	if page >= d.PageCount() {
		page = d.PageCount() - 1
	}
	mw.view.ScrollToPage(page)
	mw.updatePageLabel(page)
}

// File handlers.

func (mw *MainWindow) onOpen() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		mw.prefs.SetString(prefKeyLastDir, filepath.Dir(path))
		mw.OpenFile(path)
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".pdf"}))
	if dir := mw.prefs.String(prefKeyLastDir); dir != "" {
		if uri, err := storage.ListerForURI(storage.NewFileURI(dir)); err == nil {
			fd.SetLocation(uri)
		}
	}
	fd.Show()
}

func (mw *MainWindow) onSave() {
	if !mw.session.Loaded() {
		return
	}
	if err := mw.session.Save(); err != nil {
		dialog.ShowError(err, mw.Window)
	}
}

func (mw *MainWindow) onSaveAs() {
	if !mw.session.Loaded() {
		return
	}
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		path := writer.URI().Path()
		writer.Close()
		if err := mw.session.SaveAs(path); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".pdf"}))
	fd.Show()
}

func (mw *MainWindow) onCloseDocument() {
	if err := mw.session.Close(); err != nil {
		log.Printf("close document: %v", err)
	}
}

func (mw *MainWindow) onClose() {
	size := mw.Canvas().Size()
	mw.prefs.SetFloat(prefKeyWinWidth, float64(size.Width))
	mw.prefs.SetFloat(prefKeyWinHeight, float64(size.Height))
	if err := mw.prefs.Save(); err != nil {
		log.Printf("save preferences: %v", err)
	}
	if err := mw.session.Close(); err != nil {
		log.Printf("close session: %v", err)
	}
	mw.view.Close()
	mw.Window.Close()
}

// Edit handlers.

func (mw *MainWindow) onAddText() {
	if !mw.session.Loaded() {
		return
	}
	entry := widget.NewEntry()
	entry.SetPlaceHolder("Text to place")
	dialog.ShowForm("Add Text", "Place", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("Text", entry)},
		func(ok bool) {
			if !ok || strings.TrimSpace(entry.Text) == "" {
				return
			}
			mw.view.EnterTextPlacement(annot.TextConfig{Text: entry.Text})
			mw.statusBar.SetText("Click where the text should go")
		}, mw.Window)
}

func (mw *MainWindow) onPlaceStamp() {
	if !mw.session.Loaded() {
		return
	}
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		page := mw.view.VisiblePage()
		if err := mw.view.PlaceStamp(page, path); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg"}))
	fd.Show()
}

func (mw *MainWindow) onEditPageText() {
	if !mw.session.Loaded() {
		return
	}
	mw.view.EnterTextEdit()
	mw.statusBar.SetText("Click a text line to edit it")
}

func (mw *MainWindow) onDeleteSelected() {
	mw.view.DeleteSelected()
}

func (mw *MainWindow) onFlattenStamps() {
	if !mw.session.Loaded() || !mw.view.HasStamps() {
		return
	}
	if err := mw.view.FlattenStamps(); err != nil {
		dialog.ShowError(err, mw.Window)
	}
}

// showInlineEditor opens the native-text line editor.
func (mw *MainWindow) showInlineEditor(page int, line textedit.Line) {
	entry := widget.NewEntry()
	entry.SetText(line.Text)
	dialog.ShowForm("Edit Text", "Apply", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("Line", entry)},
		func(ok bool) {
			if !ok {
				mw.view.CancelEdit()
				return
			}
			mw.view.SetEditText(entry.Text)
			mw.view.CommitEdit()
		}, mw.Window)
}

// showAnnotationEditor changes a free-text annotation's content.
func (mw *MainWindow) showAnnotationEditor(a pdf.Annotation, page int) {
	entry := widget.NewEntry()
	entry.SetText(a.Content())
	style := a.Style()
	dialog.ShowForm("Edit Annotation", "Apply", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("Text", entry)},
		func(ok bool) {
			if !ok {
				return
			}
			err := mw.view.UpdateAnnotationText(page, a, annot.TextConfig{
				Text:     entry.Text,
				FontName: style.FontName,
				FontSize: style.FontSize,
				Color:    style.Color,
			})
			if err != nil {
				dialog.ShowError(err, mw.Window)
			}
		}, mw.Window)
}

// Tools handlers.

func (mw *MainWindow) onRunOCR(lang ocr.Language) {
	if !mw.session.Loaded() {
		return
	}
	err := mw.ocr.Start(mw.session.RenderSpec(), lang, ocr.Callbacks{
		Progress: func(page, total int) {
			mw.statusBar.SetText(fmt.Sprintf("Recognizing page %d of %d...", page, total))
		},
		Done: func(totalChars int, pages []ocr.PageText) {
			mw.statusBar.SetText(fmt.Sprintf("Recognition finished: %d characters on %d pages",
				totalChars, len(pages)))
		},
		Error: func(err error) {
			mw.statusBar.SetText("Recognition failed")
			log.Printf("ocr: %v", err)
		},
	})
	if err != nil {
		dialog.ShowError(err, mw.Window)
	}
}

func (mw *MainWindow) onExtractTable() {
	if !mw.session.Loaded() {
		return
	}
	mw.view.EnterCrop(mw.extractTableFromRegion)
	mw.statusBar.SetText("Drag a rectangle over the table")
}

func (mw *MainWindow) extractTableFromRegion(page int, region geometry.Rect) {
	d := mw.session.Document()
	if d == nil {
		return
	}
	img, err := d.RenderRegion(page, region, tableRenderScale)
	if err != nil {
		dialog.ShowError(err, mw.Window)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		dialog.ShowError(err, mw.Window)
		return
	}

	mw.statusBar.SetText("Extracting table...")
	go func() {
		csv, err := mw.ai.ExtractTable(mw.aiContext(), buf.Bytes())
		if err != nil {
			mw.statusBar.SetText("Table extraction failed")
			dialog.ShowError(err, mw.Window)
			return
		}
		mw.statusBar.SetText("Table extracted")
		mw.showTextResult("Extracted Table", csv)
	}()
}

func (mw *MainWindow) onSummarize() {
	if !mw.session.Loaded() {
		return
	}
	spec := mw.session.RenderSpec()
	mw.statusBar.SetText("Summarizing...")
	go func() {
		text, err := documentText(spec)
		if err != nil {
			mw.statusBar.SetText("Summary failed")
			dialog.ShowError(err, mw.Window)
			return
		}
		summary, err := mw.ai.Summarize(mw.aiContext(), text)
		if err != nil {
			mw.statusBar.SetText("Summary failed")
			dialog.ShowError(err, mw.Window)
			return
		}
		mw.statusBar.SetText("Summary ready")
		mw.showTextResult("Document Summary", summary)
	}()
}

func (mw *MainWindow) showTextResult(title, text string) {
	out := widget.NewMultiLineEntry()
	out.SetText(text)
	out.Wrapping = fyne.TextWrapWord
	d := dialog.NewCustom(title, "Close", container.NewStack(out), mw.Window)
	d.Resize(fyne.NewSize(600, 400))
	d.Show()
}

func (mw *MainWindow) aiContext() context.Context {
	return context.Background()
}

// documentText extracts the full text of a document from its render
// snapshot, page order preserved.
func documentText(spec pdf.RenderSpec) (string, error) {
	src, err := spec.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	var b strings.Builder
	for i := 0; i < src.PageCount(); i++ {
		text, err := src.Text(i)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Search handlers.

func (mw *MainWindow) onSearch(query string) {
	mw.matches = mw.view.FindText(query)
	mw.matchIdx = 0
	if len(mw.matches) == 0 {
		mw.view.ClearSearch()
		mw.statusBar.SetText("No matches")
		return
	}
	mw.showMatch()
}

func (mw *MainWindow) stepMatch(delta int) {
	if len(mw.matches) == 0 {
		return
	}
	mw.matchIdx = (mw.matchIdx + delta + len(mw.matches)) % len(mw.matches)
	mw.showMatch()
}

func (mw *MainWindow) showMatch() {
	mw.view.SetSearchHighlights(mw.matches, mw.matchIdx)
	mw.view.ScrollToPage(mw.matches[mw.matchIdx].Page)
	mw.statusBar.SetText(fmt.Sprintf("Match %d of %d", mw.matchIdx+1, len(mw.matches)))
}
