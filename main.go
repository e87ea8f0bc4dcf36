// Package main provides the entry point for the PDF Studio application.
package main

import (
	"log"
	"os"
	"time"

	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"

	"pdf-studio/internal/app"
	"pdf-studio/internal/version"
	"pdf-studio/ui/mainwindow"
	"pdf-studio/ui/prefs"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting PDF Studio v%s", version.Version)

	fyneApp := fyneapp.NewWithID("pdf-studio")
	fyneApp.Settings().SetTheme(&app.StudioTheme{})

	appPrefs := prefs.Load()
	win := mainwindow.New(fyneApp, appPrefs)

	if len(os.Args) > 1 {
		win.OpenFile(os.Args[1])
	}

	setupHotReload(win)

	win.ShowAndRun()
}

// setupHotReload configures restart prompting when the binary is
// recompiled during development.
func setupHotReload(win *mainwindow.MainWindow) {
	reloader := app.NewHotReloader(2 * time.Second)
	if reloader == nil {
		log.Println("Hot reload: unable to determine executable path")
		return
	}

	log.Printf("Hot reload: watching %s (modified %s)",
		reloader.ExecPath(), reloader.Baseline().Format("15:04:05"))

	reloader.OnNewBinary(func() {
		log.Println("Hot reload: newer binary detected")
		dialog.ShowConfirm("New Version Available",
			"The application binary has been updated.\nRestart now?",
			func(restart bool) {
				if restart {
					log.Println("Hot reload: restarting...")
					if err := reloader.Restart(); err != nil {
						log.Printf("Hot reload: restart failed: %v", err)
					}
					return
				}
				reloader.ResetBaseline()
				reloader.Start()
			}, win.Window)
	})

	reloader.Start()
}
