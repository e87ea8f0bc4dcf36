// Command renderbench measures render pipeline throughput on a PDF.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"pdf-studio/internal/pdf"
	"pdf-studio/internal/render"
)

func main() {
	path := flag.String("pdf", "", "Path to a PDF file")
	zoomFlag := flag.Float64("zoom", 1.0, "Zoom factor to render at")
	workers := flag.Int("workers", render.WorkerCount, "Render worker count")
	pages := flag.Int("pages", 0, "Pages to render (0 = all)")
	flag.Parse()

	if *path == "" {
		fmt.Println("Usage: renderbench -pdf <path> [-zoom 1.0] [-workers 8] [-pages 0]")
		os.Exit(1)
	}

	spec := pdf.RenderSpec{Path: *path}
	src, err := spec.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open document: %v\n", err)
		os.Exit(1)
	}
	total := src.PageCount()
	src.Close()

	count := total
	if *pages > 0 && *pages < count {
		count = *pages
	}
	fmt.Printf("Rendering %d of %d pages at zoom %.2f with %d workers\n",
		count, total, *zoomFlag, *workers)

	pipe := render.NewPipeline(*workers)
	defer pipe.Close()

	z := render.RoundZoom(*zoomFlag)
	start := time.Now()
	for p := 0; p < count; p++ {
		pipe.Submit(render.Task{
			Key:   render.NewKey(p, z),
			Spec:  spec,
			Scale: z * render.DeviceScale,
		})
	}

	var (
		lowDone   int
		highDone  int
		firstHigh time.Duration
	)
	for r := range pipe.Results() {
		if r.HighRes {
			highDone++
			if highDone == 1 {
				firstHigh = time.Since(start)
			}
			b := r.Image.Bounds()
			fmt.Printf("  page %3d  %4dx%4d  %8.1fms\n",
				r.Key.Page, b.Dx(), b.Dy(), float64(time.Since(start).Milliseconds()))
		} else {
			lowDone++
		}
		if highDone == count {
			break
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("\nPreviews: %d, full renders: %d\n", lowDone, highDone)
	fmt.Printf("First full page: %s\n", firstHigh.Round(time.Millisecond))
	fmt.Printf("Total: %s (%.1f pages/s)\n",
		elapsed.Round(time.Millisecond), float64(count)/elapsed.Seconds())
}
