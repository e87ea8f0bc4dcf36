package render

import (
	"image"
	"log"
	"sync"

	"pdf-studio/internal/pdf"
)

const (
	// WorkerCount is the size of the render pool.
	WorkerCount = 8

	// LowResFactor scales the fast preview pass relative to the full
	// render scale.
	LowResFactor = 0.2

	// DeviceScale multiplies the layout zoom so rendered bitmaps stay
	// sharp on high-density displays.
	DeviceScale = 2.0
)

// Renderer is the per-task rasterization handle a worker drives.
// *pdf.RenderDoc satisfies it.
type Renderer interface {
	Render(page int, scale float64) (image.Image, error)
	Close() error
}

// OpenFunc opens an independent Renderer for one task.
type OpenFunc func(pdf.RenderSpec) (Renderer, error)

func openFitz(spec pdf.RenderSpec) (Renderer, error) {
	return spec.Open()
}

// Task is one page render request. Valid is consulted before each pass
// and before each result is emitted; when it returns false the task is
// abandoned without emitting. Workers open their own handle from Spec,
// never sharing one with the document owner.
type Task struct {
	Key   Key
	Spec  pdf.RenderSpec
	Scale float64 // full render scale, normally Key.Zoom * DeviceScale
	Valid func() bool
}

// Result is one finished render pass. Each task emits up to two: a fast
// low-resolution preview, then the full-resolution image.
type Result struct {
	Key     Key
	Image   image.Image
	HighRes bool
}

// Pipeline runs render tasks on a fixed worker pool and delivers
// results over a channel for a single consumer to integrate.
type Pipeline struct {
	open    OpenFunc
	tasks   chan Task
	results chan Result
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPipeline creates a pipeline with the given pool size; workers <= 0
// falls back to WorkerCount.
func NewPipeline(workers int) *Pipeline {
	return newPipeline(workers, openFitz)
}

func newPipeline(workers int, open OpenFunc) *Pipeline {
	if workers <= 0 {
		workers = WorkerCount
	}
	p := &Pipeline{
		open:    open,
		tasks:   make(chan Task, 256),
		results: make(chan Result, 64),
		done:    make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Results is the channel finished passes arrive on. One goroutine (the
// UI integrator) should range over it.
func (p *Pipeline) Results() <-chan Result {
	return p.results
}

// Submit queues a task. It returns false when the queue is full or the
// pipeline is shut down; the caller should clear its pending mark so
// the key can be rescheduled.
func (p *Pipeline) Submit(t Task) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.tasks <- t:
		return true
	default:
		return false
	}
}

// Close stops the workers and closes the results channel once they
// drain. Safe to call more than once.
func (p *Pipeline) Close() {
	p.once.Do(func() {
		close(p.done)
		close(p.tasks)
		go func() {
			p.wg.Wait()
			close(p.results)
		}()
	})
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

// run executes both passes of one task. The low pass gives the UI
// something to paint within a few frames; the high pass replaces it.
// Validity is rechecked between steps because zoom commits can
// invalidate a key while its render is in flight.
func (p *Pipeline) run(t Task) {
	if !t.valid() {
		return
	}
	doc, err := p.open(t.Spec)
	if err != nil {
		log.Printf("render: open handle for page %d: %v", t.Key.Page, err)
		return
	}
	defer doc.Close()

	low, err := doc.Render(t.Key.Page, t.Scale*LowResFactor)
	if err != nil {
		log.Printf("render: low pass page %d: %v", t.Key.Page, err)
	} else if !p.emit(Result{Key: t.Key, Image: low, HighRes: false}, t) {
		return
	}

	if !t.valid() {
		return
	}
	high, err := doc.Render(t.Key.Page, t.Scale)
	if err != nil {
		log.Printf("render: high pass page %d: %v", t.Key.Page, err)
		return
	}
	p.emit(Result{Key: t.Key, Image: high, HighRes: true}, t)
}

// emit delivers a result unless the task went stale or the pipeline is
// shutting down. Reports whether the task should continue.
func (p *Pipeline) emit(r Result, t Task) bool {
	if !t.valid() {
		return false
	}
	select {
	case p.results <- r:
		return true
	case <-p.done:
		return false
	}
}

func (t Task) valid() bool {
	return t.Valid == nil || t.Valid()
}
