package flush

import (
	"context"
	"log"
	"sync"

	"github.com/shehryarbajwa/visitrace/internal/enrichment"
	"github.com/shehryarbajwa/visitrace/internal/events"
	"github.com/shehryarbajwa/visitrace/internal/payload"
	"github.com/shehryarbajwa/visitrace/internal/sink"
	"github.com/shehryarbajwa/visitrace/pkg/models"
)

// Enricher resolves the enrichment cache for one flush
type Enricher interface {
	Fetch(ctx context.Context, locator enrichment.Locator) enrichment.Result
}

// Pipeline is the flush sequence: enrich, then gather and assemble, then
// write
type Pipeline struct {
	Enricher Enricher
	Locator  enrichment.Locator
	// Gather reads the current state. It is called after enrichment settles.
	Gather func() payload.Input
	Sink   sink.Sink
}

// Run executes the sequence once and returns the payload it wrote
func (p *Pipeline) Run(ctx context.Context) (models.Payload, error) {
	var result enrichment.Result
	if p.Enricher != nil {
		result = p.Enricher.Fetch(ctx, p.Locator)
	}
	if result.Geo == nil {
		result.Geo = map[string]any{}
	}

	input := p.Gather()
	input.Enrichment = result
	record := payload.Assemble(input)

	err := p.Sink.Write(ctx, record)
	return record, err
}

// Trigger runs a pipeline when the page is hidden or unloading
type Trigger struct {
	ctx      context.Context
	pipeline *Pipeline
	once     bool
	onFlush  func(models.Payload)

	mu          sync.Mutex
	fired       int
	wg          sync.WaitGroup
	unsubscribe func()
}

// NewTrigger creates a trigger. With once set, only the first lifecycle
// signal flushes; otherwise every signal runs its own sequence. onFlush, if
// set, receives each written payload.
func NewTrigger(ctx context.Context, pipeline *Pipeline, once bool, onFlush func(models.Payload)) *Trigger {
	return &Trigger{
		ctx:      ctx,
		pipeline: pipeline,
		once:     once,
		onFlush:  onFlush,
	}
}

// Attach subscribes to visibility changes and page hide on src
func (t *Trigger) Attach(src events.Source) {
	unsub := src.Subscribe(t.handle, events.KindVisibilityChange, events.KindPageHide)

	t.mu.Lock()
	t.unsubscribe = unsub
	t.mu.Unlock()
}

func (t *Trigger) handle(ev events.Event) {
	if ev.Kind == events.KindVisibilityChange && ev.State != events.StateHidden {
		return
	}
	t.Fire(string(ev.Kind))
}

// Fire starts a flush sequence in the background. It reports false when the
// single-fire guard suppressed it.
func (t *Trigger) Fire(reason string) bool {
	t.mu.Lock()
	if t.once && t.fired > 0 {
		t.mu.Unlock()
		return false
	}
	t.fired++
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()

		record, err := t.pipeline.Run(t.ctx)
		if err != nil {
			log.Printf("⚠️ Flush (%s) failed to write payload: %v", reason, err)
			return
		}
		log.Printf("📦 Analytics payload flushed on %s for session %s", reason, record.SessionID)
		if t.onFlush != nil {
			t.onFlush(record)
		}
	}()
	return true
}

// Fired returns how many sequences have started
func (t *Trigger) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Wait blocks until every started sequence has finished
func (t *Trigger) Wait() {
	t.wg.Wait()
}

// Detach stops listening for lifecycle signals
func (t *Trigger) Detach() {
	t.mu.Lock()
	unsub := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
