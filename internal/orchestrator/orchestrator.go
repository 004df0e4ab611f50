// Package orchestrator wires the Mirror, Prompt Builder, Post-Processor and
// Backend adapters into the request pipeline: a Mirror worker and a Backend
// worker each single-threading a synchronous queue, a shared async runtime
// hosting HTTP calls and prompt-building coroutines, and a rate limiter that
// coalesces pending completion requests rather than queuing them.
package orchestrator

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/standardbeagle/lspaid/internal/backend"
	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/logging"
	"github.com/standardbeagle/lspaid/internal/mirror"
	"github.com/standardbeagle/lspaid/internal/postprocess"
	"github.com/standardbeagle/lspaid/internal/prompt"
	"github.com/standardbeagle/lspaid/internal/retrieval"
)

// retrievalTopK and retrievalContextMaxRune bound the nearest-neighbor lookup
// issued against the retrieval store for each Context-and-Code prompt: how
// many chunks are fetched, and how many runes of them are joined.
const (
	retrievalTopK           = 5
	retrievalContextMaxRune = 2000
)

// CompletionItem is the minimal shape of an LSP CompletionItem the
// Orchestrator builds on a successful completion dispatch.
// internal/lspglue maps this onto the go.lsp.dev/protocol type.
type CompletionItem struct {
	Label      string
	FilterText string
	InsertText string
}

// CompletionResult is what a CompletionRequest resolves to.
type CompletionResult struct {
	Item CompletionItem
	Err  error
}

// CompletionRequest asks the Orchestrator to serve textDocument/completion
// for the configured completion model.
type CompletionRequest struct {
	URI      string
	Position mirror.Position
	Reply    chan CompletionResult
}

// GenerationResult is what a GenerationRequest resolves to.
type GenerationResult struct {
	Text string
	Err  error
}

// GenerationRequest asks the Orchestrator to serve the custom
// textDocument/generation request against a named model.
type GenerationRequest struct {
	URI         string
	Position    mirror.Position
	ModelName   string
	Params      map[string]any
	PostProcess *config.PostProcessConfig
	Reply       chan GenerationResult
}

// didOpenItem, didChangeItem and didRenameItem are the three Mirror-queue
// notification items; they carry no reply channel since LSP notifications
// have no response.
type didOpenItem struct {
	URI  string
	Text string
}

type didChangeItem struct {
	URI     string
	Changes []mirror.Change
}

type didRenameItem struct {
	Pairs [][2]string
}

// promptItem is the Mirror-queue work item for "build me a Prompt from the
// current snapshot". The Mirror worker neither builds the prompt nor reads
// the snapshot: it hands both to the async runtime so the queue consumer
// never blocks on prompt assembly. The snapshot (prompt.Build's CodeWindow
// read) is therefore taken when that async task runs, and it can include
// notifications the worker applied after it dequeued this item.
type promptItem struct {
	uri              string
	pos              mirror.Position
	shape            prompt.Shape
	maxContextTokens int
	pullMultiple     bool
	chatShaped       bool
	reply            chan promptResult
}

type promptResult struct {
	p   prompt.Prompt
	err error
}

type filterTextItem struct {
	uri   string
	pos   mirror.Position
	reply chan filterTextResult
}

type filterTextResult struct {
	text string
	err  error
}

// Orchestrator owns the Mirror worker, the Backend worker, the shared async
// runtime, and the rate limiter guarding the completion model.
type Orchestrator struct {
	mirror *mirror.Mirror
	cfg    *config.Config

	backends map[string]backend.Backend

	// store and embed back the retrieval-store Prompt Builder variant; both
	// are nil unless memory.postgresml is configured.
	store *retrieval.Store
	embed retrieval.EmbedFunc

	mirrorQueue  chan any
	backendQueue chan any

	asyncGroup *errgroup.Group
	sem        chan struct{}

	limiter *rate.Limiter

	pendingMu         sync.Mutex
	pendingCompletion *CompletionRequest
}

const (
	mirrorQueueDepth  = 256
	backendQueueDepth = 256
	rateTick          = 5 * time.Millisecond
)

// New builds an Orchestrator and constructs one Backend adapter per
// configured model.
func New(m *mirror.Mirror, cfg *config.Config) (*Orchestrator, error) {
	backends := make(map[string]backend.Backend, len(cfg.Models))
	for name, mc := range cfg.Models {
		b, err := backend.New(name, mc)
		if err != nil {
			return nil, err
		}
		backends[name] = b
	}

	rps := completionRate(cfg)

	poolSize := runtime.NumCPU()
	if poolSize < 4 {
		poolSize = 4
	}

	var store *retrieval.Store
	var embed retrieval.EmbedFunc
	if pg := cfg.Memory.Postgresml; pg != nil && pg.DatabaseURL != "" {
		s, err := retrieval.Connect(context.Background(), pg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = s
		embed = retrieval.HashEmbed
	}

	return &Orchestrator{
		mirror:       m,
		cfg:          cfg,
		backends:     backends,
		store:        store,
		embed:        embed,
		mirrorQueue:  make(chan any, mirrorQueueDepth),
		backendQueue: make(chan any, backendQueueDepth),
		asyncGroup:   &errgroup.Group{},
		sem:          make(chan struct{}, poolSize),
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// newWithBackends builds an Orchestrator around already-constructed
// backends, used by tests to substitute fakes without a live HTTP endpoint.
func newWithBackends(m *mirror.Mirror, cfg *config.Config, backends map[string]backend.Backend) *Orchestrator {
	rps := completionRate(cfg)
	poolSize := runtime.NumCPU()
	if poolSize < 4 {
		poolSize = 4
	}
	return &Orchestrator{
		mirror:       m,
		cfg:          cfg,
		backends:     backends,
		mirrorQueue:  make(chan any, mirrorQueueDepth),
		backendQueue: make(chan any, backendQueueDepth),
		asyncGroup:   &errgroup.Group{},
		sem:          make(chan struct{}, poolSize),
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// completionRate resolves the configured completion model's
// max_requests_per_second, defaulting to 1 when unset: 1 req/s is the
// conservative floor that keeps the limiter from ever opening its bucket
// faster than the slowest documented provider.
func completionRate(cfg *config.Config) float64 {
	if cfg.Completion == nil {
		return 1
	}
	mc, ok := cfg.Models[cfg.Completion.Model]
	if !ok || mc.MaxRequestsPerSecond <= 0 {
		return 1
	}
	return mc.MaxRequestsPerSecond
}

// Run starts the Mirror worker and the Backend worker, blocking until ctx is
// canceled. Callers invoke this in its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	if o.store != nil {
		go o.store.Run(ctx)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.mirrorLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		o.backendLoop(ctx)
	}()
	wg.Wait()
	_ = o.asyncGroup.Wait()
}

// async runs fn on the shared worker pool, bounded to poolSize concurrent
// tasks.
func (o *Orchestrator) async(fn func()) {
	o.sem <- struct{}{}
	o.asyncGroup.Go(func() error {
		defer func() { <-o.sem }()
		fn()
		return nil
	})
}

// NotifyDidOpen enqueues a didOpen notification onto the Mirror queue.
func (o *Orchestrator) NotifyDidOpen(uri, text string) {
	o.mirrorQueue <- didOpenItem{URI: uri, Text: text}
}

// NotifyDidChange enqueues a didChange notification onto the Mirror queue.
func (o *Orchestrator) NotifyDidChange(uri string, changes []mirror.Change) {
	o.mirrorQueue <- didChangeItem{URI: uri, Changes: changes}
}

// NotifyDidRename enqueues a didRename notification onto the Mirror queue.
func (o *Orchestrator) NotifyDidRename(pairs [][2]string) {
	o.mirrorQueue <- didRenameItem{Pairs: pairs}
}

// mirrorLoop is the Mirror worker: it single-threads every mutation and
// every filter-text read against the Mirror, applying notifications strictly
// in arrival order. Prompt items go to the async runtime whole, snapshot
// read included, so the queue consumer itself never suspends; those reads
// are not ordered against later queue items.
func (o *Orchestrator) mirrorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-o.mirrorQueue:
			if !ok {
				return
			}
			switch v := item.(type) {
			case didOpenItem:
				o.mirror.Open(v.URI, v.Text)
			case didChangeItem:
				if err := o.mirror.Change(v.URI, v.Changes); err != nil {
					logging.Default().Warn("mirror change failed", "uri", v.URI, "error", err)
				}
			case didRenameItem:
				o.mirror.Rename(v.Pairs)
			case promptItem:
				v := v
				var fetch prompt.ContextFetcher
				if o.store != nil {
					fetch = o.fetchRetrievalContext
				}
				o.async(func() {
					p, err := prompt.Build(ctx, o.mirror, v.uri, v.pos, v.shape, v.maxContextTokens, v.pullMultiple, v.chatShaped, fetch)
					v.reply <- promptResult{p: p, err: err}
				})
			case filterTextItem:
				text, err := o.mirror.FilterText(v.uri, v.pos)
				v.reply <- filterTextResult{text: text, err: err}
			}
		}
	}
}

func (o *Orchestrator) buildPrompt(ctx context.Context, uri string, pos mirror.Position, shape prompt.Shape, maxContextTokens int, pullMultiple, chatShaped bool) (prompt.Prompt, error) {
	reply := make(chan promptResult, 1)
	item := promptItem{uri: uri, pos: pos, shape: shape, maxContextTokens: maxContextTokens, pullMultiple: pullMultiple, chatShaped: chatShaped, reply: reply}
	select {
	case o.mirrorQueue <- item:
	case <-ctx.Done():
		return prompt.Prompt{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.p, r.err
	case <-ctx.Done():
		return prompt.Prompt{}, ctx.Err()
	}
}

// fetchRetrievalContext is the prompt.ContextFetcher backing the
// retrieval-store Prompt Builder variant: it embeds queryText, asks the
// store for its nearest neighbors, and joins them into one context string.
func (o *Orchestrator) fetchRetrievalContext(ctx context.Context, queryText string) (string, error) {
	emb, err := o.embed(ctx, queryText)
	if err != nil {
		return "", err
	}
	chunks, err := o.store.Query(ctx, emb, retrievalTopK)
	if err != nil {
		return "", err
	}
	return retrieval.JoinContext(chunks, retrievalContextMaxRune), nil
}

func (o *Orchestrator) fetchFilterText(ctx context.Context, uri string, pos mirror.Position) (string, error) {
	reply := make(chan filterTextResult, 1)
	item := filterTextItem{uri: uri, pos: pos, reply: reply}
	select {
	case o.mirrorQueue <- item:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-reply:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RequestCompletion enqueues a completion request and blocks until it is
// dispatched and answered, or ctx is canceled. At most one completion
// request is pending at a time; a newer request enqueued while one is
// pending replaces it in the rate limiter's single pending slot. A
// dispatched request runs on the async runtime and the Backend worker does
// not wait for it, so a later request can be dispatched, and be in flight
// alongside it, as soon as the limiter allows. The
// superseded request's Reply channel never receives a value, so callers
// must select on ctx.Done() too.
func (o *Orchestrator) RequestCompletion(ctx context.Context, uri string, pos mirror.Position) (CompletionItem, error) {
	reply := make(chan CompletionResult, 1)
	req := &CompletionRequest{URI: uri, Position: pos, Reply: reply}

	select {
	case o.backendQueue <- req:
	case <-ctx.Done():
		return CompletionItem{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.Item, r.Err
	case <-ctx.Done():
		return CompletionItem{}, ctx.Err()
	}
}

// RequestGeneration enqueues a generation request and blocks until it is
// dispatched and answered, or ctx is canceled. Unlike completions,
// generation requests are never pre-empted or coalesced.
// postProcess overrides the two dedup trims for this request only; pass nil
// to apply the default-true behavior.
func (o *Orchestrator) RequestGeneration(ctx context.Context, uri, modelName string, pos mirror.Position, params map[string]any, postProcess *config.PostProcessConfig) (string, error) {
	reply := make(chan GenerationResult, 1)
	req := &GenerationRequest{URI: uri, Position: pos, ModelName: modelName, Params: params, PostProcess: postProcess, Reply: reply}

	select {
	case o.backendQueue <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case r := <-reply:
		return r.Text, r.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// backendLoop is the Backend worker: it drains the backend queue, holding at
// most one pending CompletionRequest (replacing it wholesale when a newer
// one arrives), and dispatches it to the async runtime once
// the rate limiter's token bucket allows. Generation requests bypass the
// rate limiter entirely and dispatch immediately.
func (o *Orchestrator) backendLoop(ctx context.Context) {
	ticker := time.NewTicker(rateTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.pendingMu.Lock()
			o.pendingCompletion = nil
			o.pendingMu.Unlock()
			return

		case item, ok := <-o.backendQueue:
			if !ok {
				return
			}
			switch v := item.(type) {
			case *CompletionRequest:
				o.pendingMu.Lock()
				o.pendingCompletion = v
				o.pendingMu.Unlock()
			case *GenerationRequest:
				v := v
				o.async(func() { o.dispatchGeneration(ctx, v) })
			}

		case <-ticker.C:
			o.pendingMu.Lock()
			pending := o.pendingCompletion
			var fire bool
			if pending != nil && o.limiter.Allow() {
				fire = true
				o.pendingCompletion = nil
			}
			o.pendingMu.Unlock()
			if fire {
				p := pending
				o.async(func() { o.dispatchCompletion(ctx, p) })
			}
		}
	}
}

// dispatchCompletion implements the per-request dispatch path for
// textDocument/completion: resolve the backend, build the prompt, fetch
// filter text, call do_generate, post-process, and build the CompletionItem.
func (o *Orchestrator) dispatchCompletion(ctx context.Context, req *CompletionRequest) {
	if o.cfg.Completion == nil {
		req.Reply <- CompletionResult{Err: lspaierrors.NewUnknownModelError("")}
		return
	}
	modelName := o.cfg.Completion.Model
	b, ok := o.backends[modelName]
	if !ok {
		req.Reply <- CompletionResult{Err: lspaierrors.NewUnknownModelError(modelName)}
		return
	}

	chatShaped := prompt.IsChatShaped(o.cfg.Completion.Parameters)
	maxTokens := prompt.MaxContextTokens(o.cfg.Completion.Parameters)
	pullMultiple := o.cfg.Memory.FileStore != nil

	p, err := o.buildPrompt(ctx, req.URI, req.Position, b.PromptShape(), maxTokens, pullMultiple, chatShaped)
	if err != nil {
		req.Reply <- CompletionResult{Err: err}
		return
	}
	if err := backend.RequireShape(b, modelName, p); err != nil {
		req.Reply <- CompletionResult{Err: err}
		return
	}

	filterText, err := o.fetchFilterText(ctx, req.URI, req.Position)
	if err != nil {
		req.Reply <- CompletionResult{Err: err}
		return
	}

	generated, err := b.DoGenerate(ctx, p, o.cfg.Completion.Parameters)
	if err != nil {
		req.Reply <- CompletionResult{Err: err}
		return
	}

	opts := postprocess.Options{
		RemoveDuplicateStart: o.cfg.Completion.RemoveDuplicateStart(),
		RemoveDuplicateEnd:   o.cfg.Completion.RemoveDuplicateEnd(),
	}
	text := postprocess.Process(generated, p, opts)

	req.Reply <- CompletionResult{Item: CompletionItem{
		Label:      "ai - " + text,
		FilterText: filterText,
		InsertText: text,
	}}
}

// dispatchGeneration implements the dispatch path for the custom
// textDocument/generation request: same shape as completion minus the
// filter-text step and the CompletionItem wrapping.
func (o *Orchestrator) dispatchGeneration(ctx context.Context, req *GenerationRequest) {
	b, ok := o.backends[req.ModelName]
	if !ok {
		req.Reply <- GenerationResult{Err: lspaierrors.NewUnknownModelError(req.ModelName)}
		return
	}

	chatShaped := prompt.IsChatShaped(req.Params)
	maxTokens := prompt.MaxContextTokens(req.Params)
	pullMultiple := o.cfg.Memory.FileStore != nil

	p, err := o.buildPrompt(ctx, req.URI, req.Position, b.PromptShape(), maxTokens, pullMultiple, chatShaped)
	if err != nil {
		req.Reply <- GenerationResult{Err: err}
		return
	}
	if err := backend.RequireShape(b, req.ModelName, p); err != nil {
		req.Reply <- GenerationResult{Err: err}
		return
	}

	generated, err := b.DoGenerate(ctx, p, req.Params)
	if err != nil {
		req.Reply <- GenerationResult{Err: err}
		return
	}

	opts := postprocess.Options{
		RemoveDuplicateStart: req.PostProcess.EffectiveRemoveDuplicateStart(),
		RemoveDuplicateEnd:   req.PostProcess.EffectiveRemoveDuplicateEnd(),
	}
	req.Reply <- GenerationResult{Text: postprocess.Process(generated, p, opts)}
}
