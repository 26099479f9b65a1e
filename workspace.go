package soarls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/jward/soarls/internal/analysis"
	"github.com/jward/soarls/internal/config"
	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/manifest"
	"github.com/jward/soarls/internal/scheduler"
	"github.com/jward/soarls/internal/telemetry"
)

// EntryPoint is an agent start file the workspace analyses.
type EntryPoint struct {
	// Name is the manifest name, or the path when the entry point has none.
	Name   string
	URI    string
	Active bool
}

// Project pairs an entry point with its latest completed analysis.
type Project struct {
	Entry    EntryPoint
	Analysis *analysis.ProjectAnalysis
}

// Listener is called from the analysis worker after every completed run.
type Listener func(ep EntryPoint, p *analysis.ProjectAnalysis)

// Workspace owns the documents of one agent directory, its entry points and
// their analyses.
type Workspace struct {
	root     string
	docs     *document.Store
	sched    *scheduler.Scheduler[*analysis.ProjectAnalysis]
	logger   *slog.Logger
	loader   document.Loader
	listener Listener
	limits   []analysis.Option

	mu       sync.RWMutex
	fileCfg  config.Config
	cfgSet   bool
	settings config.Settings
	cfg      config.Config
	manifest *manifest.Manifest
	adopted  bool
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger passed down to every component.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithConfig uses c instead of the workspace's config file.
func WithConfig(c config.Config) Option {
	return func(w *Workspace) {
		w.fileCfg = c
		w.cfgSet = true
	}
}

// WithManifest uses m instead of the workspace's soarAgents.json.
func WithManifest(m *manifest.Manifest) Option {
	return func(w *Workspace) { w.manifest = m }
}

// WithLoader replaces how closed documents are read.
func WithLoader(l document.Loader) Option {
	return func(w *Workspace) { w.loader = l }
}

// WithListener registers a callback for completed analysis runs.
func WithListener(fn Listener) Option {
	return func(w *Workspace) { w.listener = fn }
}

// WithEvaluationLimits bounds the evaluator per top-level command.
func WithEvaluationLimits(maxSteps, maxDepth int) Option {
	return func(w *Workspace) {
		w.limits = append(w.limits, analysis.WithLimits(maxSteps, maxDepth))
	}
}

// New opens the workspace rooted at root. The config file and manifest are
// read from root unless supplied as options. A missing manifest is not an
// error: the first document opened becomes the entry point.
func New(root string, opts ...Option) (*Workspace, error) {
	w := &Workspace{
		root:   root,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}

	if !w.cfgSet {
		c, err := config.LoadDir(root)
		if err != nil {
			return nil, fmt.Errorf("soarls: %w", err)
		}
		w.fileCfg = c
	}
	w.cfg = w.fileCfg

	if w.manifest == nil {
		m, err := manifest.Load(root)
		switch {
		case errors.Is(err, manifest.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("soarls: %w", err)
		default:
			w.manifest = m
		}
	}

	storeOpts := []document.StoreOption{document.WithLogger(w.logger)}
	if w.loader != nil {
		storeOpts = append(storeOpts, document.WithLoader(w.loader))
	}
	w.docs = document.NewStore(storeOpts...)
	w.sched = scheduler.New(w.analyse,
		scheduler.WithDelay(w.cfg.Debounce),
		scheduler.WithLogger(w.logger),
		scheduler.WithObserver(telemetry.SchedulerObserver{}))
	return w, nil
}

// Close stops the analysis worker.
func (w *Workspace) Close() error {
	w.sched.Close()
	return nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// Documents returns the document store.
func (w *Workspace) Documents() *document.Store { return w.docs }

// Config returns the effective configuration.
func (w *Workspace) Config() config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

func (w *Workspace) analyse(ctx context.Context, uri string) *analysis.ProjectAnalysis {
	w.mu.RLock()
	var rhs []string
	if w.manifest != nil {
		rhs = append(rhs, w.manifest.RHSFunctions...)
	}
	rhs = append(rhs, w.cfg.RHSFunctions...)
	w.mu.RUnlock()

	ctx, span := telemetry.StartRun(ctx, uri)
	opts := append([]analysis.Option{
		analysis.WithLogger(w.logger),
		analysis.WithRHSFunctions(rhs...),
	}, w.limits...)
	p := analysis.Analyze(ctx, w.docs, uri, opts...)

	n := 0
	for _, ds := range p.Diagnostics() {
		n += len(ds)
	}
	telemetry.EndRun(ctx, span, len(p.Files()), n, p.Elapsed())
	w.logger.Info("analysis complete",
		slog.String("entry", uri),
		slog.String("run", p.RunID().String()),
		slog.Int("files", len(p.Files())),
		slog.Int("diagnostics", n),
		slog.Duration("elapsed", p.Elapsed()))

	if w.listener != nil {
		ep, ok := w.entryPoint(uri)
		if !ok {
			ep = EntryPoint{Name: uri, URI: uri}
		}
		w.listener(ep, p)
	}
	return p
}

// EntryPoints returns the enabled entry points, active first.
func (w *Workspace) EntryPoints() []EntryPoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.entryPointsLocked()
}

func (w *Workspace) entryPointsLocked() []EntryPoint {
	if w.manifest == nil {
		return nil
	}
	eps := w.manifest.Ordered(w.cfg.ActiveEntryPoint)
	out := make([]EntryPoint, len(eps))
	for i, ep := range eps {
		out[i] = EntryPoint{Name: ep.Label(), URI: w.manifest.URI(ep), Active: i == 0}
	}
	return out
}

func (w *Workspace) entryPoint(uri string) (EntryPoint, bool) {
	for _, ep := range w.EntryPoints() {
		if ep.URI == uri {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// Active returns the active entry point.
func (w *Workspace) Active() (EntryPoint, bool) {
	eps := w.EntryPoints()
	if len(eps) == 0 {
		return EntryPoint{}, false
	}
	return eps[0], true
}

// adopt makes uri the entry point when there is no manifest.
func (w *Workspace) adopt(uri string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.manifest != nil {
		return
	}
	path, err := document.PathFromURI(uri)
	if err != nil {
		return
	}
	w.manifest = manifest.Single(path)
	w.adopted = true
	w.logger.Info("no manifest, using first opened document as entry point", slog.String("uri", uri))
}

// Projects returns every entry point that has a completed analysis, active
// first.
func (w *Workspace) Projects() []Project {
	var out []Project
	for _, ep := range w.EntryPoints() {
		if p, ok := w.sched.Latest(ep.URI); ok {
			out = append(out, Project{Entry: ep, Analysis: p})
		}
	}
	return out
}

// Analysis returns the latest analysis of the active entry point.
func (w *Workspace) Analysis() (*analysis.ProjectAnalysis, bool) {
	ep, ok := w.Active()
	if !ok {
		return nil, false
	}
	return w.sched.Latest(ep.URI)
}

// Next waits for the next completed run of the active entry point.
func (w *Workspace) Next(ctx context.Context) (*analysis.ProjectAnalysis, error) {
	ep, ok := w.Active()
	if !ok {
		return nil, errors.New("soarls: no entry point")
	}
	return w.sched.Next(ctx, ep.URI)
}

// AnalyzeNow analyses every enabled entry point without debouncing and
// returns the results, active first.
func (w *Workspace) AnalyzeNow(ctx context.Context) ([]Project, error) {
	var out []Project
	for _, ep := range w.EntryPoints() {
		p, err := w.sched.RunNow(ctx, ep.URI)
		if err != nil {
			return out, fmt.Errorf("soarls: analyse %s: %w", ep.Name, err)
		}
		out = append(out, Project{Entry: ep, Analysis: p})
	}
	return out, nil
}

// Query returns a QueryBuilder over the latest analyses.
func (w *Workspace) Query() *QueryBuilder {
	w.mu.RLock()
	full := w.cfg.FullCommentHover
	w.mu.RUnlock()
	return &QueryBuilder{docs: w.docs, projects: w.Projects(), fullCommentHover: full}
}

// submitIfContains schedules every entry point whose latest file set
// contains one of uris. An entry point whose first run is still scheduled or
// running has no file set yet and is always rescheduled. With activeOnly,
// only the active entry point is considered.
func (w *Workspace) submitIfContains(activeOnly bool, uris ...string) int {
	n := 0
	for _, ep := range w.EntryPoints() {
		if activeOnly && !ep.Active {
			break
		}
		p, ok := w.sched.Latest(ep.URI)
		if !ok {
			if w.sched.State(ep.URI) != scheduler.Idle {
				w.sched.Submit(ep.URI)
				n++
			}
			continue
		}
		if slices.ContainsFunc(uris, p.Contains) {
			w.sched.Submit(ep.URI)
			n++
		}
	}
	return n
}

// submitMissing schedules every entry point that was never analysed.
func (w *Workspace) submitMissing() {
	for _, ep := range w.EntryPoints() {
		if _, ok := w.sched.Latest(ep.URI); ok {
			continue
		}
		if w.sched.State(ep.URI) == scheduler.Idle {
			w.sched.Submit(ep.URI)
		}
	}
}

func (w *Workspace) submitAll() {
	for _, ep := range w.EntryPoints() {
		w.sched.Submit(ep.URI)
	}
}

// Submit schedules every enabled entry point.
func (w *Workspace) Submit() { w.submitAll() }

// Open registers client-owned text.
func (w *Workspace) Open(uri, text string, version int32) {
	uri = document.CanonicalURI(uri)
	w.docs.Open(uri, text, version)
	w.adopt(uri)
	w.submitMissing()
	w.submitIfContains(true, uri)
}

// Change applies edits to an open document. The active entry point is
// rescheduled when the file belongs to its latest file set.
func (w *Workspace) Change(uri string, version int32, changes ...Change) bool {
	uri = document.CanonicalURI(uri)
	if _, ok := w.docs.Change(uri, version, changes...); !ok {
		return false
	}
	w.submitIfContains(true, uri)
	return true
}

// Save reschedules every entry point that contains uri.
func (w *Workspace) Save(uri string) {
	w.submitIfContains(false, document.CanonicalURI(uri))
}

// CloseDocument hands uri back to the file system.
func (w *Workspace) CloseDocument(uri string) {
	uri = document.CanonicalURI(uri)
	w.docs.Close(uri)
	w.submitIfContains(false, uri)
}

// Refresh drops cached copies of closed documents that changed on disk and
// reschedules the entry points containing them. A change to the manifest or
// the config file reloads it.
func (w *Workspace) Refresh(uris ...string) {
	var changed []string
	reload := false
	for _, uri := range uris {
		uri = document.CanonicalURI(uri)
		if path, err := document.PathFromURI(uri); err == nil && filepath.Dir(path) == filepath.Clean(w.root) {
			switch filepath.Base(path) {
			case manifest.FileName, config.FileName:
				reload = true
				continue
			}
		}
		w.docs.Invalidate(uri)
		changed = append(changed, uri)
	}
	if reload {
		w.reload()
		return
	}
	w.submitIfContains(false, changed...)
}

// reload rereads the manifest and config file and reschedules everything.
func (w *Workspace) reload() {
	before := w.EntryPoints()

	w.mu.Lock()
	if m, err := manifest.Load(w.root); err == nil {
		w.manifest = m
		w.adopted = false
	} else if !errors.Is(err, manifest.ErrNotFound) {
		w.logger.Warn("manifest not reloaded", slog.String("error", err.Error()))
	} else if !w.adopted {
		w.manifest = nil
	}
	if !w.cfgSet {
		if c, err := config.LoadDir(w.root); err == nil {
			w.fileCfg = c
			w.cfg = c.Apply(w.settings)
		} else {
			w.logger.Warn("config not reloaded", slog.String("error", err.Error()))
		}
	}
	delay := w.cfg.Debounce
	w.mu.Unlock()

	after := w.EntryPoints()
	for _, ep := range before {
		if !slices.ContainsFunc(after, func(x EntryPoint) bool { return x.URI == ep.URI }) {
			w.sched.Forget(ep.URI)
		}
	}
	if w.sched.Delay() != delay {
		w.sched.SetDelay(delay)
	}
	w.submitAll()
}

// Configure applies client settings on top of the config file. Changing the
// debounce interval re-arms pending runs; changing the active entry point
// schedules it.
func (w *Workspace) Configure(s config.Settings) {
	w.mu.Lock()
	prevActive := w.activeURILocked()
	w.settings = s
	w.cfg = w.fileCfg.Apply(s)
	delay := w.cfg.Debounce
	active := w.activeURILocked()
	w.mu.Unlock()

	if w.sched.Delay() != delay {
		w.sched.SetDelay(delay)
	}
	if active != "" && active != prevActive {
		w.sched.Submit(active)
	}
}

func (w *Workspace) activeURILocked() string {
	eps := w.entryPointsLocked()
	if len(eps) == 0 {
		return ""
	}
	return eps[0].URI
}

// SetActive makes the named entry point active and schedules it.
func (w *Workspace) SetActive(name string) error {
	w.mu.Lock()
	if w.manifest == nil {
		w.mu.Unlock()
		return errors.New("soarls: no manifest")
	}
	ep, ok := w.manifest.Lookup(name)
	if !ok || !ep.IsEnabled() {
		w.mu.Unlock()
		return fmt.Errorf("soarls: unknown entry point %q", name)
	}
	w.settings.ActiveEntryPoint = &name
	w.cfg = w.fileCfg.Apply(w.settings)
	uri := w.manifest.URI(ep)
	w.mu.Unlock()

	w.logger.Info("active entry point changed", slog.String("name", name))
	w.sched.Submit(uri)
	return nil
}
