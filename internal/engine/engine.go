// Package engine owns the definition table and dispatches lifecycle hook
// execution against it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/watzon/actra/internal/definition"
	"github.com/watzon/actra/internal/expr"
	"github.com/watzon/actra/internal/metrics"
	"github.com/watzon/actra/internal/permissions"
	"github.com/watzon/actra/internal/value"
)

// DefaultHookTimeout is the wall-clock deadline per hook invocation.
const DefaultHookTimeout = 5 * time.Second

// Engine holds the loaded definition table and runs hooks against it. The
// table is read-mostly: hook dispatch reads under a shared lock, reloads
// replace entries wholesale so concurrent readers observe either the old
// or the new definition, never a mix.
type Engine struct {
	logger  zerolog.Logger
	collab  Collaborators
	perms   *permissions.Engine
	timeout time.Duration

	mu   sync.RWMutex
	defs map[string]*definition.Definition

	executed uint64
	failed   uint64

	kindMu sync.Mutex
	byKind map[definition.HookKind]uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides the per-hook wall-clock deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithPermissions attaches a permission rule engine; rules compile when
// definitions load.
func WithPermissions(p *permissions.Engine) Option {
	return func(e *Engine) { e.perms = p }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine bound to its collaborators.
func New(c Collaborators, opts ...Option) *Engine {
	e := &Engine{
		collab:  c,
		timeout: DefaultHookTimeout,
		defs:    make(map[string]*definition.Definition),
		byKind:  make(map[definition.HookKind]uint64),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadDefinition validates and registers an already-decoded definition.
// On failure the previously loaded definition for the identifier stays in
// place.
func (e *Engine) LoadDefinition(def *definition.Definition) error {
	if errs := definition.Validate(def); len(errs) > 0 {
		return errs
	}
	return e.register(def)
}

// LoadDefinitionFromJSON parses, validates, and registers one definition.
func (e *Engine) LoadDefinitionFromJSON(data []byte) error {
	def, err := definition.Parse(data)
	if err != nil {
		return err
	}
	return e.register(def)
}

// LoadDefinitionFromFile loads one definition file, picking the decoder
// from the file extension.
func (e *Engine) LoadDefinitionFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading definition file: %w", err)
	}
	def, err := definition.ParseBytes(path, data)
	if err != nil {
		return err
	}
	return e.register(def)
}

// LoadReport is the outcome of a directory load: which type identifiers
// loaded and which files failed.
type LoadReport struct {
	Loaded []string
	Failed map[string]error
}

// LoadDefinitionsFromDir loads every definition file in a directory. A
// malformed file fails that file only; the remaining files still load.
func (e *Engine) LoadDefinitionsFromDir(dir string) (*LoadReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions directory: %w", err)
	}

	report := &LoadReport{Failed: make(map[string]error)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			report.Failed[entry.Name()] = err
			metrics.RecordDefinitionLoadFailure()
			continue
		}
		def, err := definition.ParseBytes(entry.Name(), data)
		if err == nil {
			err = e.register(def)
		}
		if err != nil {
			report.Failed[entry.Name()] = err
			metrics.RecordDefinitionLoadFailure()
			e.logger.Warn().Err(err).Str("file", entry.Name()).Msg("definition failed to load")
			continue
		}
		report.Loaded = append(report.Loaded, def.Type)
	}

	sort.Strings(report.Loaded)
	e.logger.Info().
		Int("loaded", len(report.Loaded)).
		Int("failed", len(report.Failed)).
		Str("dir", dir).
		Msg("definitions loaded")
	return report, nil
}

func (e *Engine) register(def *definition.Definition) error {
	if e.perms != nil {
		if err := e.perms.LoadRules(def.Type, def.Permissions); err != nil {
			return definition.ValidationErrors{{
				Path:    "permissions",
				Message: err.Error(),
			}}
		}
	}

	e.mu.Lock()
	e.defs[def.Type] = def
	n := len(e.defs)
	e.mu.Unlock()

	metrics.SetDefinitionsLoaded(n)
	e.logger.Debug().
		Str("type", def.Type).
		Str("version", def.Version).
		Msg("definition registered")
	return nil
}

// Definition returns the loaded definition for an exact type identifier.
func (e *Engine) Definition(typeID string) (*definition.Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.defs[typeID]
	return def, ok
}

// ResolveType finds the definition for a type and subtype, preferring the
// qualified "TYPE:SUBTYPE" entry and falling back to the bare type.
func (e *Engine) ResolveType(typeID, subtype string) (*definition.Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if subtype != "" {
		if def, ok := e.defs[typeID+":"+subtype]; ok {
			return def, true
		}
	}
	def, ok := e.defs[typeID]
	return def, ok
}

// Types lists the loaded type identifiers in sorted order.
func (e *Engine) Types() []string {
	e.mu.RLock()
	types := make([]string, 0, len(e.defs))
	for t := range e.defs {
		types = append(types, t)
	}
	e.mu.RUnlock()
	sort.Strings(types)
	return types
}

// ExecuteHook runs one lifecycle hook for an action type. Types without a
// list for the requested hook kind succeed as a no-op. Execution is raced
// against the engine's wall-clock deadline; on timeout the invocation's
// variable mutations are discarded and ErrHookTimeout is returned.
func (e *Engine) ExecuteHook(ctx context.Context, typeID string, kind definition.HookKind, hc *HookContext) (*ExecResult, error) {
	start := time.Now()
	res, err := e.executeHook(ctx, typeID, kind, hc)

	atomic.AddUint64(&e.executed, 1)
	e.kindMu.Lock()
	e.byKind[kind]++
	e.kindMu.Unlock()
	status := "ok"
	switch {
	case err == nil:
	case isAbort(err):
		status = "aborted"
		atomic.AddUint64(&e.failed, 1)
	default:
		status = "error"
		atomic.AddUint64(&e.failed, 1)
	}
	metrics.RecordHookExecution(typeID, string(kind), status, time.Since(start))
	return res, err
}

func (e *Engine) executeHook(ctx context.Context, typeID string, kind definition.HookKind, hc *HookContext) (*ExecResult, error) {
	def, ok := e.ResolveType(typeID, hc.Subtype)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, typeID)
	}

	ops, ok := def.Hooks.Get(kind)
	if !ok {
		return &ExecResult{}, nil
	}

	logger := e.logger.With().
		Str("type", def.Type).
		Str("hook", string(kind)).
		Logger()

	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		res  *ExecResult
		vars map[string]value.Value
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		res, vars, err := execute(tctx, ops, hc, e.collab, e.ResolveType, logger)
		done <- outcome{res: res, vars: vars, err: err}
	}()

	select {
	case out := <-done:
		if errors.Is(out.err, context.DeadlineExceeded) {
			logger.Warn().Dur("timeout", e.timeout).Msg("hook abandoned at deadline")
			return nil, fmt.Errorf("%w: %s %s", ErrHookTimeout, def.Type, kind)
		}
		if out.err != nil {
			logger.Debug().Err(out.err).Msg("hook failed")
			return nil, out.err
		}
		hc.Vars = out.vars
		return out.res, nil
	case <-tctx.Done():
		logger.Warn().Dur("timeout", e.timeout).Msg("hook abandoned at deadline")
		return nil, fmt.Errorf("%w: %s %s", ErrHookTimeout, def.Type, kind)
	}
}

// ValidateAction checks the context's fields and content against the
// resolved definition. String content may come back sanitized; the
// context is updated in place.
func (e *Engine) ValidateAction(hc *HookContext) error {
	def, ok := e.ResolveType(hc.Type, hc.Subtype)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActionType, hc.Type)
	}

	fields := map[string]value.Value{
		"content":  hc.Content,
		"audience": optString(hc.Audience),
		"parent":   optString(hc.Parent),
		"subject":  optString(hc.Subject),
	}
	if len(hc.Attachments) > 0 {
		items := make([]value.Value, 0, len(hc.Attachments))
		for _, id := range hc.Attachments {
			items = append(items, value.String(id))
		}
		fields["attachments"] = value.List(items...)
	}

	if errs := definition.CheckFields(def, fields); len(errs) > 0 {
		return errs
	}

	content, err := definition.ValidateContent(def, hc.Content)
	if err != nil {
		return err
	}
	hc.Content = content
	return nil
}

// ActionKey renders the definition's key pattern against the context.
// Types without a key pattern yield an empty key.
func (e *Engine) ActionKey(hc *HookContext) (string, error) {
	def, ok := e.ResolveType(hc.Type, hc.Subtype)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownActionType, hc.Type)
	}
	if def.KeyPattern == "" {
		return "", nil
	}

	v, err := expr.Evaluate(expr.Str(def.KeyPattern), hc)
	if err != nil {
		return "", fmt.Errorf("rendering key pattern: %w", err)
	}
	return v.Stringify(), nil
}

// Stats reports engine counters.
type Stats struct {
	DefinitionsLoaded int
	HooksExecuted     uint64
	HooksFailed       uint64
	HooksByKind       map[definition.HookKind]uint64
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	n := len(e.defs)
	e.mu.RUnlock()

	e.kindMu.Lock()
	byKind := make(map[definition.HookKind]uint64, len(e.byKind))
	for kind, count := range e.byKind {
		byKind[kind] = count
	}
	e.kindMu.Unlock()

	return Stats{
		DefinitionsLoaded: n,
		HooksExecuted:     atomic.LoadUint64(&e.executed),
		HooksFailed:       atomic.LoadUint64(&e.failed),
		HooksByKind:       byKind,
	}
}

func isAbort(err error) bool {
	var abortErr *AbortError
	return errors.As(err, &abortErr)
}
