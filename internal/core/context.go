package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// serviceRegistry holds the objects modules publish for each other, keyed
// by dotted service names such as "usage.store" or "provider.openai".
type serviceRegistry struct {
	mu   sync.RWMutex
	byID map[string]any
}

func (r *serviceRegistry) set(name string, svc any) {
	r.mu.Lock()
	r.byID[name] = svc
	r.mu.Unlock()
}

func (r *serviceRegistry) get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.byID[name]
	return svc, ok
}

func (r *serviceRegistry) names(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name := range r.byID {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// AppContext is what a module sees of the application while it is loaded
// and run. Contexts derived from one root share the service registry.
type AppContext struct {
	// Logger carries a "module" attribute once scoped with ForModule.
	Logger *slog.Logger

	// DataDir is where modules keep persistent files.
	DataDir string

	root     *slog.Logger
	sections map[string]yaml.Node
	reg      *serviceRegistry
}

// NewAppContext returns a root context. A nil logger means slog.Default().
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:  logger,
		DataDir: dataDir,
		root:    logger,
		reg:     &serviceRegistry{byID: map[string]any{}},
	}
}

// WithModuleConfigs returns a copy of ctx that configures modules from
// sections, keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(sections map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.sections = sections
	return &cp
}

// ForModule returns a copy of ctx whose logger is tagged with id.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// RegisterService publishes svc under name, replacing any earlier value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.reg.set(name, svc)
}

func (ctx *AppContext) GetService(name string) (any, bool) {
	return ctx.reg.get(name)
}

// ServicesWithPrefix lists the registered names starting with prefix,
// sorted.
func (ctx *AppContext) ServicesWithPrefix(prefix string) []string {
	return ctx.reg.names(prefix)
}

// Lookup returns the service registered under name when it is a T.
func Lookup[T any](ctx *AppContext, name string) (T, bool) {
	svc, _ := ctx.reg.get(name)
	v, ok := svc.(T)
	return v, ok
}

// LoadModule instantiates the module registered under id, then runs
// Configure (only when a section exists), Provision and Validate. A module
// failing validation is stopped before the error is returned.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}
	mod := info.New()

	if err := ctx.configure(id, mod); err != nil {
		return nil, fmt.Errorf("module %s: configure: %w", id, err)
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("module %s: provision: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			if s, ok := mod.(Stopper); ok {
				_ = s.Stop(context.Background())
			}
			return nil, fmt.Errorf("module %s: validate: %w", id, err)
		}
	}
	return mod, nil
}

func (ctx *AppContext) configure(id string, mod Module) error {
	c, ok := mod.(Configurable)
	if !ok {
		return nil
	}
	node, found := ctx.sections[id]
	if !found {
		return nil
	}
	return c.Configure(&node)
}
