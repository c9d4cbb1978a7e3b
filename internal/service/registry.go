package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/domain/session"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/instrument"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
)

var (
	ErrToolNotFound = errors.New("tool not found")
	ErrDuplicate    = errors.New("tool already registered")
)

// Handler executes a tool against a live session.
type Handler func(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error)

// ToolSpec pairs a tool descriptor with its handler.
type ToolSpec struct {
	types.Tool
	Handler Handler
}

// Provider contributes a group of tools.
type Provider interface {
	Tools() []ToolSpec
}

type entry struct {
	tool    types.Tool
	handler instrument.Handler
}

// Registry manages the instrumented tool catalog
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*entry
	sessions *session.Registry
	wrapper  *instrument.Instrumenter
}

// NewRegistry creates a tool registry that executes against sessions from
// the given session registry. in may be nil to register handlers unwrapped.
func NewRegistry(sessions *session.Registry, in *instrument.Instrumenter) *Registry {
	return &Registry{
		tools:    make(map[string]*entry),
		sessions: sessions,
		wrapper:  in,
	}
}

// Register adds every tool of the provider. Handlers are wrapped once here.
func (r *Registry) Register(p Provider) error {
	for _, spec := range p.Tools() {
		if err := r.RegisterTool(spec); err != nil {
			return err
		}
	}
	return nil
}

// RegisterTool adds a single tool.
func (r *Registry) RegisterTool(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %s: handler cannot be nil", spec.Name)
	}

	h := adapt(spec.Handler)
	if r.wrapper != nil {
		h = r.wrapper.Wrap(spec.Name, h)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, spec.Name)
	}
	r.tools[spec.Name] = &entry{tool: spec.Tool, handler: h}
	return nil
}

// adapt lifts a concrete-session handler to the instrumentation signature.
func adapt(h Handler) instrument.Handler {
	return func(ctx context.Context, sess instrument.Session, args map[string]interface{}) (interface{}, error) {
		s, ok := sess.(*session.Session)
		if !ok {
			return nil, fmt.Errorf("unsupported session type %T", sess)
		}
		return h(ctx, s, args)
	}
}

// Get retrieves a tool descriptor by name
func (r *Registry) Get(name string) (types.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return types.Tool{}, false
	}
	return e.tool, true
}

// List returns all tools sorted by name
func (r *Registry) List() []types.Tool {
	r.mu.RLock()
	tools := make([]types.Tool, 0, len(r.tools))
	for _, e := range r.tools {
		tools = append(tools, e.tool)
	}
	r.mu.RUnlock()

	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})
	return tools
}

// Discover finds tools relevant to a free-text intent, best first.
func (r *Registry) Discover(intent string, limit int) []types.Tool {
	intent = strings.ToLower(intent)

	type scored struct {
		tool  types.Tool
		score float64
	}

	var results []scored
	for _, tool := range r.List() {
		if score := relevance(intent, tool); score > 0 {
			results = append(results, scored{tool: tool, score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	tools := make([]types.Tool, len(results))
	for i, res := range results {
		tools[i] = res.tool
	}
	return tools
}

// Execute runs a tool against the session with the given id, creating the
// session if needed.
func (r *Registry) Execute(ctx context.Context, sessionID, name string, args map[string]interface{}) (*types.Result, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	sess, err := r.sessions.GetOrCreate(sessionID, nil)
	if err != nil {
		return nil, err
	}
	sess.Touch()
	defer sess.Touch()

	if args == nil {
		args = map[string]interface{}{}
	}

	data, err := e.handler(ctx, sess, args)
	if err != nil {
		return &types.Result{Success: false, Error: stringPtr(err.Error())}, err
	}
	return &types.Result{Success: true, Data: data}, nil
}

// Stats returns registry statistics
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	namespaces := make(map[string]int)
	for name := range r.tools {
		ns := name
		if i := strings.IndexByte(name, '.'); i > 0 {
			ns = name[:i]
		}
		namespaces[ns]++
	}

	return map[string]interface{}{
		"total_tools":  len(r.tools),
		"namespaces":   namespaces,
		"instrumented": r.wrapper != nil,
	}
}

func relevance(intent string, tool types.Tool) float64 {
	score := 0.0

	name := strings.ToLower(tool.Name)
	if strings.Contains(intent, name) {
		score += 10.0
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 && strings.Contains(intent, name[i+1:]) {
		score += 6.0
	}

	for _, word := range strings.Fields(strings.ToLower(tool.Description)) {
		if len(word) > 3 && strings.Contains(intent, word) {
			score += 2.0
		}
	}

	for _, p := range tool.Parameters {
		if strings.Contains(intent, strings.ToLower(p.Name)) {
			score += 1.0
		}
	}

	return score
}

func stringPtr(s string) *string {
	return &s
}
