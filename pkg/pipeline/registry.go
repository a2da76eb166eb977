package pipeline

import (
	"sort"
	"sync"

	"github.com/gosimple/slug"

	"github.com/autoflow-hq/core/pkg/logger"
)

// Filter narrows List results. Tags use AND semantics; Area is exact match.
type Filter struct {
	Area string
	Tags []string
}

// Registry is the process-wide catalog of pipelines, keyed by unique name.
// It is fully populated during a deterministic startup phase and treated as
// read-only once concurrent traffic is accepted.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]Pipeline
	bySlug    map[string]string
	logger    *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.New("registry")
	}
	return &Registry{
		pipelines: make(map[string]Pipeline),
		bySlug:    make(map[string]string),
		logger:    log,
	}
}

// Register adds a pipeline to the catalog. It fails fast on a missing name or
// description and on any name collision; the registry is append-only after
// startup.
func (r *Registry) Register(p Pipeline) error {
	if p == nil {
		return &ValidationError{Message: "pipeline cannot be nil"}
	}

	desc := p.Descriptor()
	if desc.Name == "" {
		return &ValidationError{Message: "pipeline name is required"}
	}
	if desc.Description == "" {
		return &ValidationError{Message: "pipeline description is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pipelines[desc.Name]; exists {
		return &DuplicateNameError{Name: desc.Name}
	}

	urlSlug := slug.Make(desc.Name)
	if owner, taken := r.bySlug[urlSlug]; taken {
		return &DuplicateNameError{Name: desc.Name + " (slug collides with " + owner + ")"}
	}

	r.pipelines[desc.Name] = p
	r.bySlug[urlSlug] = desc.Name

	r.logger.Info().
		Str("action", "pipeline_registered").
		Str("pipeline", desc.Name).
		Str("slug", urlSlug).
		Str("area", desc.Area).
		Strs("tags", desc.Tags).
		Msg("Registered pipeline")

	return nil
}

// Resolve returns the singleton instance for a name. Instances are shared
// across calls; per-call state must live inside Execute.
func (r *Registry) Resolve(name string) (Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pipelines[name]
	if !ok {
		return nil, &NotFoundError{Resource: "pipeline", Key: name}
	}
	return p, nil
}

// ResolveSlug returns the pipeline registered under a URL-safe slug. Webhook
// receivers address pipelines this way.
func (r *Registry) ResolveSlug(urlSlug string) (Pipeline, error) {
	r.mu.RLock()
	name, ok := r.bySlug[urlSlug]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Resource: "pipeline", Key: urlSlug}
	}
	return r.Resolve(name)
}

// Describe returns the descriptor for a name.
func (r *Registry) Describe(name string) (Descriptor, error) {
	p, err := r.Resolve(name)
	if err != nil {
		return Descriptor{}, err
	}
	desc := p.Descriptor()
	desc.Slug = slug.Make(desc.Name)
	return desc, nil
}

// List returns descriptors matching the filter, sorted by name.
func (r *Registry) List(filter Filter) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Descriptor
	for _, p := range r.pipelines {
		desc := p.Descriptor()
		if filter.Area != "" && desc.Area != filter.Area {
			continue
		}
		if !hasAllTags(desc, filter.Tags) {
			continue
		}
		desc.Slug = slug.Make(desc.Name)
		out = append(out, desc)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all registered pipeline names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exists reports whether a pipeline name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pipelines[name]
	return ok
}

// Unregister removes a pipeline. Intended for test teardown only; production
// code never removes registrations.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipelines[name]; ok {
		delete(r.bySlug, slug.Make(p.Descriptor().Name))
		delete(r.pipelines, name)
	}
}

func hasAllTags(desc Descriptor, tags []string) bool {
	for _, tag := range tags {
		if !desc.HasTag(tag) {
			return false
		}
	}
	return true
}
