package serialization

import (
	"reflect"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// A ClassDescriptor describes one registered class.
type ClassDescriptor struct {
	Name    string
	Version uint16
	Factory Factory

	concrete reflect.Type
}

// Registry maps class names to factories. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]ClassDescriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: map[string]ClassDescriptor{}}
}

// DefaultRegistry is the process wide registry used by archives that are not given one.
var DefaultRegistry = NewRegistry()

// Register associates name with factory. It is idempotent for a factory producing the
// same concrete type at the same version; any other factory under an existing name is
// rejected with ErrDuplicateRegistration.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("cannot register a class with an empty name")
	}
	if factory == nil {
		return errors.Errorf("cannot register class %q with a nil factory", name)
	}
	sample := factory()
	if sample == nil {
		return errors.Errorf("factory for class %q returned nil", name)
	}
	if sample.ClassName() != name {
		return errors.Errorf("factory registered as %q builds class %q", name, sample.ClassName())
	}
	desc := ClassDescriptor{
		Name:     name,
		Version:  sample.SerializationVersion(),
		Factory:  factory,
		concrete: reflect.TypeOf(sample),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.classes[name]; ok {
		if old.concrete == desc.concrete && old.Version == desc.Version {
			return nil
		}
		return errors.Wrapf(ErrDuplicateRegistration, "class %q is already registered to %v (version %d)",
			name, old.concrete, old.Version)
	}
	r.classes[name] = desc
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (ClassDescriptor, bool) {
	r.mu.RLock()
	desc, ok := r.classes[name]
	r.mu.RUnlock()
	return desc, ok
}

// Create returns a fresh instance of the named class.
func (r *Registry) Create(name string) (Serializable, error) {
	desc, ok := r.Lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownClass, "%q", name)
	}
	return desc.Factory(), nil
}

// Names returns every registered class name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := lo.Keys(r.classes)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Register registers a class in the DefaultRegistry.
func Register(name string, factory Factory) error {
	return DefaultRegistry.Register(name, factory)
}

// MustRegister registers a class in the DefaultRegistry and panics on failure. It is
// meant to be called from init functions.
func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// Create builds an instance of the named class from the DefaultRegistry.
func Create(name string) (Serializable, error) {
	return DefaultRegistry.Create(name)
}

// Lookup looks a class up in the DefaultRegistry.
func Lookup(name string) (ClassDescriptor, bool) {
	return DefaultRegistry.Lookup(name)
}
