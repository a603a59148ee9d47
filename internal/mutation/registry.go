package mutation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	unknownHandlerTemplateConstant      = "%w: %s (registered: %s)"
	unknownHandlerMessageConstant       = "unknown handler"
	handlerBuildErrorTemplateConstant   = "handler %s: %w"
	duplicateRegistrationTemplate       = "mutation: handler %q registered twice"
	invalidRegistrationTemplate         = "mutation: invalid registration for %q"
	registeredHandlersSeparatorConstant = ", "
)

// ErrUnknownHandler indicates a definition naming a handler that is not registered.
var ErrUnknownHandler = errors.New(unknownHandlerMessageConstant)

// Environment supplies the collaborators a handler may use.
type Environment struct {
	FileSystem afero.Fs
	Logger     *zap.Logger
}

// Factory constructs a handler from its definition.
type Factory func(definition Definition, environment Environment) (Handler, error)

// Registration describes a registered handler.
type Registration struct {
	Name        string
	Description string
	Factory     Factory
}

// Registry resolves handler names to factories.
type Registry struct {
	mutex         sync.RWMutex
	registrations map[string]Registration
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{registrations: make(map[string]Registration)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process wide registry populated by handler packages.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// RegisterHandler adds a factory to the default registry. It panics on duplicate names.
func RegisterHandler(name string, description string, factory Factory) {
	defaultRegistry.Register(Registration{Name: name, Description: description, Factory: factory})
}

// Register adds a registration. It panics on an empty name, a nil factory, or a duplicate name.
func (registry *Registry) Register(registration Registration) {
	name := strings.TrimSpace(registration.Name)
	if len(name) == 0 || registration.Factory == nil {
		panic(fmt.Sprintf(invalidRegistrationTemplate, registration.Name))
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, exists := registry.registrations[name]; exists {
		panic(fmt.Sprintf(duplicateRegistrationTemplate, name))
	}
	registration.Name = name
	registry.registrations[name] = registration
}

// Registrations lists registered handlers sorted by name.
func (registry *Registry) Registrations() []Registration {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	registrations := make([]Registration, 0, len(registry.registrations))
	for _, registration := range registry.registrations {
		registrations = append(registrations, registration)
	}
	sort.Slice(registrations, func(left int, right int) bool {
		return registrations[left].Name < registrations[right].Name
	})
	return registrations
}

// Build resolves definition.Handler and constructs the handler. Unknown names
// and factory failures are reported before any repository is touched.
func (registry *Registry) Build(definition Definition, environment Environment) (Handler, error) {
	registry.mutex.RLock()
	registration, exists := registry.registrations[strings.TrimSpace(definition.Handler)]
	registry.mutex.RUnlock()
	if !exists {
		names := make([]string, 0)
		for _, known := range registry.Registrations() {
			names = append(names, known.Name)
		}
		return nil, fmt.Errorf(unknownHandlerTemplateConstant, ErrUnknownHandler, definition.Handler, strings.Join(names, registeredHandlersSeparatorConstant))
	}
	if environment.FileSystem == nil {
		environment.FileSystem = afero.NewOsFs()
	}
	if environment.Logger == nil {
		environment.Logger = zap.NewNop()
	}

	handler, buildError := registration.Factory(definition, environment)
	if buildError != nil {
		return nil, fmt.Errorf(handlerBuildErrorTemplateConstant, registration.Name, buildError)
	}
	if metadataError := handler.Metadata().Validate(); metadataError != nil {
		return nil, fmt.Errorf(handlerBuildErrorTemplateConstant, registration.Name, metadataError)
	}
	return handler, nil
}
