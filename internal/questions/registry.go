package questions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownQuestionType indicates no module is registered for a question type.
var ErrUnknownQuestionType = errors.New("unknown question type")

// Registry maps question type identifiers to their modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register binds a module to a question type. Types are case-insensitive.
func (r *Registry) Register(questionType string, module Module) error {
	key := normalizeType(questionType)
	if key == "" {
		return errors.New("question type must not be empty")
	}
	if module == nil {
		return fmt.Errorf("module for %q must not be nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[key]; exists {
		return fmt.Errorf("question type %q already registered", key)
	}
	r.modules[key] = module
	return nil
}

// MustRegister is Register for startup wiring.
func (r *Registry) MustRegister(questionType string, module Module) {
	if err := r.Register(questionType, module); err != nil {
		panic(err)
	}
}

// Resolve returns the module for the question type.
func (r *Registry) Resolve(questionType string) (Module, error) {
	key := normalizeType(questionType)

	r.mu.RLock()
	module, ok := r.modules[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestionType, questionType)
	}
	return module, nil
}

// Types lists the registered question types in lexical order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.modules))
	for key := range r.modules {
		types = append(types, key)
	}
	sort.Strings(types)
	return types
}

func normalizeType(questionType string) string {
	return strings.ToLower(strings.TrimSpace(questionType))
}

// NewDefaultRegistry returns a registry holding the built-in question types.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.MustRegister(TypeCalculation, NewCalculation())
	registry.MustRegister(TypeCode, NewCode())
	registry.MustRegister(TypeEssay, NewEssay())
	return registry
}
