package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/mbrel/internal/ir"
)

// Registry stores normalized relationship definitions keyed by id.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]ir.Relationship
	order    []string
	validate *validator.Validate
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byID:     make(map[string]ir.Relationship),
		order:    []string{},
		validate: newValidator(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newValidator reports field names by their json tag so errors read
// "from.field.taxonomy" rather than Go field names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Register normalizes and validates def, then stores it. Registering an id
// that already exists replaces the earlier definition.
func (r *Registry) Register(def Definition) (ir.Relationship, error) {
	rel := normalize(def)
	if err := r.check(rel); err != nil {
		return ir.Relationship{}, err
	}

	r.mu.Lock()
	_, replaced := r.byID[rel.ID]
	r.byID[rel.ID] = rel
	if !replaced {
		r.order = append(r.order, rel.ID)
	}
	r.mu.Unlock()

	r.logger.Debug("relationship registered",
		"relationship", rel.ID,
		"from", rel.From.ObjectType,
		"to", rel.To.ObjectType,
		"reciprocal", rel.Reciprocal,
		"replaced", replaced)

	return rel, nil
}

// check runs struct validation and converts failures to a DefinitionError.
func (r *Registry) check(rel ir.Relationship) error {
	err := r.validate.Struct(rel)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate relationship %q: %w", rel.ID, err)
	}

	defErr := &DefinitionError{ID: rel.ID}
	for _, fe := range fieldErrs {
		defErr.Errors = append(defErr.Errors, ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Tag:     fe.Tag(),
			Message: ruleMessage(fe),
		})
	}
	return defErr
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}

// Get returns the relationship registered under id.
func (r *Registry) Get(id string) (ir.Relationship, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.byID[NormalizeID(id)]
	return rel, ok
}

// Lookup is Get with a NotRegisteredError for unknown ids.
func (r *Registry) Lookup(id string) (ir.Relationship, error) {
	rel, ok := r.Get(id)
	if !ok {
		return ir.Relationship{}, &NotRegisteredError{ID: id}
	}
	return rel, nil
}

// All returns every relationship in registration order.
func (r *Registry) All() []ir.Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ir.Relationship, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// FilterBy returns the relationships with objectType on either side, in
// registration order.
func (r *Registry) FilterBy(objectType ir.ObjectType) []ir.Relationship {
	out := []ir.Relationship{}
	for _, rel := range r.All() {
		if rel.HasObjectType(objectType) {
			out = append(out, rel)
		}
	}
	return out
}

// Len returns the number of registered relationships.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
