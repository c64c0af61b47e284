package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/graphql-go/graphql"
)

// rootKind designates which root object a generated field belongs to.
type rootKind int

const (
	rootQuery rootKind = iota
	rootMutation
	rootSubscription
)

func (k rootKind) String() string {
	switch k {
	case rootQuery:
		return "Query"
	case rootMutation:
		return "Mutation"
	case rootSubscription:
		return "Subscription"
	default:
		return "Unknown"
	}
}

// fieldBuilder defers root-field construction until every type has been
// registered, so argument and output types can reference declarations
// visited later.
type fieldBuilder func() (*graphql.Field, error)

type rootField struct {
	kind  rootKind
	name  string
	build fieldBuilder
}

// Context is the schema-construction context: the accumulating symbol table
// and root-field registry the builders emit into. Registration operations
// are append-only per unique key and safe for concurrent use by sibling
// traversal tasks. Finalize turns the accumulated state into an executable
// schema.
type Context struct {
	mu         sync.Mutex
	types      map[string]graphql.Type
	enums      map[string]bool
	fields     []rootField
	fieldNames map[string]bool
	errs       []error
	logger     *slog.Logger
}

// NewContext creates an empty construction context with the builtin scalar
// types pre-registered.
func NewContext(logger *slog.Logger) *Context {
	return &Context{
		types:      builtinTypes(),
		enums:      make(map[string]bool),
		fieldNames: make(map[string]bool),
		logger:     logger,
	}
}

// RegisterEnum records a schema enum type under its unique name.
func (c *Context) RegisterEnum(name string, enum *graphql.Enum) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.types[name]; exists {
		return fmt.Errorf("schema type %s registered twice", name)
	}
	c.types[name] = enum
	c.enums[name] = true
	return nil
}

// RegisterType records an object or input-object type under its unique name.
func (c *Context) RegisterType(name string, t graphql.Type) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.types[name]; exists {
		return fmt.Errorf("schema type %s registered twice", name)
	}
	c.types[name] = t
	return nil
}

// EnsureType registers a type if its name is still free. Used for shared
// support types that several builders may emit, like the liveness-check
// status object.
func (c *Context) EnsureType(name string, build func() graphql.Type) graphql.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, exists := c.types[name]; exists {
		return t
	}
	t := build()
	c.types[name] = t
	return t
}

// IsEnum reports whether the base name denotes a registered enum type.
func (c *Context) IsEnum(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enums[name]
}

// Output resolves a registered type name for use in an output position.
// A dangling reference is recorded and reported when the schema is
// finalized; resolution itself never pre-validates.
func (c *Context) Output(name string) graphql.Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.types[name]
	if !ok {
		c.errs = append(c.errs, fmt.Errorf("unresolved schema type %s", name))
		return nil
	}
	out, ok := t.(graphql.Output)
	if !ok {
		c.errs = append(c.errs, fmt.Errorf("schema type %s is not usable as an output type", name))
		return nil
	}
	return out
}

// Input resolves a registered type name for use in an input position.
func (c *Context) Input(name string) graphql.Input {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.types[name]
	if !ok {
		c.errs = append(c.errs, fmt.Errorf("unresolved schema type %s", name))
		return nil
	}
	in, ok := t.(graphql.Input)
	if !ok {
		c.errs = append(c.errs, fmt.Errorf("schema type %s is not usable as an input type", name))
		return nil
	}
	return in
}

// AddRootField registers a generated field under the given root. Field names
// are unique across the whole schema, not just per root; a collision means
// the naming qualification invariant was violated.
func (c *Context) AddRootField(kind rootKind, name string, build fieldBuilder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fieldNames[name] {
		return fmt.Errorf("root field %s registered twice", name)
	}
	c.fieldNames[name] = true
	c.fields = append(c.fields, rootField{kind: kind, name: name, build: build})
	return nil
}

// Finalize builds the root objects from the registered fields and constructs
// the executable schema. Deferred type lookups run here, so forward
// references resolve against the complete symbol table; dangling references
// accumulated during field construction fail the whole build.
func (c *Context) Finalize() (graphql.Schema, error) {
	roots := map[rootKind]graphql.Fields{
		rootQuery:        {},
		rootMutation:     {},
		rootSubscription: {},
	}

	c.mu.Lock()
	fields := make([]rootField, len(c.fields))
	copy(fields, c.fields)
	c.mu.Unlock()

	for _, rf := range fields {
		field, err := rf.build()
		if err != nil {
			return graphql.Schema{}, fmt.Errorf("failed to build %s field %s: %w", rf.kind, rf.name, err)
		}
		roots[rf.kind][rf.name] = field
	}

	if len(roots[rootQuery]) == 0 {
		return graphql.Schema{}, errors.New("generated schema has no query fields; the description tree declares no services")
	}

	cfg := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: roots[rootQuery],
		}),
	}
	if len(roots[rootMutation]) > 0 {
		cfg.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: roots[rootMutation],
		})
	}
	if len(roots[rootSubscription]) > 0 {
		cfg.Subscription = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Subscription",
			Fields: roots[rootSubscription],
		})
	}

	built, err := graphql.NewSchema(cfg)

	// Thunked message fields were evaluated during NewSchema; dangling
	// references they hit take precedence over the library's own report.
	c.mu.Lock()
	deferred := errors.Join(c.errs...)
	c.mu.Unlock()
	if deferred != nil {
		return graphql.Schema{}, fmt.Errorf("schema construction failed: %w", deferred)
	}
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("schema construction failed: %w", err)
	}

	c.logger.Debug("schema finalized",
		slog.Int("query_fields", len(roots[rootQuery])),
		slog.Int("mutation_fields", len(roots[rootMutation])),
		slog.Int("subscription_fields", len(roots[rootSubscription])),
	)

	return built, nil
}
