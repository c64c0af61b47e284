// Package schema derives an executable GraphQL schema from a loaded
// protocol-description tree and binds every generated root field to a
// dynamic gRPC client.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/graphql-go/graphql"
	"golang.org/x/sync/errgroup"

	"github.com/kavor/meshql/internal/descriptor"
	"github.com/kavor/meshql/internal/grpcclient"
)

// Options configure schema generation.
type Options struct {
	// PackageName is the root namespace path; declarations directly under it
	// produce unqualified schema names.
	PackageName string

	// ServiceName designates the primary service, whose method fields are
	// not prefixed with the service name.
	ServiceName string
}

// Generator walks the protocol tree and emits schema declarations into a
// construction context.
type Generator struct {
	build   *Context
	namer   *Namer
	factory *grpcclient.Factory
	logger  *slog.Logger
}

// Generate traverses the tree rooted at node and returns the finalized
// executable schema, with every service method bound to a client from the
// factory.
func Generate(ctx context.Context, tree *descriptor.Node, factory *grpcclient.Factory, opts Options, logger *slog.Logger) (graphql.Schema, error) {
	g := &Generator{
		build:   NewContext(logger),
		namer:   NewNamer(opts.PackageName, opts.ServiceName),
		factory: factory,
		logger:  logger,
	}

	if err := g.visit(ctx, tree, "", nil); err != nil {
		return graphql.Schema{}, err
	}

	return g.build.Finalize()
}

// visit classifies a node by its shape and dispatches to the matching
// builder. Namespace children fan out as concurrent tasks: each builder
// writes to disjoint keys of the construction context, and the parent join
// does not complete until every child has.
func (g *Generator) visit(ctx context.Context, node *descriptor.Node, localName string, nsPath []string) error {
	switch node.Kind() {
	case descriptor.KindEnum:
		return g.buildEnum(node.Enum, nsPath, localName)

	case descriptor.KindMessage:
		return g.buildMessage(node.Message, nsPath, localName)

	case descriptor.KindService:
		return g.buildService(node.Service, nsPath, localName)

	case descriptor.KindNamespace:
		childPath := nsPath
		if localName != "" {
			childPath = append(slices.Clone(nsPath), localName)
		}
		eg, ctx := errgroup.WithContext(ctx)
		for _, child := range node.Namespace.Children {
			child := child
			eg.Go(func() error {
				return g.visit(ctx, child.Node, child.Name, childPath)
			})
		}
		return eg.Wait()

	default:
		return fmt.Errorf("node %q has no recognizable shape", localName)
	}
}

// typeName resolves a type reference to a schema type name. Enum base names
// keep a single identity across input and output contexts; message names
// bifurcate with an Input suffix.
func (g *Generator) typeName(ref string, input bool) string {
	base, scalar := g.namer.BaseTypeName(ref)
	if scalar || !input {
		return base
	}
	if g.build.IsEnum(base) {
		return base
	}
	return base + "Input"
}
