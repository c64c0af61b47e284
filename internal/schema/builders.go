package schema

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/kavor/meshql/internal/descriptor"
)

// buildEnum emits one schema enum type. Member names and member values are
// both the declared symbol names (not the underlying integers), preserving
// round-trip identity with the wire-format symbol.
func (g *Generator) buildEnum(enum *descriptor.EnumNode, nsPath []string, localName string) error {
	name := g.namer.QualifiedTypeName(nsPath, localName)

	values := graphql.EnumValueConfigMap{}
	for _, v := range enum.Values {
		values[v.Name] = &graphql.EnumValueConfig{Value: v.Name}
	}

	return g.build.RegisterEnum(name, graphql.NewEnum(graphql.EnumConfig{
		Name:   name,
		Values: values,
	}))
}

// buildMessage emits the paired input and output types for a message. Field
// types resolve lazily through thunks evaluated at schema-finalize time, so
// forward references to types visited later still resolve.
func (g *Generator) buildMessage(msg *descriptor.MessageNode, nsPath []string, localName string) error {
	name := g.namer.QualifiedTypeName(nsPath, localName)
	fields := slices.Clone(msg.Fields)

	output := graphql.NewObject(graphql.ObjectConfig{
		Name: name,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fs := graphql.Fields{}
			for _, f := range fields {
				t := g.build.Output(g.typeName(f.TypeName, false))
				if t == nil {
					continue // dangling reference, recorded by the context
				}
				if f.Repeated {
					t = graphql.NewList(t)
				}
				fs[f.Name] = &graphql.Field{Type: t}
			}
			if len(fs) == 0 {
				fs["_"] = &graphql.Field{
					Type:        graphql.Boolean,
					Description: "Placeholder for a message with no fields.",
				}
			}
			return fs
		}),
	})
	if err := g.build.RegisterType(name, output); err != nil {
		return err
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: name + "Input",
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fs := graphql.InputObjectConfigFieldMap{}
			for _, f := range fields {
				t := g.build.Input(g.typeName(f.TypeName, true))
				if t == nil {
					continue
				}
				if f.Repeated {
					t = graphql.NewList(t)
				}
				fs[f.Name] = &graphql.InputObjectFieldConfig{Type: t}
			}
			if len(fs) == 0 {
				fs["_"] = &graphql.InputObjectFieldConfig{Type: graphql.Boolean}
			}
			return fs
		}),
	})
	return g.build.RegisterType(name+"Input", input)
}

// buildService emits one root field per method plus the liveness-check
// field, each bound to the service's dynamic client. Unary methods route to
// Query when their name starts with "get" (case-insensitive), otherwise to
// Mutation; server-streaming methods route to Subscription.
func (g *Generator) buildService(svc *descriptor.ServiceNode, nsPath []string, localName string) error {
	servicePath := strings.Join(append(slices.Clone(nsPath), localName), ".")
	serviceClient, err := g.factory.ClientFor(servicePath)
	if err != nil {
		return err
	}
	client := clientAdapter{serviceClient}

	for _, m := range svc.Methods {
		if m.ClientStream {
			g.logger.Warn("skipping client-streaming method",
				slog.String("service", servicePath),
				slog.String("method", m.Name),
			)
			continue
		}

		fieldName := g.namer.FieldName(nsPath, localName, m.Name)
		if err := g.build.AddRootField(methodRoot(m), fieldName, g.methodField(client, m)); err != nil {
			return err
		}
	}

	return g.addPingField(nsPath, localName)
}

// methodField defers construction of the method's schema field until
// finalization, when its request and response types are resolvable.
func (g *Generator) methodField(client boundClient, m descriptor.Method) fieldBuilder {
	return func() (*graphql.Field, error) {
		output := g.build.Output(g.typeName(m.OutputType, false))
		input := g.build.Input(g.typeName(m.InputType, true))
		if output == nil || input == nil {
			return nil, fmt.Errorf("method %s references unregistered types", m.Name)
		}

		field := &graphql.Field{
			Type: output,
			Args: graphql.FieldConfigArgument{
				"input": &graphql.ArgumentConfig{Type: input},
			},
		}

		if m.ServerStream {
			field.Subscribe = g.subscribeResolver(client, m.Name)
			field.Resolve = passthroughResolver
		} else {
			field.Resolve = g.unaryResolver(client, m.Name)
		}
		return field, nil
	}
}

// methodRoot applies the lexical dispatch rule: the classification is a
// plain "get" prefix test on the declared method name, not an analysis of
// side effects.
func methodRoot(m descriptor.Method) rootKind {
	if m.ServerStream {
		return rootSubscription
	}
	if strings.HasPrefix(strings.ToLower(m.Name), "get") {
		return rootQuery
	}
	return rootMutation
}

// addPingField registers the per-service liveness-check query field. Its
// resolver ignores arguments and reports a fixed online status.
func (g *Generator) addPingField(nsPath []string, serviceName string) error {
	status := g.build.EnsureType("ServerStatus", func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{
			Name: "ServerStatus",
			Fields: graphql.Fields{
				"status": &graphql.Field{Type: graphql.String},
			},
		})
	})

	name := g.namer.FieldName(nsPath, serviceName, "ping")
	return g.build.AddRootField(rootQuery, name, func() (*graphql.Field, error) {
		return &graphql.Field{
			Type: status.(graphql.Output),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return map[string]interface{}{"status": "online"}, nil
			},
		}, nil
	})
}
