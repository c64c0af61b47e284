// Package meshql turns a gRPC service description into an executable GraphQL
// schema whose queries, mutations and subscriptions are satisfied by dynamic
// calls against the live server.
package meshql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/graphql-go/graphql"
	"google.golang.org/grpc"

	"github.com/kavor/meshql/internal/descriptor"
	"github.com/kavor/meshql/internal/grpcclient"
	"github.com/kavor/meshql/internal/logging"
	"github.com/kavor/meshql/internal/schema"
)

// Source is a finalized mesh source: the executable schema bound to one
// remote endpoint, plus a JSON mirror of the loaded protocol description
// with declaration comments retained.
type Source struct {
	Schema graphql.Schema

	// Descriptions is the JSON-serialized protocol tree, usable by hosts
	// that render documentation or re-export the description.
	Descriptions json.RawMessage

	// RequestTimeout is the per-request bound the serving layer should
	// apply.
	RequestTimeout time.Duration

	conn *grpc.ClientConn
}

// Close releases the underlying client connection. Active subscriptions are
// terminated.
func (s *Source) Close() error {
	return s.conn.Close()
}

// SourceFromConfig loads the protocol description named by the config,
// derives the schema, and binds every generated field to a dynamic client
// for the configured endpoint. Configuration problems are reported before
// any loading begins; schema construction performs no network I/O beyond
// lazy client creation.
func SourceFromConfig(ctx context.Context, cfg *Config) (*Source, error) {
	if cfg == nil {
		return nil, &ConfigError{Reason: "no configuration supplied"}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(cfg.Debug)
	}

	conn, err := grpcclient.Dial(grpcclient.DialConfig{
		Address:  cfg.Endpoint,
		UseTLS:   cfg.UseTLS,
		Insecure: cfg.Insecure,
	}, logger)
	if err != nil {
		return nil, err
	}

	loader := descriptor.NewLoader(logger)
	var (
		tree   *descriptor.Node
		mirror *descriptor.Mirror
	)
	if cfg.UseReflection {
		tree, mirror, err = loader.LoadReflection(ctx, conn)
	} else {
		tree, mirror, err = loader.Load(cfg.ProtoFile.File, descriptor.Options{
			IncludeDirs: cfg.ProtoFile.Load.IncludeDirs,
		})
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	factory := grpcclient.NewFactory(conn, tree, logger)
	built, err := schema.Generate(ctx, tree, factory, schema.Options{
		PackageName: cfg.PackageName,
		ServiceName: cfg.ServiceName,
	}, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	descriptions, err := json.Marshal(mirror)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to serialize description mirror: %w", err)
	}

	return &Source{
		Schema:         built,
		Descriptions:   descriptions,
		RequestTimeout: cfg.Timeout(),
		conn:           conn,
	}, nil
}
