package schema

import (
	"context"

	"github.com/graphql-go/graphql"

	rpcerr "github.com/kavor/meshql/internal/errors"
	"github.com/kavor/meshql/internal/grpcclient"
)

// streamHandle is the slice of a server stream the binding layer consumes.
type streamHandle interface {
	Messages() <-chan map[string]interface{}
	Err() error
	Cancel()
}

// boundClient is the remote-client surface a generated resolver invokes.
type boundClient interface {
	Unary(ctx context.Context, method string, request []byte) (map[string]interface{}, error)
	ServerStream(ctx context.Context, method string, request []byte) (streamHandle, error)
}

// clientAdapter narrows a ServiceClient to the boundClient surface.
type clientAdapter struct {
	*grpcclient.ServiceClient
}

func (a clientAdapter) ServerStream(ctx context.Context, method string, request []byte) (streamHandle, error) {
	return a.ServiceClient.ServerStream(ctx, method, request)
}

// unaryResolver wraps a unary method as a deferred single-result call: it
// forwards the input argument to the remote method and resolves to the
// response, or fails with the remote error untouched.
func (g *Generator) unaryResolver(client boundClient, method string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		request, err := grpcclient.EncodeArguments(p.Args["input"])
		if err != nil {
			return nil, err
		}
		result, err := client.Unary(resolveContext(p), method, request)
		if err != nil {
			return nil, rpcerr.FromRPC(err)
		}
		return result, nil
	}
}

// subscribeResolver wraps a server-streaming method as a cancellable
// asynchronous sequence. The underlying stream starts immediately; each
// message is delivered in arrival order, a stream error terminates the
// sequence as a failed event, and consumer disconnect cancels the stream.
func (g *Generator) subscribeResolver(client boundClient, method string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		request, err := grpcclient.EncodeArguments(p.Args["input"])
		if err != nil {
			return nil, err
		}

		ctx := resolveContext(p)
		stream, err := client.ServerStream(ctx, method, request)
		if err != nil {
			return nil, rpcerr.FromRPC(err)
		}

		out := make(chan interface{})
		go func() {
			defer close(out)
			defer stream.Cancel()

			for msg := range stream.Messages() {
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
			if err := stream.Err(); err != nil {
				select {
				case out <- rpcerr.FromRPC(err):
				case <-ctx.Done():
				}
			}
		}()
		return out, nil
	}
}

// passthroughResolver forwards the already-produced subscription payload
// unchanged. Stream failures travel the same sequence as error payloads and
// fail the event they arrive in.
func passthroughResolver(p graphql.ResolveParams) (interface{}, error) {
	if err, ok := p.Source.(error); ok {
		return nil, err
	}
	return p.Source, nil
}

func resolveContext(p graphql.ResolveParams) context.Context {
	if p.Context != nil {
		return p.Context
	}
	return context.Background()
}
