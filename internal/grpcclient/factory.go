package grpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/golang/protobuf/jsonpb"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"google.golang.org/grpc"

	"github.com/kavor/meshql/internal/descriptor"
)

// jsonMarshaler keeps proto field names verbatim so generated schema fields
// line up with the description tree, and emits defaults so every declared
// field is present in resolver output.
var jsonMarshaler = jsonpb.Marshaler{OrigName: true, EmitDefaults: true}

var jsonUnmarshaler = jsonpb.Unmarshaler{AllowUnknownFields: true}

// Factory hands out per-service clients backed by one shared dynamic stub.
// Constructing a client is a local operation; no network I/O happens until a
// method is invoked.
type Factory struct {
	stub     grpcdynamic.Stub
	logger   *slog.Logger
	services map[string]*descriptor.ServiceNode
}

// NewFactory indexes every service in the protocol tree and binds them to
// the given connection.
func NewFactory(conn *grpc.ClientConn, tree *descriptor.Node, logger *slog.Logger) *Factory {
	services := make(map[string]*descriptor.ServiceNode)
	for _, svc := range tree.Services() {
		services[svc.FullName] = svc
	}
	return &Factory{
		stub:     grpcdynamic.NewStub(conn),
		logger:   logger,
		services: services,
	}
}

// ClientFor returns a client for the service at the given fully-qualified
// path.
func (f *Factory) ClientFor(servicePath string) (*ServiceClient, error) {
	svc, ok := f.services[servicePath]
	if !ok {
		return nil, fmt.Errorf("no service registered at %s", servicePath)
	}

	methods := make(map[string]*desc.MethodDescriptor, len(svc.Methods))
	for _, m := range svc.Methods {
		methods[m.Name] = m.Desc
	}

	return &ServiceClient{
		stub:    f.stub,
		service: servicePath,
		methods: methods,
		logger:  f.logger,
	}, nil
}

// ServiceClient invokes the methods of one remote service dynamically, using
// reflection-based message types instead of generated code.
type ServiceClient struct {
	stub    grpcdynamic.Stub
	service string
	methods map[string]*desc.MethodDescriptor
	logger  *slog.Logger
}

// Unary calls a unary RPC method with a JSON-encoded request and returns the
// decoded response object. Remote errors are returned untouched so the
// caller's error reporting sees the original gRPC status.
func (c *ServiceClient) Unary(ctx context.Context, method string, request []byte) (map[string]interface{}, error) {
	md, err := c.methodDesc(method)
	if err != nil {
		return nil, err
	}

	reqMsg, err := c.buildRequest(md, request)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("invoking unary RPC",
		slog.String("method", md.GetFullyQualifiedName()),
	)

	respMsg, err := c.stub.InvokeRpc(ctx, md, reqMsg)
	if err != nil {
		c.logger.Error("RPC invocation failed",
			slog.String("method", md.GetFullyQualifiedName()),
			slog.Any("error", err),
		)
		return nil, err
	}

	return decodeMessage(respMsg.(*dynamic.Message))
}

// ServerStream starts a server-streaming RPC and returns a cancellable
// stream of decoded response objects. The underlying RPC is started
// immediately; messages are delivered in arrival order.
func (c *ServiceClient) ServerStream(ctx context.Context, method string, request []byte) (*Stream, error) {
	md, err := c.methodDesc(method)
	if err != nil {
		return nil, err
	}

	reqMsg, err := c.buildRequest(md, request)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)

	ss, err := c.stub.InvokeRpcServerStream(streamCtx, md, reqMsg)
	if err != nil {
		cancel()
		c.logger.Error("failed to start server stream",
			slog.String("method", md.GetFullyQualifiedName()),
			slog.Any("error", err),
		)
		return nil, err
	}

	stream := newStream(cancel)
	go stream.pump(streamCtx, ss, md.GetFullyQualifiedName(), c.logger)

	return stream, nil
}

func (c *ServiceClient) methodDesc(method string) (*desc.MethodDescriptor, error) {
	md, ok := c.methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found in service %s", method, c.service)
	}
	return md, nil
}

// buildRequest materializes a dynamic request message from JSON. A nil or
// empty request produces an empty message.
func (c *ServiceClient) buildRequest(md *desc.MethodDescriptor, request []byte) (*dynamic.Message, error) {
	reqMsg := dynamic.NewMessage(md.GetInputType())
	if len(request) == 0 {
		return reqMsg, nil
	}
	if err := reqMsg.UnmarshalJSONPB(&jsonUnmarshaler, request); err != nil {
		return nil, fmt.Errorf("invalid request for %s: %w", md.GetFullyQualifiedName(), err)
	}
	return reqMsg, nil
}

// decodeMessage converts a dynamic response message into a generic object
// via its canonical JSON form.
func decodeMessage(msg *dynamic.Message) (map[string]interface{}, error) {
	text, err := msg.MarshalJSONPB(&jsonMarshaler)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(text, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// EncodeArguments converts resolver argument values into the JSON request
// body expected by Unary and ServerStream.
func EncodeArguments(args interface{}) ([]byte, error) {
	if args == nil {
		return nil, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	return data, nil
}
