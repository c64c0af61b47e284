// Package grpctest runs an in-process gRPC server that serves the testdata
// protocol dynamically, without generated stubs. It backs the binding and
// end-to-end tests of the packages above it.
package grpctest

import (
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	v1reflectiongrpc "google.golang.org/grpc/reflection/grpc_reflection_v1"
	v1alphareflectiongrpc "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// ProtoDir returns the absolute path of the shared testdata directory.
func ProtoDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "testdata")
}

// ParseProtos parses the testdata protocol files.
func ParseProtos(t testing.TB) []*desc.FileDescriptor {
	t.Helper()
	parser := protoparse.Parser{ImportPaths: []string{ProtoDir()}}
	files, err := parser.ParseFiles("hello.proto")
	if err != nil {
		t.Fatalf("failed to parse testdata protos: %v", err)
	}
	return files
}

// Start launches the dynamic test server on an ephemeral port and returns
// its address. The server is stopped when the test finishes.
func Start(t testing.TB) string {
	t.Helper()

	files := ParseProtos(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := grpc.NewServer(grpc.UnknownServiceHandler(dispatch(files)))
	registerReflection(t, srv, files)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

// registerReflection serves the reflection protocol for the parsed
// descriptors, so the server stays stub-free but still answers ListServices
// and FileContainingSymbol.
func registerReflection(t testing.TB, srv *grpc.Server, files []*desc.FileDescriptor) {
	t.Helper()

	registry := &protoregistry.Files{}
	info := serviceInfoMap{}
	seen := map[string]bool{}

	var walk func(fd *desc.FileDescriptor)
	walk = func(fd *desc.FileDescriptor) {
		if seen[fd.GetName()] {
			return
		}
		seen[fd.GetName()] = true
		if err := registry.RegisterFile(fd.UnwrapFile()); err != nil {
			t.Fatalf("failed to register descriptor %s: %v", fd.GetName(), err)
		}
		for _, sd := range fd.GetServices() {
			info[sd.GetFullyQualifiedName()] = grpc.ServiceInfo{Metadata: fd.GetName()}
		}
		for _, dep := range fd.GetDependencies() {
			walk(dep)
		}
	}
	for _, fd := range files {
		walk(fd)
	}

	opts := reflection.ServerOptions{
		Services:           info,
		DescriptorResolver: registry,
		ExtensionResolver:  protoregistry.GlobalTypes,
	}
	v1reflectiongrpc.RegisterServerReflectionServer(srv, reflection.NewServerV1(opts))
	v1alphareflectiongrpc.RegisterServerReflectionServer(srv, reflection.NewServer(opts))
}

// serviceInfoMap exposes the described services to the reflection handler.
type serviceInfoMap map[string]grpc.ServiceInfo

func (m serviceInfoMap) GetServiceInfo() map[string]grpc.ServiceInfo { return m }

// dispatch routes every incoming call by its full method name, decoding
// requests and encoding responses through dynamic messages.
func dispatch(files []*desc.FileDescriptor) grpc.StreamHandler {
	return func(_ interface{}, stream grpc.ServerStream) error {
		full, ok := grpc.MethodFromServerStream(stream)
		if !ok {
			return status.Error(codes.Internal, "no method in stream context")
		}

		md := findMethod(files, full)
		if md == nil {
			return status.Errorf(codes.Unimplemented, "method %s not served", full)
		}

		req := dynamic.NewMessage(md.GetInputType())
		if err := stream.RecvMsg(req); err != nil {
			return err
		}

		switch full {
		case "/com.acme.Greeter/SayHello":
			return sayHello(stream, md, req)
		case "/com.acme.Greeter/GetStatus":
			return getStatus(stream, md)
		case "/com.acme.Greeter/Watch":
			return watch(stream, md, req)
		case "/com.acme.v2.Greeter2/SayHello":
			return sayHelloV2(stream, md, req)
		default:
			return status.Errorf(codes.Unimplemented, "method %s not served", full)
		}
	}
}

func findMethod(files []*desc.FileDescriptor, full string) *desc.MethodDescriptor {
	parts := strings.SplitN(strings.TrimPrefix(full, "/"), "/", 2)
	if len(parts) != 2 {
		return nil
	}
	for _, fd := range files {
		if sym := fd.FindSymbol(parts[0]); sym != nil {
			if sd, ok := sym.(*desc.ServiceDescriptor); ok {
				return sd.FindMethodByName(parts[1])
			}
		}
		for _, dep := range fd.GetDependencies() {
			if sym := dep.FindSymbol(parts[0]); sym != nil {
				if sd, ok := sym.(*desc.ServiceDescriptor); ok {
					return sd.FindMethodByName(parts[1])
				}
			}
		}
	}
	return nil
}

func sayHello(stream grpc.ServerStream, md *desc.MethodDescriptor, req *dynamic.Message) error {
	name, _ := req.GetFieldByName("name").(string)
	if name == "fail" {
		return status.Error(codes.InvalidArgument, "name rejected")
	}

	resp := dynamic.NewMessage(md.GetOutputType())
	resp.SetFieldByName("message", "Hello, "+name)
	resp.AddRepeatedFieldByName("tags", "casual")
	resp.AddRepeatedFieldByName("tags", "test")
	resp.SetFieldByName("count", int64(42))
	resp.SetFieldByName("mood", req.GetFieldByName("mood"))

	metaField := md.GetOutputType().FindFieldByName("meta")
	meta := dynamic.NewMessage(metaField.GetMessageType())
	meta.SetFieldByName("origin", "v2")
	resp.SetFieldByName("meta", meta)

	return stream.SendMsg(resp)
}

func getStatus(stream grpc.ServerStream, md *desc.MethodDescriptor) error {
	resp := dynamic.NewMessage(md.GetOutputType())
	resp.SetFieldByName("state", "ok")
	resp.SetFieldByName("healthy", true)
	return stream.SendMsg(resp)
}

// watch streams events whose shape depends on the requested topic: "boom"
// fails after the first event, "slow" streams until the client goes away,
// anything else delivers three events and completes.
func watch(stream grpc.ServerStream, md *desc.MethodDescriptor, req *dynamic.Message) error {
	topic, _ := req.GetFieldByName("topic").(string)

	send := func(i int) error {
		ev := dynamic.NewMessage(md.GetOutputType())
		ev.SetFieldByName("id", fmt.Sprintf("e%d", i))
		ev.SetFieldByName("payload", topic)
		ev.SetFieldByName("seq", int32(i))
		return stream.SendMsg(ev)
	}

	switch topic {
	case "boom":
		if err := send(1); err != nil {
			return err
		}
		return status.Error(codes.Internal, "stream blew up")
	case "slow":
		for i := 1; ; i++ {
			if err := send(i); err != nil {
				return err
			}
			select {
			case <-stream.Context().Done():
				return stream.Context().Err()
			case <-time.After(10 * time.Millisecond):
			}
		}
	default:
		for i := 1; i <= 3; i++ {
			if err := send(i); err != nil {
				return err
			}
		}
		return nil
	}
}

func sayHelloV2(stream grpc.ServerStream, md *desc.MethodDescriptor, req *dynamic.Message) error {
	name, _ := req.GetFieldByName("name").(string)
	resp := dynamic.NewMessage(md.GetOutputType())
	resp.SetFieldByName("message", "v2: "+name)
	return stream.SendMsg(resp)
}
