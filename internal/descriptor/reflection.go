package descriptor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
)

// LoadReflection builds the protocol tree by interrogating a live server's
// reflection service instead of parsing proto sources. The resulting tree is
// interchangeable with one produced by Load, except that comments are not
// available over the reflection protocol.
func (l *Loader) LoadReflection(ctx context.Context, conn *grpc.ClientConn) (*Node, *Mirror, error) {
	client := grpcreflect.NewClientAuto(ctx, conn)
	defer client.Reset()

	serviceNames, err := client.ListServices()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list services via reflection: %w", err)
	}

	seen := make(map[string]bool)
	var files []*desc.FileDescriptor
	for _, name := range serviceNames {
		// The reflection service itself is not part of the described API.
		if strings.HasPrefix(name, "grpc.reflection.") {
			continue
		}

		sd, err := client.ResolveService(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve service %s: %w", name, err)
		}

		fd := sd.GetFile()
		if !seen[fd.GetName()] {
			seen[fd.GetName()] = true
			files = append(files, fd)
		}
	}

	if len(files) == 0 {
		return nil, nil, fmt.Errorf("reflection returned no resolvable services")
	}

	l.logger.Info("loaded protocol description via reflection",
		slog.Int("service_count", len(serviceNames)),
		slog.Int("file_count", len(files)),
	)

	return buildTree(collectFiles(files))
}
