package grpcclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// DialConfig holds the connection parameters for the remote endpoint.
type DialConfig struct {
	// Address is the host:port of the gRPC server.
	Address string

	// UseTLS enables transport security.
	UseTLS bool

	// Insecure skips certificate verification when UseTLS is set.
	Insecure bool
}

// Dial creates a client connection to the configured endpoint. Connection
// establishment is lazy: no network I/O happens until the first call.
func Dial(cfg DialConfig, logger *slog.Logger) (*grpc.ClientConn, error) {
	kaParams := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             3 * time.Second,
		PermitWithoutStream: true,
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(kaParams),
	}

	if cfg.UseTLS {
		var creds credentials.TransportCredentials
		if cfg.Insecure {
			creds = credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
			logger.Warn("using insecure TLS connection (skipping certificate verification)")
		} else {
			// System certificate pool.
			creds = credentials.NewTLS(nil)
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		logger.Warn("using insecure plaintext connection")
	}

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		logger.Error("failed to create gRPC client",
			slog.String("address", cfg.Address),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Address, err)
	}

	logger.Info("gRPC client created",
		slog.String("address", cfg.Address),
		slog.Bool("tls", cfg.UseTLS),
	)

	return conn, nil
}
