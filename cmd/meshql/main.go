package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meshql",
		Short: "Serve a gRPC service as a GraphQL API",
		Long: `meshql derives a GraphQL schema from a gRPC service description and serves
it over HTTP, forwarding queries, mutations and subscriptions to the remote
server as unary and streaming calls.`,
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
