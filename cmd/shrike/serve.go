package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/umbra-intel/shrike/mcp"
	"github.com/umbra-intel/shrike/pkg/telemetry"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the tool set to other processes",
		Long:  "Starts a tool server on the configured host and port, serving the built-in tools plus any tools discovered from configured providers. Stops on SIGINT or SIGTERM.",
		RunE:  runServe,
	}

	cmd.Flags().String("host", "", "Listen host (overrides configuration)")
	cmd.Flags().IntP("port", "p", 0, "Listen port (overrides configuration)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "shrike",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	rt, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.initialize(ctx); err != nil {
		return fmt.Errorf("initializing tool client: %w", err)
	}

	host := rt.cfg.ServerHost
	if flagHost, _ := cmd.Flags().GetString("host"); flagHost != "" {
		host = flagHost
	}
	port := rt.cfg.ServerPort
	if flagPort, _ := cmd.Flags().GetInt("port"); flagPort > 0 {
		port = flagPort
	}

	// The server snapshots the registry, so it is built only after the
	// client has registered built-ins and provider tools.
	server := mcp.NewServer(rt.client.Registry(), host, port)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting tool server: %w", err)
	}

	status := rt.client.GetStatus()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d tools (%d builtin, %d external) on %s\n",
		status.TotalTools, status.BuiltinTools, status.ExternalTools, server.Addr())

	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(stopCtx)
}
