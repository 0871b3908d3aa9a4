// Command egret is a Jupyter kernel for the echo runtime with an
// embedded debug adapter. A frontend launches it with a connection
// file (or a registration file for handshake-style startup) and talks
// to it over the usual five channels.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/egret-kernel/egret/internal/comm"
	"github.com/egret-kernel/egret/internal/config"
	"github.com/egret-kernel/egret/internal/dap"
	"github.com/egret-kernel/egret/internal/echo"
	"github.com/egret-kernel/egret/internal/kernel"
	"github.com/egret-kernel/egret/internal/version"
)

var (
	connectionFile string
	logLevel       string
)

func main() {
	root := &cobra.Command{
		Use:           "egret",
		Short:         "Jupyter kernel with an embedded debug adapter",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().StringVar(&connectionFile, "connection-file", "", "path to the Jupyter connection or registration file")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.MarkFlagRequired("connection-file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.UserAgent())
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "egret:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	conn, err := config.Read(connectionFile)
	if err != nil {
		return err
	}

	k := kernel.New(conn, log)

	runtime := echo.New(k.IOPub())
	state := dap.NewState()
	console := make(chan dap.Command, 8)
	runtime.EnableDebug(state, console)

	adapter := dap.NewServer(state, runtime.Inspector(), console, func() {
		runtime.Interrupt(context.Background())
	}, log)
	defer adapter.Stop()

	servers := map[comm.Kind]kernel.ServerComm{
		comm.KindDAP: adapter,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := k.Connect(ctx, runtime, runtime, servers); err != nil {
		return err
	}

	select {
	case restart := <-k.Shutdown():
		state.Terminate()
		log.Info("kernel shut down", "restart", restart)
	case <-ctx.Done():
		log.Info("kernel interrupted by signal")
	}
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), nil
}
