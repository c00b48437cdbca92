// Command byteblaster runs a standalone EMWIN/QBT receiver that writes
// every completed file under a destination directory.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wxmesh/byteblaster"
	"github.com/wxmesh/byteblaster/pkg/assembler"
)

type fileWriter struct {
	dir string
}

func (w fileWriter) OnCompletedFile(_ context.Context, f *assembler.CompletedFile) error {
	path := filepath.Join(w.dir, filepath.Base(f.Filename))
	return os.WriteFile(path, f.Data, 0o644)
}

func main() {
	email := flag.String("email", "", "EMWIN logon email (required)")
	outDir := flag.String("out", ".", "directory to write completed files into")
	serverListPath := flag.String("server-list", "servers.json", "server list persistence path")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on, empty disables")
	flag.Parse()

	log := slog.Default().With("service", "[CLI]")

	client, err := byteblaster.New(byteblaster.Options{
		Email:          *email,
		ServerListPath: *serverListPath,
	})
	if err != nil {
		log.Error("failed to construct client", "error", err)
		os.Exit(1)
	}

	client.Subscribe(fileWriter{dir: *outDir})

	if *metricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(*metricsAddr, client.MetricsHandler()); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		log.Error("failed to start client", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("shutting down")
	if err := client.Stop(10 * time.Second); err != nil {
		log.Error("graceful shutdown timed out", "error", err)
	}
}
