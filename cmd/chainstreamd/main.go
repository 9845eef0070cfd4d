// Command chainstreamd runs the long-lived producer side of the core: it
// loads the transport configuration, provisions whichever carriers are
// named, binds the outbox manager to the configured streaming transport,
// and serves metrics until terminated. It is a thin composition root, not
// a DI framework; overall wiring is left to the application embedding
// this core.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/chainstream/core/internal/clog"
	"github.com/chainstream/core/internal/config"
	"github.com/chainstream/core/metrics"
	"github.com/chainstream/core/outbox"
	"github.com/chainstream/core/query"
	"github.com/chainstream/core/transport"
	"github.com/chainstream/core/transport/httpcarrier"
	"github.com/chainstream/core/transport/ipc"
	"github.com/chainstream/core/transport/ws"
)

var (
	configFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "path to the TOML configuration file",
		Required: true,
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "address to serve Prometheus metrics on",
		Value: "127.0.0.1:6060",
	}
	ipcChildFlag = &cli.BoolFlag{
		Name:  "ipc-child",
		Usage: "attach the ipc-child transport to inherited fds 3 (read) and 4 (write)",
	}
)

const shutdownGrace = 5 * time.Second

func main() {
	app := &cli.App{
		Name:  "chainstreamd",
		Usage: "run the blockchain event streaming core",
		Flags: []cli.Flag{configFlag, metricsAddrFlag, ipcChildFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...any) {
		clog.Root().Debug(fmt.Sprintf(format, a...))
	})); err != nil {
		clog.Root().Warn("automaxprocs: could not set GOMAXPROCS", "err", err)
	}

	log := clog.New("component", "chainstreamd")

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	bus := query.NewRegistry()
	responder := query.NewResponder(bus, 8)
	defer responder.Close()

	transports, err := provisionTransports(c.Context, cfg, responder, c.Bool("ipc-child"))
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range transports {
			t.Destroy()
		}
	}()

	// Bound and ready; batches are handed to mgr.SendBatch by the
	// application's producer loop, which lives outside this core.
	if _, err := outbox.NewManagerForTransport(transports, cfg.StreamingKind()); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: c.String("metrics-addr"), Handler: mux}
	go func() {
		log.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "err", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// provisionTransports builds a Transport for every `[[transport]]` table in
// cfg. http is built directly and ws dials its URL; ipc-child requires
// inherited fds, which only a child process has, so it is only attached
// when --ipc-child is passed and skipped otherwise. Any other kind is an
// error.
func provisionTransports(ctx context.Context, cfg config.Config, responder *query.Responder, ipcChild bool) (map[transport.Kind]transport.Transport, error) {
	out := make(map[transport.Kind]transport.Transport, len(cfg.Transport))
	for _, tc := range cfg.Transport {
		kind := transport.Kind(tc.Kind)
		switch kind {
		case transport.KindHTTP:
			out[kind] = httpcarrier.New(httpcarrier.Config{
				Config:  tc.Resolve(),
				URL:     cfg.Webhook.URL,
				PingURL: cfg.Webhook.EffectivePingURL(),
				Token:   cfg.Webhook.Token,
				Timeout: cfg.Webhook.Timeout(),
			}, responder)
		case transport.KindWS:
			carrier, err := ws.Dial(ctx, ws.Config{
				Config:    tc.Resolve(),
				URL:       cfg.WS.URL,
				Path:      cfg.WS.Path,
				Protocols: cfg.WS.Protocols,
			}, responder)
			if err != nil {
				return nil, fmt.Errorf("chainstreamd: dial ws transport %s: %w", tc.Name, err)
			}
			out[kind] = carrier
		case transport.KindIPCChild:
			if !ipcChild {
				continue
			}
			channel := ipc.NewPipeChannel(os.NewFile(3, "ipc-in"), os.NewFile(4, "ipc-out"))
			carrier, err := ipc.NewChild(channel, tc.Resolve(), responder)
			if err != nil {
				return nil, fmt.Errorf("chainstreamd: attach ipc-child transport %s: %w", tc.Name, err)
			}
			out[kind] = carrier
		default:
			return nil, fmt.Errorf("chainstreamd: transport %s has unsupported kind %q", tc.Name, tc.Kind)
		}
	}
	return out, nil
}
