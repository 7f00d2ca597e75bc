package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openhobd/dlcbridge/internal/ecu"
	"github.com/openhobd/dlcbridge/internal/hostlink"
	"github.com/openhobd/dlcbridge/internal/server"
	"github.com/openhobd/dlcbridge/web"
)

func main() {
	configPath := flag.String("config", "/etc/dlcbridge/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with simulated ECU data")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] dlcbridge starting")

	cfg := server.LoadConfig(*configPath)

	if *demo {
		cfg.ECU.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	var prov ecu.Provider
	switch cfg.ECU.Type {
	case "dlc":
		prov = ecu.NewDLC(cfg.ECU.DLC)
	default:
		prov = ecu.NewDemoProvider()
	}
	log.Printf("[main] ECU provider: %s", prov.Name())

	// Connect in the background so the dashboard comes up regardless of
	// whether the car is on.
	go connectWithRetry(ctx, "ECU", prov, 10)

	if cfg.Host.Enabled {
		go runHostLink(ctx, cfg, prov)
	}

	srv := server.New(cfg, prov, web.FS)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// runHostLink opens the host-facing serial port and services framed
// commands until the context is cancelled, reopening on link errors.
func runHostLink(ctx context.Context, cfg *server.Config, prov ecu.Provider) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		port, err := hostlink.OpenSerial(cfg.Host.PortPath, cfg.Host.BaudRate)
		if err != nil {
			log.Printf("[hostlink] open failed: %v (retry in 5s)", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		log.Printf("[hostlink] serving on %s at %d baud", cfg.Host.PortPath, cfg.Host.BaudRate)
		err = hostlink.NewDispatcher(port, prov).Run(ctx)
		port.Close()
		if ctx.Err() != nil {
			return
		}
		log.Printf("[hostlink] link error: %v (reopening)", err)
	}
}

// connectable is the subset of the provider the retry loop needs.
type connectable interface {
	Connect() error
	Close() error
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
func connectWithRetry(ctx context.Context, name string, c connectable, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.Connect(); err != nil {
			attempt++
			if attempt <= maxAttempts {
				log.Printf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
					name, attempt, maxAttempts, err, delay)
			} else {
				log.Printf("[%s] connect attempt %d failed: %v (retry in %v)",
					name, attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		} else {
			log.Printf("[%s] connected successfully (attempt %d)", name, attempt+1)
			return
		}
	}
}
