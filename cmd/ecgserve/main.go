// ecgserve exposes R-peak detection and beat segmentation over HTTP, along
// with a websocket heart-rate monitor and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/carbocation/ecgseg/compileinfo"
	_ "github.com/carbocation/ecgseg/compileinfoprint"
	"github.com/carbocation/ecgseg/config"
	"github.com/carbocation/ecgseg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath, addr string

	flag.StringVar(&configPath, "config", "", "(Optional) YAML configuration file")
	flag.StringVar(&addr, "addr", ":8080", "Address for the HTTP server")
	flag.Parse()

	if err := config.LoadDotEnv(""); err != nil {
		logrus.Fatalln(err)
	}

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		logrus.Fatalln(err)
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "addr" {
			cfg.Server.Addr = addr
		}
	})

	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalln(err)
	}

	s, err := newServer(cfg, log, prometheus.NewRegistry())
	if err != nil {
		log.Fatalln(err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.WithFields(compileinfo.Get().Fields()).Infoln("Starting HTTP server on", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

Outer:
	for {
		select {
		case sigl := <-sig:
			if sigl == syscall.SIGUSR1 {
				log.Infoln("There are", runtime.NumGoroutine(), "goroutines running")
				continue
			}

			log.Infoln("Exit:", sigl.String())
			break Outer

		case err := <-errs:
			log.Fatalln("Exiting due to error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalln(err)
	}
	log.Infoln("Server stopped")
}
