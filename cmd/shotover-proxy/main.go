// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command shotover-proxy loads a topology YAML file, brings every source
// and chain it describes up, and serves /metrics and /healthz until it is
// asked to shut down.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/topology"
	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/transform"
)

func main() {
	topologyPath := flag.String("t", "topology.yaml", "Path to the topology YAML file")
	adminAddr := flag.String("admin_addr", ":9001", "Address for the /metrics and /healthz endpoints")
	flag.Parse()

	data, err := os.ReadFile(*topologyPath)
	if err != nil {
		log.Fatalf("reading topology file %s: %v", *topologyPath, err)
	}

	reg := prometheus.NewRegistry()
	metrics := transform.NewMetrics(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	running, err := topology.Build(ctx, data, metrics)
	if err != nil {
		log.Fatalf("building topology: %v", err)
	}
	log.Printf("topology %s up: %d source(s) running", *topologyPath, len(running.Handles))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	adminServer := &http.Server{Addr: *adminAddr, Handler: mux}

	go func() {
		log.Printf("admin server listening on %s", *adminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutting down")

	cancel()
	if err := running.Close(); err != nil {
		log.Printf("closing sources: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("admin server shutdown: %v", err)
	}
	log.Println("stopped")
}
