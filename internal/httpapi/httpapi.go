// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi exposes job status, job SSE streams, and a Prometheus
// metrics endpoint, wired up with gorilla/mux and gorilla/handlers the
// way the teacher's main.go wires cc-backend's router.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inboxforge/mailpipe/internal/jobs"
	"github.com/inboxforge/mailpipe/pkg/log"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

// NewRouter builds the mux.Router exposing /api/jobs, /api/jobs/{id},
// /api/jobs/{id}/stream (SSE), and /metrics.
func NewRouter(registry *jobs.Registry) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/jobs", func(rw http.ResponseWriter, req *http.Request) {
		writeJSON(rw, registry.List())
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/jobs/{id}", func(rw http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		j, ok := registry.Get(id)
		if !ok {
			http.Error(rw, "job not found", http.StatusNotFound)
			return
		}
		writeJSON(rw, j.Snapshot())
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/jobs/{id}/stream", streamJobHandler(registry)).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler())

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	r.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"})))

	return handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		if strings.HasPrefix(params.Request.RequestURI, "/api/") {
			log.Infof("%s %s (%d, %.02fkb, %dms)",
				params.Request.Method, params.URL.RequestURI(),
				params.StatusCode, float32(params.Size)/1024,
				time.Since(params.TimeStamp).Milliseconds())
		}
	})
}

// streamJobHandler serves job progress as Server-Sent Events, draining
// the job registry's broadcast subscription until the client
// disconnects or the job finishes (spec §7).
func streamJobHandler(registry *jobs.Registry) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		j, ok := registry.Get(id)
		if !ok {
			http.Error(rw, "job not found", http.StatusNotFound)
			return
		}

		flusher, ok := rw.(http.Flusher)
		if !ok {
			http.Error(rw, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		sub, err := registry.Subscribe(id)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		defer sub.Close()

		rw.Header().Set("Content-Type", "text/event-stream")
		rw.Header().Set("Cache-Control", "no-cache")
		rw.Header().Set("Connection", "keep-alive")

		writeEvent(rw, j.Snapshot())
		flusher.Flush()

		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()

		ctx := req.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				fmt.Fprint(rw, ": keep-alive\n\n")
				flusher.Flush()
			case status, ok := <-sub.C():
				if !ok {
					return
				}
				writeEvent(rw, status)
				flusher.Flush()
				if status.State == schema.JobStateSucceeded || status.State == schema.JobStateFailed {
					return
				}
			}
		}
	}
}

func writeEvent(rw http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(rw, "data: %s\n\n", data)
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}
