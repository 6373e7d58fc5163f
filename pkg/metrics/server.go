package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"
)

// AdminMux serves the Prometheus scrape endpoint and, when profiling is
// set, the runtime profiles under /debug/pprof/.
func AdminMux(profiling bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	if profiling {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// StartServer runs the admin mux on port in the background and returns its
// shutdown function.
func StartServer(port int, profiling bool) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     AdminMux(profiling),
		ReadTimeout: 5 * time.Second,
		// CPU profiles stream for up to 30s by default.
		WriteTimeout: 40 * time.Second,
	}
	logger := slog.Default().With("component", "metrics-server")
	go func() {
		logger.Info("metrics server listening", "addr", server.Addr, "profiling", profiling)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
