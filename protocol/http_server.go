package protocol

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/felixge/fgprof"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewDebugRouter serves pprof profiles and prometheus metrics
func NewDebugRouter(registry *prometheus.Registry) *mux.Router {
	master := mux.NewRouter()
	master.HandleFunc("/debug/pprof", pprof.Index)
	master.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	master.Handle("/debug/pprof/profile", fgprof.Handler())
	master.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	master.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	master.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	master.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	master.Handle("/debug/pprof/block", pprof.Handler("block"))
	master.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return master
}

func StartHTTPServer(port int, registry *prometheus.Registry) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewDebugRouter(registry),
		ReadTimeout:       time.Second * 60,
		ReadHeaderTimeout: time.Second * 60,
		IdleTimeout:       time.Second * 65,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("debug http server stopped: %s", err)
		}
	}()

	return server
}
