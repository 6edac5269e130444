package main

import (
	"context"
	"net/http"
	"time"

	"github.com/drpcorg/rtcdoc"
	"github.com/drpcorg/rtcdoc/rooms"
	"github.com/drpcorg/rtcdoc/store"
	"github.com/drpcorg/rtcdoc/utils"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRegistry gathers every metric of the process.
func newRegistry(st *store.Store) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		store.NewCollector(st),
		store.StoreWrites,
		store.StoreBytes,
		store.StoreCacheHits,
		rooms.RoomsOpen,
		rooms.RoomUpdates,
		rooms.FeedOverflows,
	)
	reg.MustRegister(rtcdoc.Collectors()...)
	return reg
}

func newRouter(reg *prometheus.Registry, hub *rooms.Hub) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/rooms", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for _, name := range hub.Names() {
			_, _ = w.Write([]byte(name + "\n"))
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

type admin struct {
	srv *http.Server
	log utils.Logger
}

func startAdmin(addr string, handler http.Handler, log utils.Logger) *admin {
	a := &admin{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: time.Second,
		},
		log: log,
	}
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server failed", "addr", addr, "err", err)
		}
	}()
	log.Info("admin server started", "addr", addr)
	return a
}

func (a *admin) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.srv.Shutdown(ctx)
}
