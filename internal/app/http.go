package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatledger/pkg/api"
	"chatledger/pkg/auth"
	"chatledger/pkg/banner"
	"chatledger/pkg/logger"
	"chatledger/pkg/utils"
)

// startHTTP builds the router, wraps it with the auth gateway and starts
// the listener. Fatal serve errors are reported on the returned channel.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !a.store.Ready() {
			utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
		utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.Handler(a.store, a.sim))

	gateway := auth.AuthenticateRequestMiddleware(auth.SecConfig{
		AllowedOrigins: a.cfg.Security.CORS.AllowedOrigins,
		RPS:            a.cfg.Security.RateLimit.RPS,
		Burst:          a.cfg.Security.RateLimit.Burst,
		IPWhitelist:    a.cfg.Security.IPWhitelist,
		BackendKeys:    keySet(a.cfg.Security.APIKeys.Backend),
		FrontendKeys:   keySet(a.cfg.Security.APIKeys.Frontend),
		AdminKeys:      keySet(a.cfg.Security.APIKeys.Admin),
	})

	a.srv = &http.Server{
		Addr:         a.addr,
		Handler:      gateway(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		cert := a.cfg.Server.TLS.CertFile
		key := a.cfg.Server.TLS.KeyFile
		if cert != "" && key != "" {
			logger.Info("https_listen", "addr", a.addr)
			err = a.srv.ListenAndServeTLS(cert, key)
		} else {
			logger.Info("http_listen", "addr", a.addr)
			err = a.srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func (a *App) printBanner() {
	v := a.version
	if a.commit != "" {
		v += " (" + a.commit + ")"
	}
	banner.Print(a.addr, a.dbPath, a.sources, v)
}

func keySet(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}
