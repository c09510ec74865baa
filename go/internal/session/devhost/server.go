package devhost

import (
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// NewHandler wires the REST routes, the Connect procedures and /health into
// one handler, with CORS and h2c so Connect clients can use HTTP/2 cleartext.
func NewHandler(host *Host, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	NewRESTHandler(host).RegisterRoutes(mux)
	for path, handler := range ConnectHandlers(host) {
		mux.Handle(path, handler)
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// NewServer returns an HTTP server for the dev host on addr.
func NewServer(host *Host, addr string, allowedOrigins []string) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: NewHandler(host, allowedOrigins),
	}
}
