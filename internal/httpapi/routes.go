// Package httpapi exposes rooms over HTTP: room creation and lookup, the
// WebSocket endpoint and a QR share code per room.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jason-s-yu/declare/internal/registry"
	"github.com/jason-s-yu/declare/internal/store"
	"github.com/jason-s-yu/declare/internal/ws"
	"github.com/sirupsen/logrus"
)

// ResultLister is the read side of the results archive.
type ResultLister interface {
	Recent(ctx context.Context, limit int) ([]store.RoundResult, error)
}

type Server struct {
	Rooms   *registry.Registry
	Results ResultLister // nil when no database is configured
	Log     logrus.FieldLogger
	Version string
	// PublicURL is the externally visible base URL used in QR codes. When
	// empty it is derived from the request.
	PublicURL string
	WS        ws.Options
}

func (s *Server) Routes() http.Handler {
	if s.Log == nil {
		s.Log = logrus.StandardLogger()
	}
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", Healthz)
	r.Get("/version", s.version)
	r.Post("/rooms", s.createRoom)
	r.Get("/rooms", s.listRooms)
	r.Route("/rooms/{roomID}", func(r chi.Router) {
		r.Get("/", s.getRoom)
		r.Get("/ws", s.serveWS)
		r.Get("/qr", s.qr)
	})
	r.Get("/results", s.recentResults)
	return r
}

// requestLog logs every request except WebSocket streams, which log their
// own lifecycle.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"remote":   r.RemoteAddr,
			"duration": time.Since(start).Round(time.Microsecond),
		}).Debug("request")
	})
}
