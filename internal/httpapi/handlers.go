package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/declare/internal/room"
	"github.com/jason-s-yu/declare/internal/ws"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

type createRoomResponse struct {
	RoomID string `json:"roomId"`
	WSPath string `json:"wsPath"`
	QRPath string `json:"qrPath"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, room.ErrorPayload{Message: msg})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("declare v" + s.Version + "\n"))
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.Create()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	id := rm.ID()
	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomID: id,
		WSPath: "/rooms/" + id + "/ws",
		QRPath: "/rooms/" + id + "/qr",
	})
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	sums := s.Rooms.Summaries(r.Context())
	if sums == nil {
		sums = []room.Summary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*room.Room, bool) {
	rm, ok := s.Rooms.Get(chi.URLParam(r, "roomID"))
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
	}
	return rm, ok
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sum, err := rm.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// serveWS opens the room on first connection, so a client can join any
// valid room code directly.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	rm, err := s.Rooms.GetOrCreate(chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	opts := s.WS
	opts.Log = s.Log
	ws.Serve(w, r, rm, opts)
}

// qr renders a PNG QR code pointing at the room page.
func (s *Server) qr(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lookup(w, r); !ok {
		return
	}
	base := strings.TrimSuffix(s.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	url := base + strings.TrimSuffix(r.URL.Path, "/qr")

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(time.Hour.Seconds())))
	_, _ = w.Write(png)
}

type resultView struct {
	RoomID   string         `json:"roomId"`
	Round    int            `json:"round"`
	Declarer string         `json:"declarer"`
	Valid    bool           `json:"isValidDeclaration"`
	Winners  []string       `json:"winners"`
	Scores   map[string]int `json:"scores"`
	EndedAt  time.Time      `json:"endedAt"`
}

func (s *Server) recentResults(w http.ResponseWriter, r *http.Request) {
	if s.Results == nil {
		writeError(w, http.StatusNotImplemented, "results archive not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	res, err := s.Results.Recent(r.Context(), limit)
	if err != nil {
		s.Log.WithError(err).Warn("list results")
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	out := make([]resultView, len(res))
	for i, rr := range res {
		v := resultView{
			RoomID:   rr.RoomID,
			Round:    rr.Round,
			Declarer: rr.Declarer.String(),
			Valid:    rr.Valid,
			Scores:   make(map[string]int, len(rr.Scores)),
			EndedAt:  rr.EndedAt,
		}
		for _, id := range rr.Winners {
			v.Winners = append(v.Winners, id.String())
		}
		for id, sc := range rr.Scores {
			v.Scores[id.String()] = sc
		}
		out[i] = v
	}
	writeJSON(w, http.StatusOK, out)
}
