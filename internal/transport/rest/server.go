package rest

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lostfound.gg/internal/protocol"
	"lostfound.gg/internal/sim/world"
)

const (
	apiPrefix        = "/api/"
	maxRecordsPage   = 100
	bearerPrefix     = "Bearer "
	authHeaderLength = len(bearerPrefix) + 32
)

// Server routes the JSON API and the static frontend. Game state is only
// touched through the loop, one closure at a time.
type Server struct {
	loop    *world.Loop
	static  http.Handler
	logger  *log.Logger
	maxBody int64
}

func NewServer(loop *world.Loop, wwwRoot string, logger *log.Logger) *Server {
	return &Server{
		loop:    loop,
		static:  http.FileServer(http.Dir(wwwRoot)),
		logger:  logger,
		maxBody: 1 << 20,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/maps":
		s.handleMaps(w, r)
	case strings.HasPrefix(path, "/api/v1/maps/"):
		s.handleMapDescriptor(w, r, strings.TrimPrefix(path, "/api/v1/maps/"))
	case path == "/api/v1/game/join":
		s.handleJoin(w, r)
	case path == "/api/v1/game/players":
		s.handlePlayers(w, r)
	case path == "/api/v1/game/state":
		s.handleState(w, r)
	case path == "/api/v1/game/player/action":
		s.handleAction(w, r)
	case path == "/api/v1/game/tick":
		s.handleTick(w, r)
	case path == "/api/v1/game/records":
		s.handleRecords(w, r)
	case strings.HasPrefix(path, apiPrefix):
		s.writeError(w, r, protocol.ErrInvalidAPI(), "")
	default:
		s.static.ServeHTTP(w, r)
	}
}

func (s *Server) handleMaps(w http.ResponseWriter, r *http.Request) {
	if !allowGetHead(r) {
		s.writeError(w, r, protocol.ErrInvalidMethod("only GET and HEAD are expected"), "GET, HEAD")
		return
	}
	var maps []protocol.MapInfo
	if err := s.loop.Do(r.Context(), func(a *world.Application) {
		maps = a.Maps()
	}); err != nil {
		s.writeLoopError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, maps)
}

func (s *Server) handleMapDescriptor(w http.ResponseWriter, r *http.Request, id string) {
	if !allowGetHead(r) {
		s.writeError(w, r, protocol.ErrInvalidMethod("only GET and HEAD are expected"), "GET, HEAD")
		return
	}
	var raw json.RawMessage
	var found bool
	if err := s.loop.Do(r.Context(), func(a *world.Application) {
		raw, found = a.MapDescriptor(id)
	}); err != nil {
		s.writeLoopError(w, r, err)
		return
	}
	if !found {
		s.writeError(w, r, protocol.ErrMapNotFound(), "")
		return
	}
	s.writeRaw(w, r, http.StatusOK, raw)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, r, protocol.ErrInvalidMethod("only POST is expected"), "POST")
		return
	}
	body, perr := s.readJSONBody(r)
	if perr != nil {
		s.writeError(w, r, perr, "")
		return
	}
	req, perr := protocol.DecodeJoin(body)
	if perr != nil {
		s.writeError(w, r, perr, "")
		return
	}

	var resp protocol.JoinResponse
	var joinErr error
	if err := s.loop.Do(r.Context(), func(a *world.Application) {
		p, err := a.Join(req.UserName, req.MapID)
		if err != nil {
			joinErr = err
			return
		}
		resp = protocol.JoinResponse{AuthToken: string(p.Token), PlayerID: p.ID}
	}); err != nil {
		s.writeLoopError(w, r, err)
		return
	}
	if joinErr != nil {
		if errors.Is(joinErr, world.ErrUnknownMap) {
			s.writeError(w, r, protocol.ErrMapNotFound(), "")
			return
		}
		s.internalError(w, r, joinErr)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	if !allowGetHead(r) {
		s.writeError(w, r, protocol.ErrInvalidMethod("only GET and HEAD are expected"), "GET, HEAD")
		return
	}
	s.withPlayer(w, r, func(a *world.Application, p *world.Player) any {
		return a.PlayerNames(p)
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !allowGetHead(r) {
		s.writeError(w, r, protocol.ErrInvalidMethod("only GET and HEAD are expected"), "GET, HEAD")
		return
	}
	s.withPlayer(w, r, func(a *world.Application, p *world.Player) any {
		return a.State(p)
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, r, protocol.ErrInvalidMethod("only POST is expected"), "POST")
		return
	}
	body, perr := s.readJSONBody(r)
	if perr != nil {
		s.writeError(w, r, perr, "")
		return
	}
	req, perr := protocol.DecodeAction(body)
	if perr != nil {
		s.writeError(w, r, perr, "")
		return
	}
	s.withPlayer(w, r, func(a *world.Application, p *world.Player) any {
		a.Move(p, req.Move)
		return struct{}{}
	})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, r, protocol.ErrInvalidMethod("only POST is expected"), "POST")
		return
	}
	if !s.loop.ManualTick() {
		s.writeError(w, r, protocol.ErrBadRequest("manual ticks are disabled"), "")
		return
	}
	body, perr := s.readJSONBody(r)
	if perr != nil {
		s.writeError(w, r, perr, "")
		return
	}
	req, perr := protocol.DecodeTick(body)
	if perr != nil {
		s.writeError(w, r, perr, "")
		return
	}
	if err := s.loop.Tick(r.Context(), time.Duration(req.TimeDelta)*time.Millisecond); err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, struct{}{})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if !allowGetHead(r) {
		s.writeError(w, r, protocol.ErrInvalidMethod("only GET and HEAD are expected"), "GET, HEAD")
		return
	}
	start, limit, perr := recordsPage(r)
	if perr != nil {
		s.writeError(w, r, perr, "")
		return
	}

	var rows []world.PlayerRecord
	var readErr error
	if err := s.loop.Do(r.Context(), func(a *world.Application) {
		rows, readErr = a.Records(start, limit)
	}); err != nil {
		s.writeLoopError(w, r, err)
		return
	}
	if readErr != nil {
		s.internalError(w, r, readErr)
		return
	}

	items := make([]protocol.RecordItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, protocol.RecordItem{
			Name:     row.Name,
			Score:    row.Score,
			PlayTime: float64(row.PlayTimeMs) / 1000.0,
		})
	}
	s.writeJSON(w, r, http.StatusOK, items)
}

func recordsPage(r *http.Request) (start, limit int, perr *protocol.Error) {
	q := r.URL.Query()
	start, limit = 0, maxRecordsPage
	if v := q.Get("start"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, protocol.ErrInvalidArgument("start must be a non-negative integer")
		}
		start = n
	}
	if v := q.Get("maxItems"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxRecordsPage {
			return 0, 0, protocol.ErrInvalidArgument("maxItems must be an integer within [0, 100]")
		}
		limit = n
	}
	return start, limit, nil
}

// withPlayer authorizes the request and runs fn with the resolved player on
// the loop goroutine, writing whatever fn returns.
func (s *Server) withPlayer(w http.ResponseWriter, r *http.Request, fn func(*world.Application, *world.Player) any) {
	token, perr := bearerToken(r)
	if perr != nil {
		s.writeError(w, r, perr, "")
		return
	}
	var resp any
	var unknown bool
	if err := s.loop.Do(r.Context(), func(a *world.Application) {
		p := a.FindPlayer(token)
		if p == nil {
			unknown = true
			return
		}
		resp = fn(a, p)
	}); err != nil {
		s.writeLoopError(w, r, err)
		return
	}
	if unknown {
		s.writeError(w, r, protocol.ErrUnknownToken(), "")
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

// bearerToken extracts a well-formed token or reports invalidToken. The
// header must be exactly "Bearer " plus 32 hex characters.
func bearerToken(r *http.Request) (world.Token, *protocol.Error) {
	h := r.Header.Get("Authorization")
	if len(h) != authHeaderLength || !strings.HasPrefix(h, bearerPrefix) {
		return "", protocol.ErrInvalidToken()
	}
	token := h[len(bearerPrefix):]
	for _, c := range token {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return "", protocol.ErrInvalidToken()
		}
	}
	return world.Token(token), nil
}

func (s *Server) readJSONBody(r *http.Request) ([]byte, *protocol.Error) {
	ct := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
		return nil, protocol.ErrInvalidArgument("Content-Type must be application/json")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody))
	if err != nil {
		return nil, protocol.ErrInvalidArgument("failed to read request body")
	}
	return body, nil
}

func allowGetHead(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

func setAPIHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeRaw(w, r, status, body)
}

func (s *Server) writeRaw(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	setAPIHeaders(w)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, perr *protocol.Error, allow string) {
	if allow != "" {
		w.Header().Set("Allow", allow)
	}
	body, _ := json.Marshal(perr)
	s.writeRaw(w, r, perr.Status, body)
}

func (s *Server) writeLoopError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Printf("loop dispatch failed: %v", err)
	http.Error(w, "server shutting down", http.StatusServiceUnavailable)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	body, _ := json.Marshal(map[string]string{"code": "internalError", "message": "internal error"})
	s.writeRaw(w, r, http.StatusInternalServerError, body)
}
