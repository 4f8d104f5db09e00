package observer

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lostfound.gg/internal/protocol"
)

// Frame is one pushed state update.
type Frame struct {
	Type  string                 `json:"type"`
	MapID string                 `json:"mapId"`
	Ts    int64                  `json:"ts"`
	State protocol.StateResponse `json:"state"`
}

// SubscribeMsg selects the map a spectator wants to watch. The client may
// resend it mid-session to switch maps.
type SubscribeMsg struct {
	Type  string `json:"type"`
	MapID string `json:"mapId"`
}

type subscriber struct {
	id    string
	mapID string
	out   chan []byte
}

// Server fans out per-map state frames to websocket spectators. Publishing
// happens on the game loop goroutine and never blocks: slow clients simply
// miss frames.
type Server struct {
	logger      *log.Logger
	allowRemote bool
	queueSize   int
	upgrader    websocket.Upgrader

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewServer(logger *log.Logger, allowRemote bool, queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Server{
		logger:      logger,
		allowRemote: allowRemote,
		queueSize:   queueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: make(map[string]*subscriber),
	}
}

// PublishState pushes the post-tick state of one map to its spectators.
func (s *Server) PublishState(mapID string, state protocol.StateResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var frame []byte
	for _, sub := range s.subs {
		if sub.mapID != mapID {
			continue
		}
		if frame == nil {
			b, err := json.Marshal(Frame{
				Type:  "STATE",
				MapID: mapID,
				Ts:    time.Now().UnixMilli(),
				State: state,
			})
			if err != nil {
				return
			}
			frame = b
		}
		select {
		case sub.out <- frame:
		default:
			// Slow spectator; this frame is superseded by the next one.
		}
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: the first message must be SUBSCRIBE.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"),
				time.Now().Add(time.Second))
			return
		}

		sid := uuid.NewString()
		out := make(chan []byte, s.queueSize)
		s.register(&subscriber{id: sid, mapID: sub.MapID, out: out})
		defer s.unregister(sid)

		s.logger.Printf("observer %s subscribed to map %s", sid, sub.MapID)

		// Writer goroutine.
		stop := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-stop:
					writeErr <- nil
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow map switches.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := decodeSubscribe(msg); ok {
				s.retarget(sid, sub.MapID)
			}
		}

		close(stop)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func decodeSubscribe(msg []byte) (SubscribeMsg, bool) {
	var sub SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.MapID == "" {
		return sub, false
	}
	return sub, true
}

func (s *Server) register(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.id] = sub
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *Server) retarget(id, mapID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		sub.mapID = mapID
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
