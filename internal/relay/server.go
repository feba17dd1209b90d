// Package relay is a websocket fan-out server for sync rooms. It holds no
// document state: every binary message from a peer is forwarded to the
// other peers in the same room.
package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"plot-go/internal/plot"
)

// sendBuffer is how many messages may queue for one peer before it is
// treated as stalled and disconnected.
const sendBuffer = 256

type peer struct {
	conn *websocket.Conn
	room string
	send chan []byte
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() { close(p.send) })
}

// Server routes GET /sync/:room to a websocket room and GET /healthz to a
// status report.
type Server struct {
	echo     *echo.Echo
	upgrader websocket.Upgrader
	logger   plot.Logger

	mu    sync.Mutex
	rooms map[string]map[*peer]struct{}
}

func NewServer(logger plot.Logger) *Server {
	if logger == nil {
		logger = plot.NewNopLogger()
	}
	s := &Server{
		echo: echo.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		rooms:  map[string]map[*peer]struct{}{},
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.GET("/healthz", s.health)
	s.echo.GET("/sync/:room", s.sync)
	return s
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("relay listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and disconnects every peer.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, room := range s.rooms {
		for p := range room {
			p.conn.Close()
		}
	}
	s.mu.Unlock()
	return s.echo.Shutdown(ctx)
}

// Peers returns how many peers are connected to room.
func (s *Server) Peers(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[room])
}

type healthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
	Peers  int    `json:"peers"`
}

func (s *Server) health(c echo.Context) error {
	s.mu.Lock()
	resp := healthResponse{Status: "ok", Rooms: len(s.rooms)}
	for _, room := range s.rooms {
		resp.Peers += len(room)
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) sync(c echo.Context) error {
	room := c.Param("room")
	if room == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "room is required")
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "room", room, "error", err)
		return nil
	}

	p := &peer{conn: conn, room: room, send: make(chan []byte, sendBuffer)}
	s.join(p)
	go s.writeLoop(p)
	s.readLoop(p)
	return nil
}

func (s *Server) join(p *peer) {
	s.mu.Lock()
	if s.rooms[p.room] == nil {
		s.rooms[p.room] = map[*peer]struct{}{}
	}
	s.rooms[p.room][p] = struct{}{}
	n := len(s.rooms[p.room])
	s.mu.Unlock()
	s.logger.Info("peer joined", "room", p.room, "remote", p.conn.RemoteAddr().String(), "peers", n)
}

func (s *Server) leave(p *peer) {
	s.mu.Lock()
	_, present := s.rooms[p.room][p]
	delete(s.rooms[p.room], p)
	n := len(s.rooms[p.room])
	if n == 0 {
		delete(s.rooms, p.room)
	}
	s.mu.Unlock()

	p.close()
	if present {
		s.logger.Info("peer left", "room", p.room, "remote", p.conn.RemoteAddr().String(), "peers", n)
	}
}

func (s *Server) readLoop(p *peer) {
	defer s.leave(p)
	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			s.broadcast(p, data)
		}
	}
}

func (s *Server) writeLoop(p *peer) {
	defer p.conn.Close()
	for data := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			s.logger.Warn("relay write failed", "room", p.room, "error", err)
			return
		}
	}
	p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// broadcast queues data for every other peer in from's room. A peer whose
// queue is full is disconnected; it resynchronises on reconnect.
func (s *Server) broadcast(from *peer, data []byte) {
	s.mu.Lock()
	var stalled []*peer
	for p := range s.rooms[from.room] {
		if p == from {
			continue
		}
		select {
		case p.send <- data:
		default:
			stalled = append(stalled, p)
		}
	}
	s.mu.Unlock()

	for _, p := range stalled {
		s.logger.Warn("disconnecting stalled peer", "room", p.room, "remote", p.conn.RemoteAddr().String())
		p.conn.Close()
	}
}
