package signaling

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/junsooki/AirScan/internal/metrics"
)

const writeTimeout = 5 * time.Second

// Server relays signaling messages between registered camera hosts and
// scanners. It is an http.Handler serving the websocket endpoint.
type Server struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[string]*serverConn
}

type serverConn struct {
	id         string
	clientType string
	facing     string
	conn       *websocket.Conn
	wmu        sync.Mutex
}

func (c *serverConn) write(msg Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// NewServer creates a signaling server.
func NewServer(log zerolog.Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[string]*serverConn),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := &serverConn{conn: ws}
	defer func() {
		ws.Close()
		s.unregister(conn)
	}()

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		s.handle(conn, msg)
	}
}

func (s *Server) handle(c *serverConn, msg Message) {
	if msg.Type != TypeRegister && msg.Type != TypePing && c.id == "" {
		_ = c.write(Message{Type: TypeError, Msg: "not registered"})
		return
	}

	switch msg.Type {
	case TypeRegister:
		s.register(c, msg)
	case TypeListHosts:
		_ = c.write(Message{Type: TypeHosts, List: s.Hosts()})
	case TypeOffer, TypeAnswer, TypeICECandidate:
		s.relay(c, msg)
	case TypePing:
		_ = c.write(Message{Type: TypePong, Timestamp: time.Now().UnixMilli()})
	default:
		_ = c.write(Message{Type: TypeError, Msg: "unknown message type: " + msg.Type})
	}
}

func (s *Server) register(c *serverConn, msg Message) {
	if c.id != "" {
		_ = c.write(Message{Type: TypeError, Msg: "already registered"})
		return
	}
	if msg.ClientType != ClientTypeCamera && msg.ClientType != ClientTypeScanner {
		_ = c.write(Message{Type: TypeError, Msg: "unknown client type: " + msg.ClientType})
		return
	}
	id := msg.ID
	if id == "" {
		id = msg.ClientType + "-" + uuid.NewString()
	}

	s.mu.Lock()
	if _, taken := s.clients[id]; taken {
		s.mu.Unlock()
		_ = c.write(Message{Type: TypeError, Msg: "id already registered: " + id})
		return
	}
	c.id, c.clientType, c.facing = id, msg.ClientType, msg.Facing
	s.clients[id] = c
	s.mu.Unlock()

	metrics.SignalingClients.WithLabelValues(c.clientType).Inc()
	s.log.Info().Str("id", id).Str("type", c.clientType).Msg("client registered")
	_ = c.write(Message{Type: TypeRegistered, ID: id})
	if c.clientType == ClientTypeCamera {
		s.broadcastHosts()
	}
}

func (s *Server) relay(from *serverConn, msg Message) {
	s.mu.Lock()
	to, ok := s.clients[msg.Target]
	s.mu.Unlock()
	if !ok {
		_ = from.write(Message{Type: TypeError, Msg: "target not found: " + msg.Target})
		return
	}
	fwd := Message{Type: msg.Type, From: from.id, Payload: msg.Payload}
	if err := to.write(fwd); err != nil {
		s.log.Warn().Err(err).Str("to", to.id).Str("type", msg.Type).Msg("relay failed")
	}
}

func (s *Server) unregister(c *serverConn) {
	if c.id == "" {
		return
	}
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	metrics.SignalingClients.WithLabelValues(c.clientType).Dec()
	s.log.Info().Str("id", c.id).Msg("client disconnected")

	if c.clientType == ClientTypeCamera {
		for _, sc := range s.scanners() {
			_ = sc.write(Message{Type: TypeHostDisconnected, HostID: c.id})
		}
		s.broadcastHosts()
	}
}

// Hosts lists the registered camera hosts sorted by id.
func (s *Server) Hosts() []HostInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	hosts := make([]HostInfo, 0, len(s.clients))
	for _, c := range s.clients {
		if c.clientType == ClientTypeCamera {
			hosts = append(hosts, HostInfo{ID: c.id, Online: true, Facing: c.facing})
		}
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts
}

func (s *Server) scanners() []*serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*serverConn
	for _, c := range s.clients {
		if c.clientType == ClientTypeScanner {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) broadcastHosts() {
	list := s.Hosts()
	for _, sc := range s.scanners() {
		_ = sc.write(Message{Type: TypeHostsUpdated, List: list})
	}
}
