package websocket

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/wx-forecast/pkg/logger"
)

// Message types exchanged with clients
const (
	MessageTypeForecastRequest  = "forecast_request"  // Client asks for a city forecast
	MessageTypeForecastResponse = "forecast_response" // Server returns a forecast
	MessageTypeForecastError    = "forecast_error"    // Server reports a failed lookup
	MessageTypeError            = "error"             // Server reports an unusable message
)

const writeWait = 10 * time.Second

// Config holds WebSocket server settings
type Config struct {
	MaxMessageBytes int64    // Largest accepted client message, 0 for no limit
	MaxInFlight     int      // Concurrent handler calls per connection, 0 for no limit
	AllowedOrigins  []string // Browser origins allowed to connect; "*" allows any
}

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// MessageHandler defines the interface for handling incoming WebSocket messages.
// ctx is cancelled when the client disconnects.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, messageType string, data map[string]any) error
}

// Client represents a WebSocket client
type Client struct {
	conn     *websocket.Conn
	send     chan *Message
	server   *Server
	remoteIP string
	inFlight chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// Server tracks connected clients and dispatches their messages
type Server struct {
	clients         map[*Client]bool
	register        chan *Client
	unregister      chan *Client
	done            chan struct{}
	upgrader        websocket.Upgrader
	maxMessageBytes int64
	maxInFlight     int
	allowedOrigins  []string
	logger          *logger.Logger
	mu              sync.RWMutex
	messageHandler  MessageHandler
	stopOnce        sync.Once
}

// NewServer creates a new WebSocket server
func NewServer(config Config, logger *logger.Logger) *Server {
	s := &Server{
		clients:         make(map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		done:            make(chan struct{}),
		maxMessageBytes: config.MaxMessageBytes,
		maxInFlight:     config.MaxInFlight,
		allowedOrigins:  config.AllowedOrigins,
		logger:          logger.Named("web-socket"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin allows clients without an Origin header (non-browser), same-origin
// pages, and origins in the allow list. CORS headers do not cover the upgrade.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// SetMessageHandler sets the message handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// Run tracks client registration until Stop is called
func (s *Server) Run() {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.markClosed()
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case <-s.done:
			// Disconnect everyone
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.cancel()
				client.markClosed()
				client.conn.Close()
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return
		}
	}
}

// Stop disconnects all clients and ends Run
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleConnection upgrades the request and serves the connection
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		logger.String("remote_addr", r.RemoteAddr),
		logger.String("user_agent", r.UserAgent()))

	// Upgrade HTTP connection to WebSocket; a rejected origin gets 403
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}
	if s.maxMessageBytes > 0 {
		conn.SetReadLimit(s.maxMessageBytes)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		conn:     conn,
		send:     make(chan *Message, 64),
		server:   s,
		remoteIP: remoteHost(r.RemoteAddr),
		ctx:      ctx,
		cancel:   cancel,
	}
	if s.maxInFlight > 0 {
		client.inFlight = make(chan struct{}, s.maxInFlight)
	}

	// Register client
	select {
	case s.register <- client:
	case <-s.done:
		cancel()
		conn.Close()
		return
	}

	// Start client goroutines
	go client.readPump()
	go client.writePump()
}

// RemoteIP returns the client's address without the port
func (c *Client) RemoteIP() string {
	return c.remoteIP
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// readPump reads messages from the connection and dispatches them.
// Each message is handled on its own goroutine so a slow lookup does not
// delay disconnect detection.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.wg.Wait()
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}

		// Parse message
		var message Message
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Warn("Failed to parse WebSocket message", logger.Error(err))
			c.SendMessage(&Message{
				Type: MessageTypeError,
				Data: map[string]any{"detail": "Invalid message format"},
			})
			continue
		}

		c.server.logger.Debug("Received WebSocket message",
			logger.String("type", message.Type),
			logger.String("client", c.conn.RemoteAddr().String()))

		if c.server.messageHandler == nil {
			continue
		}

		// Reserve an in-flight slot; a full connection gets an error instead of a new lookup
		if c.inFlight != nil {
			select {
			case c.inFlight <- struct{}{}:
			default:
				c.server.logger.Debug("Too many concurrent WebSocket requests",
					logger.String("type", message.Type),
					logger.String("client", c.remoteIP))
				c.SendMessage(&Message{
					Type: MessageTypeError,
					Data: map[string]any{
						"status": http.StatusTooManyRequests,
						"detail": "Too many concurrent requests",
					},
				})
				continue
			}
		}

		// Handle message in its own goroutine
		c.wg.Add(1)
		go func(msg Message) {
			defer c.wg.Done()
			if c.inFlight != nil {
				defer func() { <-c.inFlight }()
			}
			if err := c.server.messageHandler.HandleMessage(c.ctx, c, msg.Type, msg.Data); err != nil {
				c.server.logger.Error("Failed to handle WebSocket message",
					logger.Error(err),
					logger.String("type", msg.Type))
			}
		}(message)
	}
}

// writePump writes queued messages to the connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		// Write message with deadline
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(message); err != nil {
			c.server.logger.Debug("Failed to write WebSocket message", logger.Error(err))
			// Unblocks readPump; keep draining until unregister closes the channel
			c.conn.Close()
			continue
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// markClosed closes the send channel exactly once
func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SendMessage queues a message for this client, dropping it if the client
// is gone or its queue is full
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}
