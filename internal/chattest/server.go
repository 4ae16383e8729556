// Package chattest provides an in-process fake of the chat backend for
// tests: the duplex channel endpoint plus the REST credential, directory,
// and history endpoints.
package chattest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/duochat/duochat/pkg/wire"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server is a fake chat backend. Frames pushed through it reach every
// connected channel; frames sent by clients land on Received.
type Server struct {
	hts *httptest.Server

	mu      sync.Mutex
	conns   map[*websocket.Conn]bool
	dials   int
	seq     int
	people  []wire.Peer
	history map[string][]wire.Message
	userID  string

	received chan wire.SendFrame
}

// New starts a fake backend. Call Close when done.
func New() *Server {
	s := &Server{
		conns:    make(map[*websocket.Conn]bool),
		history:  make(map[string][]wire.Message),
		received: make(chan wire.SendFrame, 16),
		userID:   "u1",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/login", s.handleAuth)
	mux.HandleFunc("/register", s.handleAuth)
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/profile", s.handleProfile)
	mux.HandleFunc("/people", s.handlePeople)
	mux.HandleFunc("/messages/", s.handleMessages)

	s.hts = httptest.NewServer(mux)
	return s
}

// Close shuts the backend down and drops all channels.
func (s *Server) Close() {
	s.CloseConns()
	s.hts.Close()
}

// URL is the REST base URL.
func (s *Server) URL() string {
	return s.hts.URL
}

// WSURL is the duplex channel endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.hts.URL, "http") + "/ws"
}

// SetUserID sets the id returned by the credential endpoints.
func (s *Server) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// SetPeople replaces the user directory.
func (s *Server) SetPeople(people []wire.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people = people
}

// SetHistory replaces the stored history for a peer.
func (s *Server) SetHistory(peerID string, msgs []wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[peerID] = append([]wire.Message(nil), msgs...)
}

// AppendHistory appends one message to a peer's stored history.
func (s *Server) AppendHistory(peerID string, msg wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[peerID] = append(s.history[peerID], msg)
}

// Received yields the send frames clients transmitted.
func (s *Server) Received() <-chan wire.SendFrame {
	return s.received
}

// ConnCount returns the number of open channels.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// DialCount returns how many channels were ever accepted.
func (s *Server) DialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// CloseConns force-closes every open channel, simulating network failure.
func (s *Server) CloseConns() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[*websocket.Conn]bool)
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// PushPresence pushes a roster frame to every open channel.
func (s *Server) PushPresence(roster []wire.Peer) error {
	return s.push(wire.PresenceFrame{Online: roster})
}

// PushMessage pushes a message frame to every open channel.
func (s *Server) PushMessage(msg wire.Message) error {
	return s.push(msg)
}

func (s *Server) push(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[c] = true
	s.dials++
	s.mu.Unlock()

	go s.readLoop(c)
}

func (s *Server) readLoop(c *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var frame wire.SendFrame
		if err := frame.Decode(data); err != nil {
			continue
		}
		s.persist(frame)
		select {
		case s.received <- frame:
		default:
		}
	}
}

// persist stores an incoming send frame into the recipient's history with
// a backend-assigned id, the way the real backend does. File payloads are
// reduced to their blob key (the filename here).
func (s *Server) persist(frame wire.SendFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg := wire.Message{
		ID:        fmt.Sprintf("srv-%d", s.seq),
		Sender:    s.userID,
		Recipient: frame.Recipient,
		Text:      frame.Text,
	}
	if frame.File != nil {
		msg.File = frame.File.Name
		msg.Text = ""
	}
	s.history[frame.Recipient] = append(s.history[frame.Recipient], msg)
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id := s.userID
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "token", Value: "test-token"})
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie("token"); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	id := s.userID
	s.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]string{"userId": id, "username": "self"})
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	people := append([]wire.Peer(nil), s.people...)
	s.mu.Unlock()

	out := make([]map[string]string, 0, len(people))
	for _, p := range people {
		out = append(out, map[string]string{"_id": p.UserID, "username": p.Username})
	}
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	peerID := strings.TrimPrefix(r.URL.Path, "/messages/")

	s.mu.Lock()
	msgs := append([]wire.Message(nil), s.history[peerID]...)
	s.mu.Unlock()

	if msgs == nil {
		msgs = []wire.Message{}
	}
	json.NewEncoder(w).Encode(msgs)
}
