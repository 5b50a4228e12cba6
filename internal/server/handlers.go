// Package server exposes the unary JSON endpoints and the WebSocket stream
// upgrades that make up the Courier protocol surface.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type connectRequest struct {
	Username string `json:"username"`
}

type connectResponse struct {
	Online []string `json:"online"`
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
	Secret  bool   `json:"secret"`
}

type sendResponse struct {
	Status string `json:"status"`
}

type createChannelRequest struct {
	Creator string   `json:"creator"`
	Name    string   `json:"name"`
	Tags    []string `json:"tags"`
}

type channelSendRequest struct {
	From      string `json:"from"`
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
}

type channelStatsResponse struct {
	TotalMessages int64 `json:"totalMessages"`
}

// HealthHandler provides a simple health check endpoint that returns server
// status.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Courier server is running!")
}

// ConnectHandler marks a user online, broadcasts the join event, and returns
// the usernames that were already connected.
func (s *Server) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	online := s.sessions.Connect(req.Username)
	writeJSON(w, connectResponse{Online: online})
}

// DisconnectHandler removes a user's presence and sink registration.
func (s *Server) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	s.sessions.Disconnect(req.Username)
	writeJSON(w, struct{}{})
}

// SendHandler accepts a direct message. The acknowledgment never reflects
// whether the recipient was reachable.
func (s *Server) SendHandler(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}
	if !s.limiter.allow(req.From) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	status := s.router.Send(req.From, req.To, req.Content, req.Secret)
	writeJSON(w, sendResponse{Status: status})
}

// CreateChannelHandler registers a channel and announces it to every
// connected user.
func (s *Server) CreateChannelHandler(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Creator == "" || req.Name == "" {
		http.Error(w, "creator and name are required", http.StatusBadRequest)
		return
	}

	s.channels.Create(req.Creator, req.Name, req.Tags)
	writeJSON(w, struct{}{})
}

// ChannelSendHandler publishes a message to a channel's subscribers.
func (s *Server) ChannelSendHandler(w http.ResponseWriter, r *http.Request) {
	var req channelSendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.From == "" || req.ChannelID == "" {
		http.Error(w, "from and channelId are required", http.StatusBadRequest)
		return
	}
	if !IsChannelID(req.ChannelID) {
		http.Error(w, "channelId must carry the CHANNEL: prefix", http.StatusBadRequest)
		return
	}
	if !s.limiter.allow(req.From) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	status := s.channels.Publish(req.ChannelID, req.From, req.Content)
	writeJSON(w, sendResponse{Status: status})
}

// ChannelStatsHandler reports a channel's total message count; unknown
// channels report zero.
func (s *Server) ChannelStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	channelID := r.URL.Query().Get("channelId")
	writeJSON(w, channelStatsResponse{TotalMessages: s.channels.Stats(channelID)})
}

// ReceiveHandler upgrades to the ReceiveMessages stream: it registers the
// stream as the user's sink and replays any stored offline messages.
func (s *Server) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, username, s.cfg.MaxMessageSize)
	client.onClose = func() {
		// Presence cleanup stays tied to the explicit Disconnect call; the
		// stream going away only stops tracking the pumps.
		s.untrackClient(client)
	}

	s.startClient(client)
	s.sessions.Attach(username, client)
	client.log.Info("Receive stream opened")
}

// ChannelReceiveHandler upgrades to the ReceiveChannelMessages stream and
// subscribes it to the channel. Stream teardown unsubscribes synchronously,
// which is the mandatory cancellation hook for channel subscriptions.
func (s *Server) ChannelReceiveHandler(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	channelID := r.URL.Query().Get("channel")
	if username == "" || channelID == "" {
		http.Error(w, "username and channel are required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, username, s.cfg.MaxMessageSize)
	client.onClose = func() {
		s.channels.Unsubscribe(channelID, client)
		s.untrackClient(client)
	}

	s.startClient(client)
	s.channels.Subscribe(channelID, client)
	client.log.WithField("channel", channelID).Info("Channel stream opened")
}

// decodeJSON parses a POST body into dst, writing the error response itself
// when the request is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Error writing JSON response")
	}
}
