// Package server wires HTTP handlers into a ServeMux for the Courier
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application
// routes: the unary JSON operations, both stream upgrades, and the health
// check.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/connect", s.ConnectHandler)
	mux.HandleFunc("/disconnect", s.DisconnectHandler)
	mux.HandleFunc("/send", s.SendHandler)
	mux.HandleFunc("/channels", s.CreateChannelHandler)
	mux.HandleFunc("/channels/send", s.ChannelSendHandler)
	mux.HandleFunc("/channels/stats", s.ChannelStatsHandler)
	mux.HandleFunc("/ws", s.ReceiveHandler)
	mux.HandleFunc("/ws/channel", s.ChannelReceiveHandler)
	return mux
}
