// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// APIServer is the thin HTTP front end the hosting process uses to drive the
// session: status, lifecycle commands, contact listing and sends. No
// business logic lives here beyond request validation and status-code
// mapping.
type APIServer struct {
	sup      *Supervisor
	sender   *Sender
	contacts *ContactCache
	log      zerolog.Logger
	srv      *http.Server
}

func NewAPIServer(cfg *Config, sup *Supervisor, sender *Sender, contacts *ContactCache, log zerolog.Logger) *APIServer {
	a := &APIServer{
		sup:      sup,
		sender:   sender,
		contacts: contacts,
		log:      log.With().Str("component", "api").Logger(),
	}
	a.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      a.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a
}

// Router returns the control API handler. Exposed separately from Start so
// tests can drive it through httptest.
func (a *APIServer) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("POST /connect", a.handleConnect)
	mux.HandleFunc("POST /disconnect", a.handleDisconnect)
	mux.HandleFunc("GET /contacts", a.handleContacts)
	mux.HandleFunc("POST /send", a.handleSend)
	return a.logMiddleware(corsMiddleware(mux))
}

// Start runs the server until Shutdown.
func (a *APIServer) Start() {
	go func() {
		a.log.Info().Str("addr", a.srv.Addr).Msg("Starting control API")
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("Control API error")
		}
	}()
}

// Shutdown drains in-flight requests until ctx expires.
func (a *APIServer) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *APIServer) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).Msg("Request")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusResponse mirrors the supervisor's Status for the wire: qrCode is
// null (not "") when no challenge is pending.
type statusResponse struct {
	Status               string  `json:"status"`
	QRCode               *string `json:"qrCode"`
	LastDisconnectReason string  `json:"lastDisconnectReason"`
	Retries              int     `json:"retries"`
}

func (a *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := a.sup.Status()
	resp := statusResponse{
		Status:               st.State.String(),
		LastDisconnectReason: st.LastDisconnect,
		Retries:              st.Retries,
	}
	if st.QRCode != "" {
		resp.QRCode = &st.QRCode
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *APIServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	state, started := a.sup.RequestConnect()
	if !started {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "already " + state.String(),
			"status":  state.String(),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "connecting",
	})
}

func (a *APIServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	a.sup.RequestDisconnect(r.Context(), true)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "logged out",
		"status":  a.sup.Status().State.String(),
	})
}

func (a *APIServer) handleContacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.contacts.List())
}

type sendRequest struct {
	JID     string `json:"jid"`
	Options *struct {
		Text string `json:"text"`
	} `json:"options"`
}

type sendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (a *APIServer) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.JID == "" || req.Options == nil || req.Options.Text == "" {
		writeError(w, http.StatusBadRequest, "jid and options.text are required")
		return
	}

	msgID, err := a.sender.SendText(r.Context(), req.JID, req.Options.Text)
	if err != nil {
		a.log.Warn().Err(err).Str("jid", req.JID).Msg("Send failed")
		writeJSON(w, http.StatusInternalServerError, sendResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{
		Success:   true,
		MessageID: msgID,
	})
}
