// Package httpapi serves the admin REST API: account, message, folder,
// queue, topology and filter management over JSON.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/filter"
	"github.com/palomarmail/palomar/logger"
	"github.com/palomarmail/palomar/mail"
	"github.com/palomarmail/palomar/pkg/idgen"
	"github.com/palomarmail/palomar/platform"
)

const (
	maxScriptBytes  = 64 << 10
	maxMessageBytes = 1 << 20
)

// Server is the admin HTTP API server.
type Server struct {
	addr         string
	apiKey       string
	allowedHosts []string
	platform     *platform.Platform
	server       *http.Server
}

// ServerOptions holds configuration options for the HTTP API server.
type ServerOptions struct {
	Addr         string
	APIKey       string
	AllowedHosts []string // If empty, all hosts are allowed
}

// New creates a new HTTP API server around the platform.
func New(p *platform.Platform, options ServerOptions) *Server {
	return &Server{
		addr:         options.Addr,
		apiKey:       options.APIKey,
		allowedHosts: options.AllowedHosts,
		platform:     p,
	}
}

// Start runs the API server until ctx is cancelled, reporting a failed
// listen on errChan.
func Start(ctx context.Context, p *platform.Platform, options ServerOptions, errChan chan error) {
	server := New(p, options)
	if options.APIKey == "" {
		logger.Warn("HTTPAPI: no api_key configured, requests are unauthenticated")
	}

	logger.Info("HTTPAPI: starting admin API server", "addr", options.Addr)
	if err := server.start(ctx); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		errChan <- fmt.Errorf("HTTP API server failed: %w", err)
	}
}

func (s *Server) start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("HTTPAPI: shutting down admin API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTPAPI: error shutting down server", "error", err)
		}
	}()

	return s.server.ListenAndServe()
}

// setupRoutes configures all HTTP routes and middleware.
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.requestIDMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(s.allowedHostsMiddleware)
	router.Use(s.authMiddleware)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Account management routes
	v1.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	v1.HandleFunc("/accounts", s.handleListAccounts).Methods("GET")
	v1.HandleFunc("/accounts/{address}", s.handleDeleteAccount).Methods("DELETE")
	v1.HandleFunc("/accounts/{address}/folders", s.handleCreateFolder).Methods("POST")
	v1.HandleFunc("/accounts/{address}/folders", s.handleFolderTree).Methods("GET")
	v1.HandleFunc("/accounts/{address}/messages", s.handleListMessages).Methods("GET")
	v1.HandleFunc("/accounts/{address}/messages/{id}", s.handleGetMessage).Methods("GET")
	v1.HandleFunc("/accounts/{address}/messages/{id}/move", s.handleMoveMessage).Methods("POST")
	v1.HandleFunc("/accounts/{address}/search", s.handleSearchMessages).Methods("GET")
	v1.HandleFunc("/accounts/{address}/sieve", s.handleSetSieve).Methods("PUT")

	// Message submission routes
	v1.HandleFunc("/messages", s.handleSendMessage).Methods("POST")
	v1.HandleFunc("/messages/raw", s.handleSendRaw).Methods("POST")

	// Dispatch queue routes
	v1.HandleFunc("/queue", s.handleQueueStats).Methods("GET")
	v1.HandleFunc("/queue/dispatch", s.handleQueueDispatch).Methods("POST")

	// Topology routes
	v1.HandleFunc("/topology/servers", s.handleAddServer).Methods("POST")
	v1.HandleFunc("/topology/servers", s.handleListServers).Methods("GET")
	v1.HandleFunc("/topology/links", s.handleAddLink).Methods("POST")
	v1.HandleFunc("/topology/path", s.handleShortestPath).Methods("GET")
	v1.HandleFunc("/topology/explore", s.handleExplore).Methods("GET")

	// Filter routes
	v1.HandleFunc("/filters", s.handleListFilters).Methods("GET")
	v1.HandleFunc("/filters", s.handleAddFilter).Methods("POST")

	v1.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	return router
}

// Middleware functions

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := idgen.New()
		ctx := context.WithValue(r.Context(), consts.RequestIDKey, requestID)
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID, _ := r.Context().Value(consts.RequestIDKey).(string)
		next.ServeHTTP(w, r)
		logger.Info("HTTPAPI: request completed", "request_id", requestID,
			"method", r.Method, "path", r.URL.Path, "remote", getClientIP(r),
			"duration", time.Since(start))
	})
}

func (s *Server) allowedHostsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedHosts) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)
		allowed := false
		for _, allowedHost := range s.allowedHosts {
			if allowedHost == clientIP {
				allowed = true
				break
			}
			if strings.Contains(allowedHost, "/") {
				if _, cidr, err := net.ParseCIDR(allowedHost); err == nil {
					if ip := net.ParseIP(clientIP); ip != nil && cidr.Contains(ip) {
						allowed = true
						break
					}
				}
			}
		}

		if !allowed {
			s.writeError(w, http.StatusForbidden, "Host not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			s.writeError(w, http.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.apiKey)) != 1 {
			s.writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Utility functions

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("HTTPAPI: error encoding JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the platform's sentinel errors to HTTP statuses:
// missing entities to 404, duplicates to 409, unroutable deliveries to 422,
// malformed input to 400.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consts.ErrAccountNotFound),
		errors.Is(err, consts.ErrFolderNotFound),
		errors.Is(err, consts.ErrMessageNotFound),
		errors.Is(err, consts.ErrServerUnknown),
		errors.Is(err, consts.ErrQueueEmpty):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, consts.ErrAccountExists),
		errors.Is(err, consts.ErrFolderExists),
		errors.Is(err, consts.ErrServerExists),
		errors.Is(err, consts.ErrFilterExists):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, consts.ErrServerUnreachable),
		errors.Is(err, consts.ErrRouteUnavailable):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, consts.ErrMalformedMessage):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("HTTPAPI: internal error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Request types

type CreateAccountRequest struct {
	Address string `json:"address"`
	Server  string `json:"server"`
}

type CreateFolderRequest struct {
	Parent string `json:"parent"`
	Name   string `json:"name"`
}

type MoveMessageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type SendMessageRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
}

type DispatchRequest struct {
	Max int `json:"max"`
}

type AddServerRequest struct {
	ID string `json:"id"`
}

type AddLinkRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

type AddFilterRequest struct {
	Name     string `json:"name"`
	Field    string `json:"field"`
	Contains string `json:"contains"`
	Action   string `json:"action"`
	Tier     string `json:"tier"`
	Folder   string `json:"folder"`
}

// Handler functions

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Address == "" || req.Server == "" {
		s.writeError(w, http.StatusBadRequest, "Address and server are required")
		return
	}

	if err := s.platform.RegisterAccount(req.Address, req.Server); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"address": req.Address,
		"server":  req.Server,
		"message": "Account registered successfully",
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.platform.Accounts()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"total":    len(accounts),
	})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	if err := s.platform.DeregisterAccount(address); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"message": "Account deregistered successfully",
	})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	address := mux.Vars(r)["address"]

	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "Folder name is required")
		return
	}

	if err := s.platform.CreateFolder(address, req.Parent, req.Name); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"address": address,
		"parent":  req.Parent,
		"name":    req.Name,
		"message": "Folder created successfully",
	})
}

func (s *Server) handleFolderTree(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	tree, err := s.platform.FolderTree(address)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"tree":    tree,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	folderPath := r.URL.Query().Get("folder")
	if folderPath == "" {
		folderPath = consts.FolderInbox
	}

	messages, err := s.platform.ListMessages(address, folderPath)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":  address,
		"folder":   folderPath,
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]
	messageID := vars["id"]

	folderPath, msg, err := s.platform.GetMessage(address, messageID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	etag := `"` + msg.ContentHash + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"folder":  folderPath,
		"message": msg,
	})
}

func (s *Server) handleMoveMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	vars := mux.Vars(r)
	address := vars["address"]
	messageID := vars["id"]

	var req MoveMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.From == "" || req.To == "" {
		s.writeError(w, http.StatusBadRequest, "From and to folders are required")
		return
	}

	if err := s.platform.MoveMessage(address, req.From, req.To, messageID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message_id": messageID,
		"from":       req.From,
		"to":         req.To,
		"message":    "Message moved successfully",
	})
}

func (s *Server) handleSearchMessages(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	query := r.URL.Query().Get("q")

	results, err := s.platform.SearchMessages(address, query)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleSetSieve(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	address := mux.Vars(r)["address"]

	script, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScriptBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Script too large or unreadable")
		return
	}

	if err := s.platform.SetAccountScript(address, string(script)); err != nil {
		if errors.Is(err, consts.ErrAccountNotFound) {
			s.writeDomainError(w, err)
			return
		}
		// Compile failures carry the script's own error message.
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	installed := strings.TrimSpace(string(script)) != ""
	message := "Script installed successfully"
	if !installed {
		message = "Script removed"
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":   address,
		"installed": installed,
		"message":   message,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.From == "" || req.To == "" {
		s.writeError(w, http.StatusBadRequest, "From and to are required")
		return
	}

	result, err := s.platform.SendMessage(r.Context(), req.From, req.To,
		req.Subject, req.Body, mail.ParseTier(req.Priority))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleSendRaw(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Message too large or unreadable")
		return
	}
	if len(raw) == 0 {
		s.writeError(w, http.StatusBadRequest, "Message body is required")
		return
	}

	result, err := s.platform.IngestMessage(r.Context(), raw, r.Header.Get("X-Recipient"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.platform.QueueStats())
}

func (s *Server) handleQueueDispatch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req := DispatchRequest{Max: 10}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	entries := s.platform.DispatchBatch(r.Context(), req.Max)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"dispatched": len(entries),
		"entries":    entries,
	})
}

func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req AddServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ID == "" {
		s.writeError(w, http.StatusBadRequest, "Server id is required")
		return
	}

	if err := s.platform.RegisterServer(req.ID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      req.ID,
		"message": "Server registered successfully",
	})
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers := s.platform.Servers()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"servers": servers,
		"count":   len(servers),
	})
}

func (s *Server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req AddLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.A == "" || req.B == "" {
		s.writeError(w, http.StatusBadRequest, "Both link endpoints are required")
		return
	}

	if err := s.platform.LinkServers(req.A, req.B); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"a":       req.A,
		"b":       req.B,
		"message": "Link added successfully",
	})
}

func (s *Server) handleShortestPath(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		s.writeError(w, http.StatusBadRequest, "Both from and to are required")
		return
	}

	path, err := s.platform.Graph().ShortestPath(from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from": from,
		"to":   to,
		"path": path,
		"hops": len(path) - 1,
	})
}

func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		s.writeError(w, http.StatusBadRequest, "From is required")
		return
	}

	seq, err := s.platform.Graph().ExploreFrom(from)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var servers []string
	for id := range seq {
		servers = append(servers, id)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":    from,
		"servers": servers,
		"count":   len(servers),
	})
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	rules := s.platform.Filters().Rules()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"filters": rules,
		"count":   len(rules),
	})
}

func (s *Server) handleAddFilter(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req AddFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	rule, err := filter.NewRule(req.Name, req.Field, req.Contains, req.Action, req.Tier, req.Folder)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.platform.Filters().Register(rule); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"name":    rule.Name,
		"summary": rule.Summary,
		"message": "Filter registered successfully",
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.platform.Health())
}
