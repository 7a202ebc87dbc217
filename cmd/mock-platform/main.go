// Command mock-platform runs a deterministic in-memory stand-in for a
// Traction / ACA-Py multitenant admin endpoint. It implements the
// routes the built-in capability description binds to, with just
// enough state for an issue-then-verify walkthrough: issued
// credentials carry a presentation exchange, and revoking a
// credential makes its subsequent verifications fail with reason
// "revoked".
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9091)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9091"
	}

	srv := &http.Server{Addr: ":" + port, Handler: NewPlatform().Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock platform starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock platform failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock platform shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Wire types ---

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type schemaRequest struct {
	SchemaName    string   `json:"schema_name"`
	SchemaVersion string   `json:"schema_version"`
	Attributes    []string `json:"attributes"`
}

type credDefRequest struct {
	SchemaID          string `json:"schema_id"`
	SupportRevocation bool   `json:"support_revocation"`
	Tag               string `json:"tag"`
}

type issueRequest struct {
	ConnectionID string            `json:"connection_id"`
	CredDefID    string            `json:"cred_def_id"`
	Attributes   map[string]string `json:"attributes"`
}

type revokeRequest struct {
	CredRevID string `json:"cred_rev_id"`
	RevRegID  string `json:"rev_reg_id"`
	Publish   bool   `json:"publish"`
}

type proofRequest struct {
	ConnectionID        string          `json:"connection_id"`
	PresentationRequest json.RawMessage `json:"presentation_request"`
}

type verifyResponse struct {
	PresExID string `json:"pres_ex_id"`
	State    string `json:"state"`
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// --- State ---

type schema struct {
	SchemaID   string   `json:"schema_id"`
	Name       string   `json:"schema_name"`
	Version    string   `json:"schema_version"`
	Attributes []string `json:"attrNames"`
}

type credential struct {
	credExID  string
	credRevID string
	presExID  string
	revoked   bool
}

// Platform is the in-memory platform state behind the HTTP surface.
type Platform struct {
	mu          sync.Mutex
	seq         int
	schemas     map[string]schema
	credDefs    map[string]credDefRequest
	credentials map[string]*credential // keyed by cred_rev_id
	exchanges   map[string]*credential // keyed by pres_ex_id
}

// NewPlatform returns a platform with one pre-made connection and no
// ledger objects.
func NewPlatform() *Platform {
	return &Platform{
		schemas:     make(map[string]schema),
		credDefs:    make(map[string]credDefRequest),
		credentials: make(map[string]*credential),
		exchanges:   make(map[string]*credential),
	}
}

func (p *Platform) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s-%04d", prefix, p.seq)
}

// Handler returns the admin API surface.
func (p *Platform) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /multitenancy/tenant/{tenant_id}/token", p.handleToken)
	mux.HandleFunc("GET /tenant", p.handleTenant)
	mux.HandleFunc("GET /connections", p.handleConnections)
	mux.HandleFunc("GET /schemas/created", p.handleCreatedSchemas)
	mux.HandleFunc("GET /schemas/{schema_id}", p.handleGetSchema)
	mux.HandleFunc("POST /schemas", p.handleCreateSchema)
	mux.HandleFunc("POST /credential-definitions", p.handleCreateCredDef)
	mux.HandleFunc("POST /out-of-band/create-invitation", p.handleInvitation)
	mux.HandleFunc("POST /issue-credential-2.0/send", p.handleIssue)
	mux.HandleFunc("POST /revocation/revoke", p.handleRevoke)
	mux.HandleFunc("POST /present-proof-2.0/send-request", p.handleProofRequest)
	mux.HandleFunc("POST /present-proof-2.0/records/{pres_ex_id}/verify-presentation", p.handleVerify)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

func (p *Platform) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "invalid tenant credentials"})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token: "mock-token-" + r.PathValue("tenant_id"),
	})
}

func (p *Platform) handleTenant(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"tenant_id":   "mock-tenant",
		"tenant_name": "Mock Issuer",
		"state":       "active",
	})
}

func (p *Platform) handleConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"results": []map[string]string{
			{
				"connection_id": "conn-0001",
				"state":         "active",
				"their_label":   "Mock Holder",
			},
		},
	})
}

func (p *Platform) handleCreatedSchemas(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.schemas))
	for id := range p.schemas {
		ids = append(ids, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema_ids": ids})
}

func (p *Platform) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.schemas[r.PathValue("schema_id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "schema not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": s})
}

func (p *Platform) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	var req schemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SchemaName == "" || req.SchemaVersion == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "schema_name and schema_version are required"})
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := schema{
		SchemaID:   fmt.Sprintf("mock:2:%s:%s", req.SchemaName, req.SchemaVersion),
		Name:       req.SchemaName,
		Version:    req.SchemaVersion,
		Attributes: req.Attributes,
	}
	p.schemas[s.SchemaID] = s
	writeJSON(w, http.StatusOK, map[string]any{"schema_id": s.SchemaID, "schema": s})
}

func (p *Platform) handleCreateCredDef(w http.ResponseWriter, r *http.Request) {
	var req credDefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SchemaID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "schema_id is required"})
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.schemas[req.SchemaID]; !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "schema not found on ledger"})
		return
	}
	id := p.nextID("mock:3:CL")
	p.credDefs[id] = req
	writeJSON(w, http.StatusOK, map[string]string{"credential_definition_id": id})
}

func (p *Platform) handleInvitation(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	id := p.nextID("oob")
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"invi_msg_id":    id,
		"invitation_url": "http://mock-platform/invite?oob=" + id,
	})
}

func (p *Platform) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConnectionID == "" || req.CredDefID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "connection_id and cred_def_id are required"})
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.credDefs[req.CredDefID]; !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "credential definition not found"})
		return
	}
	cred := &credential{
		credExID:  p.nextID("cred-ex"),
		credRevID: p.nextID("rev"),
		presExID:  p.nextID("pres-ex"),
	}
	p.credentials[cred.credRevID] = cred
	p.exchanges[cred.presExID] = cred
	writeJSON(w, http.StatusOK, map[string]string{
		"cred_ex_id":  cred.credExID,
		"cred_rev_id": cred.credRevID,
		"rev_reg_id":  "mock-rev-reg",
		"pres_ex_id":  cred.presExID,
		"state":       "credential-issued",
	})
}

func (p *Platform) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CredRevID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "cred_rev_id is required"})
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cred, ok := p.credentials[req.CredRevID]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "credential not found"})
		return
	}
	cred.revoked = true
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (p *Platform) handleProofRequest(w http.ResponseWriter, r *http.Request) {
	var req proofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConnectionID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "connection_id is required"})
		return
	}
	p.mu.Lock()
	id := p.nextID("pres-ex")
	p.exchanges[id] = &credential{presExID: id}
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"pres_ex_id": id,
		"state":      "request-sent",
	})
}

func (p *Platform) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("pres_ex_id")
	p.mu.Lock()
	defer p.mu.Unlock()
	cred, ok := p.exchanges[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "presentation exchange not found"})
		return
	}
	resp := verifyResponse{PresExID: id, State: "done", Verified: !cred.revoked}
	if cred.revoked {
		resp.Reason = "revoked"
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
