package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/sreforge/debate-engine/internal/agentrunner"
	"github.com/sreforge/debate-engine/internal/config"
	"github.com/sreforge/debate-engine/internal/eventstream"
	"github.com/sreforge/debate-engine/internal/incident"
	"github.com/sreforge/debate-engine/internal/llmgateway"
	"github.com/sreforge/debate-engine/internal/metrics"
	"github.com/sreforge/debate-engine/internal/obs"
	"github.com/sreforge/debate-engine/internal/session"
	"github.com/sreforge/debate-engine/internal/store"
	"github.com/sreforge/debate-engine/internal/toolctx"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the debate engine's HTTP/WebSocket exposed-boundary stub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

// runServer wires config into a session.Service and serves it behind a
// minimal net/http + gorilla/websocket boundary, grounded on SPEC_FULL.md
// §6's "exposed-boundary stub" note: this is not the production
// incident/report HTTP facade (out of scope per spec.md §1), only a
// concrete, testable transport so create/subscribe/send_control have a
// real caller shape.
func runServer(cfg config.EngineConfig) error {
	metrics.Init()

	st, err := store.Open(cfg.Store.Backend, cfg.Store.RedisURL)
	if err != nil {
		return err
	}

	dispatcher := eventstream.NewDispatcher(st)
	tools := toolctx.NewService(cfg.DefaultSession.ToolsEnabled, nil)
	registerStubTools(tools)

	svc := session.New(session.Deps{
		Store:      st,
		Dispatcher: dispatcher,
		Gateway: llmgateway.New(llmgateway.NewHTTPProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL, ""), func(e eventstream.Event) error {
			return dispatcher.EmitFrom("llm_gateway", e)
		}),
		Tools:    tools,
		Registry: agentrunner.NewRegistry(),
		ModelID:  cfg.LLM.ModelID,
	})

	api := &apiServer{svc: svc, defaultSession: cfg.DefaultSession}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", api.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", api.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", api.handleCancel)
	mux.HandleFunc("POST /v1/sessions/{id}/resume", api.handleResume)
	mux.HandleFunc("POST /v1/sessions/{id}/retry", api.handleRetryFailedOnly)
	mux.HandleFunc("GET /v1/sessions/{id}/result", api.handleFinalResult)
	mux.HandleFunc("GET /v1/sessions/{id}/audit", api.handleAuditTrail)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", api.handleStream)
	mux.HandleFunc("GET /healthz", api.handleHealth)

	obs.Logger.WithField("addr", cfg.ListenAddr).Info("sreforge: listening")
	return http.ListenAndServe(cfg.ListenAddr, mux)
}

// registerStubTools registers a toolctx.Stub for every member of the
// fixed tool enumeration so the live server's Tool Context Service has
// something to invoke; real log/domain/source/metrics backends are
// external collaborators out of scope per spec.md §1.
func registerStubTools(tools *toolctx.Service) {
	for _, kind := range toolctx.AllKinds {
		tools.Register(toolctx.NewStub(kind, toolctx.Result{
			Status:  toolctx.StatusOK,
			Summary: "stubbed " + string(kind) + " result",
		}, nil))
	}
}

type apiServer struct {
	svc            *session.Service
	defaultSession incident.SessionConfig
	upgrader       websocket.Upgrader
}

func (a *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type createSessionRequest struct {
	Incident incident.Incident      `json:"incident"`
	Config   *incident.SessionConfig `json:"config,omitempty"`
}

func (a *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Incident.ID == "" {
		req.Incident.ID = uuid.New().String()
	}
	if req.Incident.CreatedAt.IsZero() {
		req.Incident.CreatedAt = time.Now()
	}

	cfg := a.defaultSession
	if req.Config != nil {
		cfg = *req.Config
	}

	sess, err := a.svc.Create(req.Incident, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.svc.Start(r.Context(), sess.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, sess)
}

func (a *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := a.svc.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Cancel(r.PathValue("id")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (a *apiServer) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Resume(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resuming"})
}

func (a *apiServer) handleRetryFailedOnly(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.RetryFailedOnly(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

// handleFinalResult blocks up to the caller-supplied timeout_ms query
// parameter (default 30s), per spec.md §4.9's blocking fetch-final-result.
func (a *apiServer) handleFinalResult(w http.ResponseWriter, r *http.Request) {
	timeout := 30 * time.Second
	if raw := r.URL.Query().Get("timeout_ms"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	fr, err := a.svc.FinalResult(r.Context(), r.PathValue("id"), timeout)
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err)
		return
	}
	writeJSON(w, http.StatusOK, fr)
}

func (a *apiServer) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.AuditTrail(r.PathValue("id")))
}

// handleStream upgrades to a WebSocket connection and relays
// session.Service.Subscribe's event channel until the client disconnects
// or unsubscribes, grounded on the teacher's
// internal/notifications/hub.go Subscriber fan-out shape, adapted from
// a hub-push model to a per-connection pull loop over one session's
// channel.
func (a *apiServer) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	resumeCursor := r.URL.Query().Get("cursor")

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obs.Logger.WithError(err).Warn("sreforge: websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, unsubscribe := a.svc.Subscribe(sessionID, resumeCursor)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go drainClientReads(conn, cancel)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}

// drainClientReads discards inbound WebSocket frames (this boundary is
// server-push only) and cancels ctx once the client closes the
// connection, since gorilla/websocket requires an active reader to
// detect a close frame.
func drainClientReads(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
