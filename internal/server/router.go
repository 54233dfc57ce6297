package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mod-net/stack/internal/metrics"
	"github.com/mod-net/stack/internal/orchestrator"
)

// Router provides embeddable HTTP handlers over the orchestrator.
// Endpoints:
//
//	POST {basePath}/start    query: name=... (all services when omitted)
//	POST {basePath}/stop     query: name=... (all services when omitted)
//	POST {basePath}/restart  query: name=... (required)
//	GET  {basePath}/status   query: name=... (all services when omitted)
//	GET  {basePath}/check    one-shot connectivity probes, no process changes
//	GET  {basePath}/healthz  liveness of the orchestrator itself
//	GET  {basePath}/metrics  prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	orc      *orchestrator.Orchestrator
	basePath string
}

func NewRouter(orc *orchestrator.Orchestrator, basePath string) *Router {
	return &Router{orc: orc, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.GET("/status", r.handleStatus)
	group.GET("/check", r.handleCheck)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shutdown via the returned server's Close or Shutdown.
func NewServer(addr, basePath string, orc *orchestrator.Orchestrator) (*http.Server, error) {
	r := NewRouter(orc, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type bulkResp struct {
	OK        bool     `json:"ok"`
	Attempted []string `json:"attempted"`
	Failed    []string `json:"failed,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func toBulkResp(res *orchestrator.BulkResult) bulkResp {
	out := bulkResp{OK: res.OK(), Attempted: res.Attempted, Failed: res.Failed}
	if err := res.Err(); err != nil {
		out.Error = err.Error()
	}
	return out
}

// statusCode maps the error taxonomy onto HTTP statuses.
func statusCode(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrUnknownService):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrLockTimeout),
		errors.Is(err, orchestrator.ErrHealthTimeout):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) handleStart(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		res := r.orc.StartAll()
		writeJSON(c, bulkStatus(res), toBulkResp(res))
		return
	}
	if err := r.orc.StartOne(name); err != nil {
		writeJSON(c, statusCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		res := r.orc.StopAll()
		writeJSON(c, bulkStatus(res), toBulkResp(res))
		return
	}
	if err := r.orc.StopOne(name); err != nil {
		writeJSON(c, statusCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	if err := r.orc.RestartOne(name); err != nil {
		writeJSON(c, statusCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusOK, r.orc.StatusAll())
		return
	}
	st, err := r.orc.Status(name)
	if err != nil {
		writeJSON(c, statusCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleCheck(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.orc.CheckAll())
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func bulkStatus(res *orchestrator.BulkResult) int {
	if res.OK() {
		return http.StatusOK
	}
	return http.StatusConflict
}
