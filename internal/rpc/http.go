package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docvet/internal/logging"
	"docvet/internal/types"
)

// HTTPServer exposes the dispatcher over HTTP: POST /rpc for calls,
// GET /ws for the WebSocket stream, /healthz and /metrics for operators.
// RPC responses carry the taxonomy's HTTP status alongside the JSON-RPC
// error envelope.
type HTTPServer struct {
	async   *Async
	metrics *Metrics
	srv     *http.Server
}

// NewHTTPServer builds the gin engine and routes. metrics may be nil to
// disable the scrape endpoint.
func NewHTTPServer(addr string, async *Async, metrics *Metrics) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	s := &HTTPServer{async: async, metrics: metrics}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.POST("/rpc", s.handleRPC)
	engine.GET("/ws", s.handleWS)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. A closed server is a clean return.
func (s *HTTPServer) Start() error {
	logging.HTTP("listening on %s", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logging.HTTP("shutting down")
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) handleRPC(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		resp := errorResponse(nullID, err)
		c.JSON(resp.HTTPStatus(), resp)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		resp := errorResponse(nullID, types.NewInvalidRequest("Invalid JSON: %v", err))
		c.JSON(resp.HTTPStatus(), resp)
		return
	}

	resp := s.async.Dispatch(c.Request.Context(), &req)
	c.JSON(resp.HTTPStatus(), resp)
}

func readBody(c *gin.Context) ([]byte, error) {
	limited := http.MaxBytesReader(c.Writer, c.Request.Body, maxMessageSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, types.NewInvalidRequest("Request body unreadable: %v", err)
	}
	return body, nil
}

// requestLogger is the access log, one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.HTTP("%s %s -> %d in %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Round(time.Microsecond))
	}
}
