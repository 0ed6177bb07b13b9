// Package window serves the application window: the page that accepts
// drops and thumbnail clicks, and the API behind it.
package window

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"imgdrop/clipboard"
	"imgdrop/common"
	"imgdrop/config"
	"imgdrop/ingest"
	"imgdrop/metrics"
)

// Click results reported by HandleClick.
const (
	ClickIgnored = "ignored"
	ClickCopied  = "copied"
	ClickFailed  = "failed"
)

// Options wires the server to its collaborators. Prompts may be nil when
// saves are accepted automatically.
type Options struct {
	Config   *config.Config
	Pipeline *ingest.Pipeline
	Prompts  *PromptBroker
	Copier   *clipboard.Copier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Server handles window web requests
type Server struct {
	cfg      *config.Config
	pipeline *ingest.Pipeline
	display  *ingest.Display
	prompts  *PromptBroker
	copier   *clipboard.Copier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	engine   *gin.Engine

	// pipelines outlive the drop request; they stop when the server closes
	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup
}

// DropRequest is the body of POST /api/drop: every type of the drop's
// DataTransfer mapped to its string data.
type DropRequest struct {
	Data map[string]string `json:"data"`
}

// ClickRequest is the body of POST /api/click.
type ClickRequest struct {
	Tag    string `json:"tag"`
	SlotID string `json:"slot_id"`
}

type SaveRequest struct {
	Filename string `json:"filename"`
}

// SlotResponse is one entry of GET /api/slots.
type SlotResponse struct {
	ingest.SlotView
	ImageURL string      `json:"image_url"`
	Prompt   *PromptView `json:"prompt,omitempty"`
}

// NewServer creates a new window server
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, common.New(common.KindConfig, "window.new", "config is required")
	}
	if opts.Pipeline == nil {
		return nil, common.New(common.KindConfig, "window.new", "pipeline is required")
	}
	if opts.Copier == nil {
		opts.Copier = clipboard.NewCopier(nil, opts.Logger, opts.Metrics)
	}
	if opts.Logger == nil {
		opts.Logger = common.DiscardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      opts.Config,
		pipeline: opts.Pipeline,
		display:  opts.Pipeline.Display(),
		prompts:  opts.Prompts,
		copier:   opts.Copier,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "window"),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.engine = s.buildEngine()
	return s, nil
}

func (s *Server) buildEngine() *gin.Engine {
	if strings.EqualFold(s.cfg.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.loggingMiddleware())
	engine.SetHTMLTemplate(template.Must(template.New("index").Parse(indexTemplate)))

	engine.GET("/", s.handleIndex)
	engine.GET("/slots/:id/image", s.handleImage)
	engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := engine.Group("/api", requireJSON())
	api.POST("/drop", s.handleDrop)
	api.GET("/slots", s.handleSlots)
	api.POST("/slots/:id/save", s.handleSave)
	api.POST("/slots/:id/cancel", s.handleCancel)
	api.POST("/click", s.handleClick)

	return engine
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("window server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return common.Wrap(common.KindTransport, "window.start", "listen", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close abandons open prompts and waits for running pipelines.
func (s *Server) Close() {
	s.cancel()
	s.runs.Wait()
}

// Ingest starts an independent pipeline run for a drop and returns at once.
func (s *Server) Ingest(payload ingest.DragPayload) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		result, err := s.pipeline.Ingest(s.ctx, payload)
		if err != nil {
			s.logger.Error("drop failed", "outcome", result.Outcome, "url", result.CanonicalURL, "error", err)
			return
		}
		s.logger.Debug("drop finished", "outcome", result.Outcome, "url", result.CanonicalURL)
	}()
}

// HandleClick copies the clicked thumbnail. Only image elements trigger a copy.
func (s *Server) HandleClick(ctx context.Context, req ClickRequest) (string, error) {
	if !strings.EqualFold(req.Tag, "IMG") {
		return ClickIgnored, nil
	}

	slot, ok := s.display.Get(req.SlotID)
	if !ok {
		return ClickIgnored, nil
	}

	if err := s.copier.Copy(ctx, slot); err != nil {
		return ClickFailed, err
	}
	return ClickCopied, nil
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index", gin.H{
		"SaveDir":     s.cfg.Save.Dir,
		"AutoAccept":  s.cfg.Save.AutoAccept,
		"TrustedHost": ingest.TrustedPrefix,
	})
}

func (s *Server) handleDrop(c *gin.Context) {
	var req DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid drop payload"})
		return
	}

	s.Ingest(ingest.NewDragPayload(req.Data))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) handleSlots(c *gin.Context) {
	slots := s.display.List()
	out := make([]SlotResponse, 0, len(slots))
	for _, slot := range slots {
		resp := SlotResponse{
			SlotView: slot.View(),
			ImageURL: slot.CanonicalURL(),
		}
		if slot.Blob() != nil {
			resp.ImageURL = "/slots/" + slot.ID() + "/image"
		}
		if s.prompts != nil {
			if p, ok := s.prompts.Pending(slot.ID()); ok {
				resp.Prompt = &p
			}
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleImage(c *gin.Context) {
	slot, ok := s.display.Get(c.Param("id"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	blob := slot.Blob()
	if blob == nil {
		c.Redirect(http.StatusFound, slot.CanonicalURL())
		return
	}
	c.Data(http.StatusOK, blob.MIMEType, blob.Data)
}

func (s *Server) handleSave(c *gin.Context) {
	var req SaveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid save request"})
			return
		}
	}
	s.answerPrompt(c, func(id string) error {
		return s.prompts.Accept(id, req.Filename)
	})
}

func (s *Server) handleCancel(c *gin.Context) {
	s.answerPrompt(c, func(id string) error {
		return s.prompts.Dismiss(id)
	})
}

func (s *Server) answerPrompt(c *gin.Context, answer func(id string) error) {
	if s.prompts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoPrompt.Error()})
		return
	}

	switch err := answer(c.Param("id")); {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "answered"})
	case errors.Is(err, ErrNoPrompt):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleClick(c *gin.Context) {
	var req ClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid click"})
		return
	}

	// copy failures are logged by the copier and not shown to the user
	status, _ := s.HandleClick(c.Request.Context(), req)
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// requireJSON rejects API writes that are not application/json. Browsers
// preflight such cross-origin requests, so other pages cannot post here.
func requireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be application/json"})
			return
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
