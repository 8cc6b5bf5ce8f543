// Package api exposes report generation and reads over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/platform/observability"
	"github.com/lueurxax/insights-engine/internal/report"
)

const (
	paramSubject   = "subject"
	paramCategory  = "category"
	paramID        = "id"
	queryInvestor  = "investorKey"
	queryLimit     = "limit"
	corsMaxAge     = 12 * time.Hour
	routeUnmatched = "unmatched"
)

// Reports is the report service as seen by the API.
type Reports interface {
	Generate(ctx context.Context, req report.Request) (report.Ack, error)
	Enqueue(ctx context.Context, req report.Request) (report.Ack, error)
	GetCategoryResult(ctx context.Context, subjectKey, category, investorKey string) (*report.ReportView, error)
	GetScores(ctx context.Context, subjectKey string) (*report.ScoresView, error)
	GetInvocation(ctx context.Context, id string) (*domain.Invocation, error)
	ListInvocations(ctx context.Context, subjectKey string, limit int) ([]domain.Invocation, error)
}

// Options configure the router.
type Options struct {
	AllowedOrigins []string
	StrictStatus   bool
}

// Handler serves the report API.
type Handler struct {
	reports Reports
	strict  bool
	logger  *zerolog.Logger
}

// NewHandler creates a report API handler.
func NewHandler(reports Reports, strict bool, logger *zerolog.Logger) *Handler {
	return &Handler{reports: reports, strict: strict, logger: logger}
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(reports Reports, opts Options, logger *zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: opts.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       corsMaxAge,
		}))
	}

	NewHandler(reports, opts.StrictStatus, logger).Register(r.Group("/api/v1"))

	return r
}

// Register mounts the routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/subjects/:subject/reports/:category", h.Generate)
	g.GET("/subjects/:subject/reports/:category", h.GetReport)
	g.GET("/subjects/:subject/scores", h.GetScores)
	g.GET("/subjects/:subject/invocations", h.ListInvocations)
	g.GET("/invocations/:id", h.GetInvocation)
}

// Generate (re)generates one report, synchronously unless async is requested.
func (h *Handler) Generate(c *gin.Context) {
	var body GenerateRequest

	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(c, fmt.Errorf("%w: invalid body: %v", apperrors.ErrValidation, err))

			return
		}
	}

	req := report.Request{
		SubjectKey:  c.Param(paramSubject),
		Category:    c.Param(paramCategory),
		InvestorKey: body.InvestorKey,
		Model:       body.Model,
		Provider:    body.Provider,
	}

	if req.InvestorKey == "" {
		req.InvestorKey = c.Query(queryInvestor)
	}

	run := h.reports.Generate
	if body.Async {
		run = h.reports.Enqueue
	}

	ack, err := run(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, GenerateResponse{Success: ack.Success, InvocationID: ack.InvocationID, Status: string(ack.Status)})
}

// GetReport returns the stored report of a category.
func (h *Handler) GetReport(c *gin.Context) {
	view, err := h.reports.GetCategoryResult(c.Request.Context(), c.Param(paramSubject), c.Param(paramCategory), c.Query(queryInvestor))
	if err != nil {
		h.writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, view)
}

// GetScores returns the subject's category scores and cached score.
func (h *Handler) GetScores(c *gin.Context) {
	view, err := h.reports.GetScores(c.Request.Context(), c.Param(paramSubject))
	if err != nil {
		h.writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, view)
}

// GetInvocation returns one invocation by correlation id.
func (h *Handler) GetInvocation(c *gin.Context) {
	inv, err := h.reports.GetInvocation(c.Request.Context(), c.Param(paramID))
	if err != nil {
		h.writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, toInvocationResponse(*inv))
}

// ListInvocations returns the subject's recent invocations.
func (h *Handler) ListInvocations(c *gin.Context) {
	limit := 0

	if raw := c.Query(queryLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(c, fmt.Errorf("%w: limit must be a non-negative integer", apperrors.ErrValidation))

			return
		}

		limit = n
	}

	invs, err := h.reports.ListInvocations(c.Request.Context(), c.Param(paramSubject), limit)
	if err != nil {
		h.writeError(c, err)

		return
	}

	out := make([]InvocationResponse, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvocationResponse(inv))
	}

	c.JSON(http.StatusOK, out)
}

// requestLogger logs every request and records its latency by route template.
func requestLogger(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = routeUnmatched
		}

		status := c.Writer.Status()
		elapsed := time.Since(start)

		observability.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", elapsed).
			Msg("http request")
	}
}
