package distributionhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/contentieux/contentieux/internal/distribution"
	"github.com/contentieux/contentieux/internal/distribution/export"
	"github.com/contentieux/contentieux/internal/platform/httpx"
	"github.com/contentieux/contentieux/internal/shared"
	"github.com/contentieux/contentieux/report"
)

const requestTimeout = 5 * time.Second

// ReportService is the report contract used by the handler.
type ReportService interface {
	GetReport(ctx context.Context, req distribution.ReportRequest) (distribution.PeriodReport, error)
	Invalidate(ctx context.Context) error
	Rules() *distribution.RuleBook
}

// PDFRenderer converts HTML to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, filename, html string) ([]byte, error)
}

// WarmupEnqueuer schedules asynchronous report builds.
type WarmupEnqueuer interface {
	EnqueueReportWarmup(ctx context.Context, period, rule string) (string, error)
}

// Handler serves distribution reports over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   ReportService
	printer   PDFRenderer
	enqueuer  WarmupEnqueuer
	formatter export.Formatter
	validate  *validator.Validate
	now       func() time.Time
}

// NewHandler constructs the handler. printer and enqueuer may be nil, their
// routes then answer 503.
func NewHandler(logger *slog.Logger, service ReportService, printer PDFRenderer, enqueuer WarmupEnqueuer, formatter export.Formatter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		printer:   printer,
		enqueuer:  enqueuer,
		formatter: formatter,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type reportQuery struct {
	Period string `validate:"required,max=7"`
	Rule   string `validate:"omitempty,max=64,printascii"`
	Policy string `validate:"omitempty,oneof=halt skip"`
}

func (h *Handler) parseQuery(r *http.Request) (distribution.ReportRequest, error) {
	q := reportQuery{
		Period: strings.TrimSpace(chi.URLParam(r, "period")),
		Rule:   strings.TrimSpace(r.URL.Query().Get("rule")),
		Policy: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("policy"))),
	}
	if err := h.validate.Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return distribution.ReportRequest{}, fmt.Errorf("%w: %s", shared.ErrValidation, strings.ToLower(fieldErrs[0].Field()))
		}
		return distribution.ReportRequest{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return distribution.ReportRequest{
		Period:   q.Period,
		RuleCode: q.Rule,
		Policy:   distribution.InvalidRecordPolicy(q.Policy),
	}, nil
}

func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (distribution.PeriodReport, bool) {
	req, err := h.parseQuery(r)
	if err != nil {
		h.writeError(w, err)
		return distribution.PeriodReport{}, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	rep, err := h.service.GetReport(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return distribution.PeriodReport{}, false
	}
	return rep, true
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	buf := &bytes.Buffer{}
	if err := export.WriteReportCSV(buf, rep); err != nil {
		h.handleServerError(w, "write csv", err)
		return
	}
	h.sendFile(w, "text/csv; charset=utf-8", filename(rep, "csv"), buf.Bytes())
}

func (h *Handler) handleXLSX(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	data, err := export.BuildReportXLSX(rep)
	if err != nil {
		h.handleServerError(w, "build xlsx", err)
		return
	}
	h.sendFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename(rep, "xlsx"), data)
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	data, err := export.BuildReportPDF(rep, h.formatter)
	if err != nil {
		h.handleServerError(w, "build pdf", err)
		return
	}
	h.sendFile(w, "application/pdf", filename(rep, "pdf"), data)
}

func (h *Handler) handlePrint(w http.ResponseWriter, r *http.Request) {
	if h.printer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Renderer Unavailable", "")
		return
	}
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	html, err := export.RenderReportHTML(rep, h.formatter, h.now())
	if err != nil {
		h.handleServerError(w, "render html", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	pdf, err := h.printer.RenderHTML(ctx, filename(rep, "html"), html)
	if err != nil {
		if errors.Is(err, report.ErrNotConfigured) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Renderer Unavailable", "")
			return
		}
		h.logger.Error("gotenberg render", slog.String("period", rep.PeriodLabel), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Renderer Failed", "")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename(rep, "pdf")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) handleWarmup(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	req, err := h.parseQuery(r)
	if err == nil {
		err = req.Validate()
	}
	if err == nil {
		_, _, err = h.service.Rules().Resolve(req.RuleCode)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	taskID, err := h.enqueuer.EnqueueReportWarmup(r.Context(), req.Period, req.RuleCode)
	if err != nil {
		h.handleServerError(w, "enqueue warmup", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "period": req.Period})
}

func (h *Handler) handleBump(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context()); err != nil {
		h.handleServerError(w, "bump cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRules(w http.ResponseWriter, r *http.Request) {
	book := h.service.Rules()
	type ruleView struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Default     bool   `json:"default"`
	}
	codes := book.Codes()
	views := make([]ruleView, 0, len(codes))
	for _, code := range codes {
		_, rule, err := book.Resolve(code)
		if err != nil {
			continue
		}
		views = append(views, ruleView{Code: code, Description: rule.Describe(), Default: code == book.DefaultCode()})
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) sendFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func filename(rep distribution.PeriodReport, ext string) string {
	return fmt.Sprintf("repartition-%s.%s", rep.PeriodLabel, ext)
}

// writeError maps domain failures to problem documents.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var recErr *distribution.RecordError
	switch {
	case errors.As(err, &recErr):
		index := recErr.Index
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Type:   problemType(recErr.Err),
			Title:  "Invalid Case Record",
			Status: http.StatusUnprocessableEntity,
			Detail: err.Error(),
			CaseID: recErr.CaseID,
			Index:  &index,
		})
	case errors.Is(err, distribution.ErrInvalidRule):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Type:   problemType(err),
			Title:  "Invalid Rule",
			Status: http.StatusUnprocessableEntity,
			Detail: err.Error(),
		})
	case errors.Is(err, distribution.ErrRuleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Rule Not Found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidPeriod), errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, err)
	default:
		h.handleServerError(w, "load report", err)
	}
}

func problemType(err error) string {
	switch {
	case errors.Is(err, distribution.ErrInvalidAmount):
		return "/problems/invalid-amount"
	case errors.Is(err, distribution.ErrDuplicateCase):
		return "/problems/duplicate-case"
	case errors.Is(err, distribution.ErrInvalidRule):
		return "/problems/invalid-rule"
	case errors.Is(err, distribution.ErrInvalidRecord):
		return "/problems/invalid-record"
	}
	return ""
}

func (h *Handler) handleServerError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
