package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"secops-dashboard/internal/models"
	"secops-dashboard/internal/service"
	"secops-dashboard/internal/util"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	// multipart framing on top of the log file itself
	uploadOverhead = 1 << 20
	maxAlertBody   = 16 << 10
)

// DashboardHandler serves the alert, traffic, status and log views.
type DashboardHandler struct {
	alerts  *service.AlertService
	traffic *service.TrafficService
	status  *service.StatusService
	logs    *service.LogAnalysisService
	logger  *zap.Logger
}

func NewDashboardHandler(alerts *service.AlertService, traffic *service.TrafficService, status *service.StatusService, logs *service.LogAnalysisService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		alerts:  alerts,
		traffic: traffic,
		status:  status,
		logs:    logs,
		logger:  logger,
	}
}

func (h *DashboardHandler) RegisterRoutes(router chi.Router) {
	router.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.ListAlerts)
		r.Post("/analyze", h.AnalyzeAlert)
		r.Get("/search", h.SearchAlerts)
	})
	router.Get("/traffic", h.ListTraffic)
	router.Get("/anomalies", h.ListAnomalies)
	router.Get("/status", h.SystemStatus)
	router.Get("/systems/health", h.SystemHealth)
	router.Post("/logs/analyze", h.AnalyzeLog)
}

// ListAlerts handles GET /alerts?severity=critical|warning|info|all
func (h *DashboardHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListActive(r.Context(), r.URL.Query().Get("severity"))
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to list alerts")
		return
	}
	h.respondList(w, alerts, len(alerts), "Alerts retrieved successfully")
}

// AnalyzeAlert stores a new alert and returns it with its analysis.
func (h *DashboardHandler) AnalyzeAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req models.NewAlert
	r.Body = http.MaxBytesReader(w, r.Body, maxAlertBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err), "Invalid request body")
		return
	}

	result, err := h.alerts.Analyze(ctx, req)
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to analyze alert")
		return
	}

	respondWithJSON(h.logger, w, http.StatusCreated, successResponse(result, "Alert analyzed successfully"))
	h.logger.Info("Alert analyzed via HTTP",
		util.String("alert_id", result.Alert.ID),
		util.String("classification", result.Analysis.Classification),
		util.Duration("duration", time.Since(startTime)),
	)
}

// SearchAlerts handles GET /alerts/search?q=&limit=
func (h *DashboardHandler) SearchAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultSearchLimit)
	if err != nil {
		respondWithError(h.logger, w, err, "Invalid limit")
		return
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	alerts, err := h.alerts.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to search alerts")
		return
	}
	h.respondList(w, alerts, len(alerts), "Alerts retrieved successfully")
}

// ListTraffic handles GET /traffic?sort=&order=asc|desc
func (h *DashboardHandler) ListTraffic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.traffic.ListTraffic(r.Context(), q.Get("sort"), q.Get("order"))
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to list traffic")
		return
	}
	h.respondList(w, records, len(records), "Traffic retrieved successfully")
}

func (h *DashboardHandler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	samples, err := h.traffic.ListAnomalies(r.Context())
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to list anomalies")
		return
	}
	h.respondList(w, samples, len(samples), "Anomalies retrieved successfully")
}

func (h *DashboardHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.status.SystemStatus(r.Context())
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to load system status")
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(status, "System status retrieved successfully"))
}

func (h *DashboardHandler) SystemHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.status.SystemHealth(r.Context())
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to load system health")
		return
	}
	h.respondList(w, health, len(health), "System health retrieved successfully")
}

// AnalyzeLog handles a multipart upload with the log in the "file" field.
func (h *DashboardHandler) AnalyzeLog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxLogFileSize+uploadOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = service.ErrLogFileTooLarge
		} else {
			err = fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
		}
		respondWithError(h.logger, w, err, "Invalid log upload")
		return
	}
	defer file.Close()

	result, err := h.logs.Analyze(r.Context(), header.Filename, file)
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to analyze log file")
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(result, "Log file analyzed successfully"))
}

func (h *DashboardHandler) respondList(w http.ResponseWriter, data interface{}, total int, message string) {
	resp := successResponse(data, message)
	resp.Meta = &Meta{Total: total, Mode: h.status.Mode()}
	respondWithJSON(h.logger, w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", service.ErrInvalidInput, name)
	}
	return n, nil
}
