package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"secops-dashboard/internal/service"
	"secops-dashboard/internal/util"
)

// maxSampleSize is the largest file VirusTotal accepts on /files.
const maxSampleSize = 32 << 20

// IntelHandler exposes the VirusTotal and OTX lookups.
type IntelHandler struct {
	lookups *service.LookupService
	limiter func(http.Handler) http.Handler
	logger  *zap.Logger
}

type keyRequest struct {
	APIKey string `json:"apiKey"`
}

type urlRequest struct {
	URL string `json:"url"`
}

// NewIntelHandler builds the handler. limiter wraps the lookup routes and
// may be nil.
func NewIntelHandler(lookups *service.LookupService, limiter func(http.Handler) http.Handler, logger *zap.Logger) *IntelHandler {
	if limiter == nil {
		limiter = func(next http.Handler) http.Handler { return next }
	}
	return &IntelHandler{lookups: lookups, limiter: limiter, logger: logger}
}

func (h *IntelHandler) RegisterRoutes(router chi.Router) {
	router.Route("/virustotal", func(r chi.Router) {
		r.Put("/key", h.SetVirusTotalKey)
		r.Group(func(r chi.Router) {
			r.Use(h.limiter)
			r.Get("/ip/{ip}", h.VirusTotalIP)
			r.Get("/domain/{domain}", h.VirusTotalDomain)
			r.Get("/file/{hash}", h.VirusTotalFileHash)
			r.Post("/url", h.VirusTotalURL)
			r.Post("/file", h.VirusTotalUpload)
			r.Get("/analyses/{id}", h.VirusTotalAnalysis)
		})
	})
	router.Route("/otx", func(r chi.Router) {
		r.Put("/key", h.SetOTXKey)
		r.Group(func(r chi.Router) {
			r.Use(h.limiter)
			r.Get("/pulses", h.OTXPulses)
			r.Get("/ip/{ip}", h.OTXIP)
			r.Get("/domain/{domain}", h.OTXDomain)
			r.Get("/file/{hash}", h.OTXFileHash)
			r.Get("/threat-map", h.OTXThreatMap)
		})
	})
	router.Get("/keys", h.KeyStatus)
}

func (h *IntelHandler) KeyStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(h.lookups.Keys(), "Key status retrieved successfully"))
}

// SetVirusTotalKey replaces the VirusTotal API key. An empty key clears it.
func (h *IntelHandler) SetVirusTotalKey(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeKey(w, r)
	if !ok {
		return
	}
	h.lookups.SetVirusTotalKey(req.APIKey)
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(h.lookups.Keys(), "VirusTotal API key updated"))
}

func (h *IntelHandler) SetOTXKey(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeKey(w, r)
	if !ok {
		return
	}
	h.lookups.SetOTXKey(req.APIKey)
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(h.lookups.Keys(), "OTX API key updated"))
}

func (h *IntelHandler) VirusTotalIP(w http.ResponseWriter, r *http.Request) {
	report, err := h.lookups.VirusTotalIP(r.Context(), chi.URLParam(r, "ip"))
	h.respondReport(w, report, err, "IP report")
}

func (h *IntelHandler) VirusTotalDomain(w http.ResponseWriter, r *http.Request) {
	report, err := h.lookups.VirusTotalDomain(r.Context(), chi.URLParam(r, "domain"))
	h.respondReport(w, report, err, "Domain report")
}

func (h *IntelHandler) VirusTotalFileHash(w http.ResponseWriter, r *http.Request) {
	report, err := h.lookups.VirusTotalFileHash(r.Context(), chi.URLParam(r, "hash"))
	h.respondReport(w, report, err, "File report")
}

func (h *IntelHandler) VirusTotalURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err), "Invalid request body")
		return
	}
	report, err := h.lookups.VirusTotalURL(r.Context(), req.URL)
	h.respondReport(w, report, err, "URL report")
}

// VirusTotalUpload submits the multipart "file" field for scanning.
func (h *IntelHandler) VirusTotalUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSampleSize+uploadOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithJSON(h.logger, w, http.StatusRequestEntityTooLarge,
				errorResponse(err, "File exceeds the 32MB upload limit"))
			return
		}
		respondWithError(h.logger, w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err), "Invalid file upload")
		return
	}
	defer file.Close()

	report, err := h.lookups.VirusTotalUpload(r.Context(), header.Filename, file)
	h.respondReport(w, report, err, "File analysis")
}

func (h *IntelHandler) VirusTotalAnalysis(w http.ResponseWriter, r *http.Request) {
	report, err := h.lookups.VirusTotalAnalysis(r.Context(), chi.URLParam(r, "id"))
	h.respondReport(w, report, err, "Analysis")
}

// OTXPulses handles GET /otx/pulses?limit=
func (h *IntelHandler) OTXPulses(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultPulseLimit)
	if err != nil {
		respondWithError(h.logger, w, err, "Invalid limit")
		return
	}
	pulses, cached, err := h.lookups.OTXPulses(r.Context(), limit)
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to fetch OTX pulses")
		return
	}
	resp := successResponse(pulses.Results, "Pulses retrieved successfully")
	resp.Meta = &Meta{Total: pulses.Count, Cached: cached}
	respondWithJSON(h.logger, w, http.StatusOK, resp)
}

func (h *IntelHandler) OTXIP(w http.ResponseWriter, r *http.Request) {
	report, err := h.lookups.OTXIP(r.Context(), chi.URLParam(r, "ip"))
	h.respondOTX(w, report, err, "IP")
}

func (h *IntelHandler) OTXDomain(w http.ResponseWriter, r *http.Request) {
	report, err := h.lookups.OTXDomain(r.Context(), chi.URLParam(r, "domain"))
	h.respondOTX(w, report, err, "Domain")
}

func (h *IntelHandler) OTXFileHash(w http.ResponseWriter, r *http.Request) {
	report, err := h.lookups.OTXFileHash(r.Context(), chi.URLParam(r, "hash"))
	h.respondOTX(w, report, err, "File hash")
}

func (h *IntelHandler) OTXThreatMap(w http.ResponseWriter, r *http.Request) {
	m, cached, err := h.lookups.OTXThreatMap(r.Context())
	if err != nil {
		respondWithError(h.logger, w, err, "Failed to build threat map")
		return
	}
	resp := successResponse(m, "Threat map retrieved successfully")
	resp.Meta = &Meta{Total: len(m.Regions), Cached: cached}
	respondWithJSON(h.logger, w, http.StatusOK, resp)
}

func (h *IntelHandler) decodeKey(w http.ResponseWriter, r *http.Request) (keyRequest, bool) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err), "Invalid request body")
		return req, false
	}
	return req, true
}

func (h *IntelHandler) respondReport(w http.ResponseWriter, report service.VTReport, err error, what string) {
	if err != nil {
		respondWithError(h.logger, w, err, "VirusTotal lookup failed")
		return
	}
	if report.Alerted {
		h.logger.Info("VirusTotal lookup raised an alert",
			util.String("report_id", report.Report.ID),
			util.Float64("threat_score", report.ThreatScore))
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(report, what+" retrieved successfully"))
}

func (h *IntelHandler) respondOTX(w http.ResponseWriter, report any, err error, what string) {
	if err != nil {
		respondWithError(h.logger, w, err, "OTX lookup failed")
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(report, what+" indicator retrieved successfully"))
}
