package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secops-dashboard/internal/models"
	"secops-dashboard/internal/provider/otx"
	"secops-dashboard/internal/provider/virustotal"
	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/repository"
	"secops-dashboard/internal/scoring"
	"secops-dashboard/internal/util"
)

const (
	DefaultPulseLimit = 10
	MaxPulseLimit     = 50
)

// VTReport is a VirusTotal object with its threat score.
type VTReport struct {
	ID          string             `json:"id,omitempty"`
	Report      *virustotal.Object `json:"report"`
	ThreatScore float64            `json:"threatScore"`
	Known       bool               `json:"known"`
	Alerted     bool               `json:"alerted"`
	Cached      bool               `json:"cached"`
}

// OTXReport is an OTX indicator lookup with the number of pulses naming it.
type OTXReport[T any] struct {
	Result     *T   `json:"result"`
	PulseCount int  `json:"pulseCount"`
	Alerted    bool `json:"alerted"`
	Cached     bool `json:"cached"`
}

type KeyStatus struct {
	VirusTotal bool `json:"virustotal"`
	OTX        bool `json:"otx"`
}

// alertTemplate describes the alert raised when a lookup crosses its threshold.
type alertTemplate struct {
	Type        string
	SourceIP    string
	Destination string
	Description string
}

// LookupService runs provider lookups and raises alerts for indicators
// that look malicious. Alert and audit failures never fail a lookup.
type LookupService struct {
	vt       *virustotal.Client
	otx      *otx.Client
	alerts   *AlertService
	notifier realtime.Notifier
	recorder repository.LookupRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewLookupService(vt *virustotal.Client, otxClient *otx.Client, alerts *AlertService, notifier realtime.Notifier, recorder repository.LookupRecorder, logger *zap.Logger) *LookupService {
	return &LookupService{
		vt:       vt,
		otx:      otxClient,
		alerts:   alerts,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *LookupService) SetVirusTotalKey(key string) {
	s.vt.SetAPIKey(key)
}

func (s *LookupService) SetOTXKey(key string) {
	s.otx.SetAPIKey(key)
}

func (s *LookupService) Keys() KeyStatus {
	return KeyStatus{VirusTotal: s.vt.HasAPIKey(), OTX: s.otx.HasAPIKey()}
}

func (s *LookupService) VirusTotalIP(ctx context.Context, raw string) (VTReport, error) {
	ip, err := util.NormalizeIP(raw)
	if err != nil {
		return VTReport{}, invalid(err)
	}
	start := s.now()
	obj, hit, err := s.vt.LookupIP(ctx, ip)
	return s.finishVT(ctx, "ip", ip, start, obj, hit, err, alertTemplate{
		Type:        "Suspicious IP",
		SourceIP:    ip,
		Description: "VirusTotal detected this IP as potentially malicious",
	})
}

func (s *LookupService) VirusTotalDomain(ctx context.Context, raw string) (VTReport, error) {
	domain, err := util.NormalizeDomain(raw)
	if err != nil {
		return VTReport{}, invalid(err)
	}
	start := s.now()
	obj, hit, err := s.vt.LookupDomain(ctx, domain)
	return s.finishVT(ctx, "domain", domain, start, obj, hit, err, alertTemplate{
		Type:        "Suspicious Domain",
		Destination: domain,
		Description: "VirusTotal detected this domain as potentially malicious",
	})
}

func (s *LookupService) VirusTotalFileHash(ctx context.Context, raw string) (VTReport, error) {
	hash, err := util.NormalizeHash(raw)
	if err != nil {
		return VTReport{}, invalid(err)
	}
	start := s.now()
	obj, hit, err := s.vt.LookupFile(ctx, hash)
	return s.finishVT(ctx, "file", hash, start, obj, hit, err, alertTemplate{
		Type:        "Suspicious File Hash",
		Description: "VirusTotal detected this file hash as potentially malicious",
	})
}

// VirusTotalURL submits a URL for scanning and then reads its analysis.
func (s *LookupService) VirusTotalURL(ctx context.Context, raw string) (VTReport, error) {
	target := strings.TrimSpace(raw)
	u, err := url.ParseRequestURI(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return VTReport{}, fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidInput)
	}
	start := s.now()
	scanID, err := s.vt.SubmitURL(ctx, target)
	if err != nil {
		s.record(ctx, virustotal.Name, "url", target, start, false, scoring.Assessment{}, false, err)
		return VTReport{}, err
	}
	obj, hit, err := s.vt.GetURLReport(ctx, scanID)
	report, err := s.finishVT(ctx, "url", target, start, obj, hit, err, alertTemplate{
		Type:        "Suspicious URL",
		Destination: target,
		Description: "VirusTotal detected this URL as potentially malicious",
	})
	report.ID = scanID
	return report, err
}

// VirusTotalUpload uploads a file for scanning and then reads its analysis.
func (s *LookupService) VirusTotalUpload(ctx context.Context, fileName string, content io.Reader) (VTReport, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return VTReport{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	start := s.now()
	analysisID, err := s.vt.UploadFile(ctx, fileName, content)
	if err != nil {
		s.record(ctx, virustotal.Name, "upload", fileName, start, false, scoring.Assessment{}, false, err)
		return VTReport{}, err
	}
	obj, hit, err := s.vt.GetAnalysisReport(ctx, analysisID)
	report, err := s.finishVT(ctx, "upload", fileName, start, obj, hit, err, alertTemplate{
		Type:        "Suspicious File",
		Description: fmt.Sprintf("VirusTotal detected the file %q as potentially malicious", fileName),
	})
	report.ID = analysisID
	return report, err
}

// VirusTotalAnalysis reads a previous submission's analysis without raising alerts.
func (s *LookupService) VirusTotalAnalysis(ctx context.Context, raw string) (VTReport, error) {
	id, err := util.SanitizeIndicator(raw)
	if err != nil {
		return VTReport{}, invalid(err)
	}
	start := s.now()
	obj, hit, err := s.vt.GetAnalysisReport(ctx, id)
	report, err := s.finishVT(ctx, "analysis", id, start, obj, hit, err, alertTemplate{})
	report.ID = id
	return report, err
}

func (s *LookupService) finishVT(ctx context.Context, kind, indicator string, start time.Time, obj *virustotal.Object, hit bool, err error, tmpl alertTemplate) (VTReport, error) {
	if err != nil {
		s.record(ctx, virustotal.Name, kind, indicator, start, hit, scoring.Assessment{}, false, err)
		return VTReport{}, err
	}
	assessment := scoring.Assess(obj.DetectionStats())
	report := VTReport{
		Report:      obj,
		ThreatScore: assessment.Score,
		Known:       assessment.Known,
		Cached:      hit,
	}
	if tmpl.Type != "" && scoring.ShouldAlert(assessment.Score) {
		tmpl.Description = fmt.Sprintf("%s (Score: %.1f%%)", tmpl.Description, assessment.Score*100)
		report.Alerted = s.raise(ctx, tmpl, scoring.SeverityForScore(assessment.Score))
	}
	s.record(ctx, virustotal.Name, kind, indicator, start, hit, assessment, report.Alerted, nil)
	return report, nil
}

func (s *LookupService) OTXIP(ctx context.Context, raw string) (OTXReport[otx.IPResponse], error) {
	ip, err := util.NormalizeIP(raw)
	if err != nil {
		return OTXReport[otx.IPResponse]{}, invalid(err)
	}
	return otxLookup(ctx, s, "ip", ip, s.otx.IPInfo,
		func(r *otx.IPResponse) otx.PulseInfo { return r.PulseInfo },
		scoring.SeverityForPulseCount,
		func(n int) alertTemplate {
			return alertTemplate{
				Type:        "OTX IP Threat",
				SourceIP:    ip,
				Description: fmt.Sprintf("IP address found in %d OTX pulses. Possible threat detected.", n),
			}
		})
}

func (s *LookupService) OTXDomain(ctx context.Context, raw string) (OTXReport[otx.DomainResponse], error) {
	domain, err := util.NormalizeDomain(raw)
	if err != nil {
		return OTXReport[otx.DomainResponse]{}, invalid(err)
	}
	return otxLookup(ctx, s, "domain", domain, s.otx.DomainInfo,
		func(r *otx.DomainResponse) otx.PulseInfo { return r.PulseInfo },
		scoring.SeverityForPulseCount,
		func(n int) alertTemplate {
			return alertTemplate{
				Type:        "OTX Domain Threat",
				Destination: domain,
				Description: fmt.Sprintf("Domain found in %d OTX pulses. Possible threat detected.", n),
			}
		})
}

func (s *LookupService) OTXFileHash(ctx context.Context, raw string) (OTXReport[otx.FileResponse], error) {
	hash, err := util.NormalizeHash(raw)
	if err != nil {
		return OTXReport[otx.FileResponse]{}, invalid(err)
	}
	return otxLookup(ctx, s, "file", hash, s.otx.FileInfo,
		func(r *otx.FileResponse) otx.PulseInfo { return r.PulseInfo },
		scoring.SeverityForFilePulseCount,
		func(n int) alertTemplate {
			return alertTemplate{
				Type:        "OTX Hash Threat",
				Description: fmt.Sprintf("File hash found in %d OTX pulses. Possible malware detected.", n),
			}
		})
}

// OTXPulses returns subscribed pulses; limit defaults to 10 and is capped at 50.
func (s *LookupService) OTXPulses(ctx context.Context, limit int) (*otx.PulseList, bool, error) {
	if limit <= 0 {
		limit = DefaultPulseLimit
	}
	if limit > MaxPulseLimit {
		limit = MaxPulseLimit
	}
	return s.otx.Pulses(ctx, limit)
}

func (s *LookupService) OTXThreatMap(ctx context.Context) (*otx.ThreatMap, bool, error) {
	return s.otx.GlobalThreatMap(ctx)
}

func otxLookup[T any](
	ctx context.Context,
	s *LookupService,
	kind, indicator string,
	fetch func(context.Context, string) (*T, bool, error),
	pulses func(*T) otx.PulseInfo,
	severity func(int) models.Severity,
	tmpl func(int) alertTemplate,
) (OTXReport[T], error) {
	start := s.now()
	result, hit, err := fetch(ctx, indicator)
	if err != nil {
		s.record(ctx, otx.Name, kind, indicator, start, hit, scoring.Assessment{}, false, err)
		return OTXReport[T]{}, err
	}

	report := OTXReport[T]{Result: result, Cached: hit}
	if result != nil {
		report.PulseCount = pulses(result).Count
	}
	if report.PulseCount > 0 {
		sev := severity(report.PulseCount)
		report.Alerted = s.raise(ctx, tmpl(report.PulseCount), sev)
		variant := realtime.VariantDefault
		if sev == models.SeverityCritical {
			variant = realtime.VariantDestructive
		}
		s.notify(realtime.Notification{
			Title:       "Threat Detected",
			Description: fmt.Sprintf("%s %s found in %d OTX threat feeds", kindLabel(kind), indicator, report.PulseCount),
			Variant:     variant,
		})
	}
	s.record(ctx, otx.Name, kind, indicator, start, hit,
		scoring.Assessment{Score: float64(report.PulseCount), Known: result != nil}, report.Alerted, nil)
	return report, nil
}

// raise creates the alert and reports whether it was stored.
func (s *LookupService) raise(ctx context.Context, tmpl alertTemplate, sev models.Severity) bool {
	if s.alerts == nil {
		return false
	}
	_, err := s.alerts.Create(ctx, models.NewAlert{
		Type:        clip(tmpl.Type, MaxAlertTypeLength),
		Severity:    sev,
		SourceIP:    clip(tmpl.SourceIP, MaxAlertEndpointLength),
		Destination: clip(tmpl.Destination, MaxAlertEndpointLength),
		Description: clip(tmpl.Description, MaxAlertDescriptionLength),
	})
	if err != nil {
		s.logger.Error("Failed to create threat alert",
			util.String("type", tmpl.Type),
			util.ErrorField(err))
		return false
	}
	return true
}

// clip shortens s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func (s *LookupService) notify(n realtime.Notification) {
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}

func (s *LookupService) record(ctx context.Context, provider, kind, indicator string, start time.Time, hit bool, a scoring.Assessment, alerted bool, lookupErr error) {
	if s.recorder == nil {
		return
	}
	rec := models.LookupRecord{
		ID:         uuid.NewString(),
		Provider:   provider,
		Kind:       kind,
		Indicator:  indicator,
		Score:      a.Score,
		Known:      a.Known,
		Alerted:    alerted,
		CacheHit:   hit,
		DurationMS: s.now().Sub(start).Milliseconds(),
		LookedUpAt: start.UTC(),
	}
	if lookupErr != nil {
		rec.Error = lookupErr.Error()
	}
	if err := s.recorder.RecordLookup(ctx, rec); err != nil {
		s.logger.Warn("failed to record lookup", util.String("provider", provider), util.ErrorField(err))
	}
}

func kindLabel(kind string) string {
	switch kind {
	case "ip":
		return "IP"
	case "domain":
		return "Domain"
	default:
		return "Hash"
	}
}

func invalid(err error) error {
	if errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
