package service

import (
	"go.uber.org/zap"

	"secops-dashboard/internal/provider/otx"
	"secops-dashboard/internal/provider/virustotal"
	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/repository"
)

// Dependencies are the collaborators shared by the services. Indexer,
// Publisher, Recorder and Notifier may be nil.
type Dependencies struct {
	Source     repository.DataSource
	Indexer    repository.AlertIndexer
	Publisher  repository.AlertPublisher
	Recorder   repository.LookupRecorder
	Notifier   realtime.Notifier
	VirusTotal *virustotal.Client
	OTX        *otx.Client
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps   Dependencies
	logger *zap.Logger

	alertService   *AlertService
	trafficService *TrafficService
	statusService  *StatusService
	logService     *LogAnalysisService
	lookupService  *LookupService
}

func NewServiceFactory(deps Dependencies, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{deps: deps, logger: logger}
}

func (f *ServiceFactory) AlertService() *AlertService {
	if f.alertService == nil {
		f.alertService = NewAlertService(f.deps.Source, f.deps.Indexer, f.deps.Publisher, f.logger.Named("alerts"))
	}
	return f.alertService
}

func (f *ServiceFactory) TrafficService() *TrafficService {
	if f.trafficService == nil {
		f.trafficService = NewTrafficService(f.deps.Source, f.logger.Named("traffic"))
	}
	return f.trafficService
}

func (f *ServiceFactory) StatusService() *StatusService {
	if f.statusService == nil {
		f.statusService = NewStatusService(f.deps.Source, f.logger.Named("status"))
	}
	return f.statusService
}

func (f *ServiceFactory) LogAnalysisService() *LogAnalysisService {
	if f.logService == nil {
		f.logService = NewLogAnalysisService(f.deps.Source, f.logger.Named("logs"))
	}
	return f.logService
}

func (f *ServiceFactory) LookupService() *LookupService {
	if f.lookupService == nil {
		f.lookupService = NewLookupService(
			f.deps.VirusTotal,
			f.deps.OTX,
			f.AlertService(),
			f.deps.Notifier,
			f.deps.Recorder,
			f.logger.Named("lookups"),
		)
	}
	return f.lookupService
}
