package realtime

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"secops-dashboard/internal/models"
	"secops-dashboard/internal/util"
)

const (
	AlertFeedSize   = 20
	TrafficFeedSize = 15
	AnomalyFeedSize = 50

	// SuspiciousTrafficScore is the anomaly score above which new traffic
	// raises a notification.
	SuspiciousTrafficScore = 0.8
)

// Feeds is the dashboard's live view state: the most recent alerts, traffic
// records and anomaly samples.
type Feeds struct {
	Alerts    *Buffer[models.ThreatAlert]
	Traffic   *Buffer[models.TrafficRecord]
	Anomalies *Buffer[models.AnomalySample]

	notifier    Notifier
	broadcaster Broadcaster
	logger      *zap.Logger
	unsubs      []Unsubscribe
}

func NewFeeds(notifier Notifier, broadcaster Broadcaster, logger *zap.Logger) *Feeds {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feeds{
		Alerts:      NewBuffer[models.ThreatAlert](AlertFeedSize, NewestFirst),
		Traffic:     NewBuffer[models.TrafficRecord](TrafficFeedSize, NewestFirst),
		Anomalies:   NewBuffer[models.AnomalySample](AnomalyFeedSize, OldestFirst),
		notifier:    notifier,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Start subscribes the three feeds to their tables.
func (f *Feeds) Start(bridge *Bridge) {
	f.unsubs = append(f.unsubs,
		bridge.Subscribe(TableAlerts, f.OnAlertInsert),
		bridge.Subscribe(TableTraffic, f.OnTrafficInsert),
		bridge.Subscribe(TableAnomalies, f.OnAnomalyInsert),
	)
}

// Stop releases the feeds' subscriptions.
func (f *Feeds) Stop() {
	for _, unsub := range f.unsubs {
		unsub()
	}
	f.unsubs = nil
}

func (f *Feeds) OnAlertInsert(ev ChangeEvent) {
	var row models.AlertRow
	if err := json.Unmarshal(ev.Record, &row); err != nil {
		f.dropped(ev, err)
		return
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = ev.CommitTime
	}
	alert := row.ToAlert()
	f.Alerts.Add(alert)
	f.broadcast(TableAlerts, alert)

	variant := VariantDefault
	if alert.Severity == models.SeverityCritical {
		variant = VariantDestructive
	}
	f.notify(Notification{
		Title:       "New Threat Detected",
		Description: fmt.Sprintf("%s from %s", alert.Type, alert.SourceIP),
		Variant:     variant,
	})
}

func (f *Feeds) OnTrafficInsert(ev ChangeEvent) {
	var row models.TrafficRow
	if err := json.Unmarshal(ev.Record, &row); err != nil {
		f.dropped(ev, err)
		return
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = ev.CommitTime
	}
	rec := row.ToRecord()
	f.Traffic.Add(rec)
	f.broadcast(TableTraffic, rec)

	if rec.AnomalyScore > SuspiciousTrafficScore {
		f.notify(Notification{
			Title:       "Suspicious Traffic Detected",
			Description: fmt.Sprintf("High anomaly score (%.2f) from %s", rec.AnomalyScore, rec.SourceIP),
			Variant:     VariantDestructive,
		})
	}
}

func (f *Feeds) OnAnomalyInsert(ev ChangeEvent) {
	var row models.AnomalyRow
	if err := json.Unmarshal(ev.Record, &row); err != nil {
		f.dropped(ev, err)
		return
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = ev.CommitTime
	}
	sample := row.ToSample()
	f.Anomalies.Add(sample)
	f.broadcast(TableAnomalies, sample)
}

func (f *Feeds) broadcast(table string, data any) {
	if f.broadcaster != nil {
		f.broadcaster.Broadcast(table, string(EventInsert), data)
	}
}

func (f *Feeds) notify(n Notification) {
	if f.notifier != nil {
		f.notifier.Notify(n)
	}
}

func (f *Feeds) dropped(ev ChangeEvent, err error) {
	f.logger.Warn("Dropping undecodable change event",
		util.String("table", ev.Table),
		util.ErrorField(err),
	)
}

// FeedSnapshot is a copy of all three feeds at one moment.
type FeedSnapshot struct {
	Alerts    []models.ThreatAlert   `json:"alerts"`
	Traffic   []models.TrafficRecord `json:"traffic"`
	Anomalies []models.AnomalySample `json:"anomalies"`
}

func (f *Feeds) Snapshot() FeedSnapshot {
	return FeedSnapshot{
		Alerts:    f.Alerts.Snapshot(),
		Traffic:   f.Traffic.Snapshot(),
		Anomalies: f.Anomalies.Snapshot(),
	}
}
