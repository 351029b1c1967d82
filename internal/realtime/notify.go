package realtime

import (
	"go.uber.org/zap"

	"secops-dashboard/internal/util"
)

const (
	VariantDefault     = "default"
	VariantDestructive = "destructive"
)

// Notification is a user-facing toast raised by an incoming event.
type Notification struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant"`
}

type Notifier interface {
	Notify(n Notification)
}

// Broadcaster pushes a typed frame to every connected dashboard client.
type Broadcaster interface {
	Broadcast(topic, kind string, data any)
}

// Notifiers fans a notification out to each member.
type Notifiers []Notifier

func (ns Notifiers) Notify(n Notification) {
	for _, x := range ns {
		if x != nil {
			x.Notify(n)
		}
	}
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(n Notification) {
	l.logger.Info(n.Title,
		util.String("description", n.Description),
		util.String("variant", n.Variant),
	)
}

// BroadcastNotifier sends notifications as "notification" frames.
type BroadcastNotifier struct {
	b Broadcaster
}

func NewBroadcastNotifier(b Broadcaster) *BroadcastNotifier {
	return &BroadcastNotifier{b: b}
}

func (n *BroadcastNotifier) Notify(note Notification) {
	n.b.Broadcast("notification", "toast", note)
}
