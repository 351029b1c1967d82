package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/util"
)

const notifyBuffer = 64

// NotifySource streams row changes published by the notify_table_change
// trigger. Each subscription holds its own pooled connection.
type NotifySource struct {
	pool    *pgxpool.Pool
	channel string
	logger  *zap.Logger
}

var _ realtime.EventSource = (*NotifySource)(nil)

func NewNotifySource(pool *pgxpool.Pool, channel string, logger *zap.Logger) *NotifySource {
	return &NotifySource{pool: pool, channel: channel, logger: logger}
}

func (s *NotifySource) Subscribe(ctx context.Context, filter realtime.Filter) (realtime.Stream, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", s.channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	stream := realtime.NewChanStream(notifyBuffer, cancel)
	go s.listen(listenCtx, conn, filter, stream)
	return stream, nil
}

func (s *NotifySource) listen(ctx context.Context, conn *pgxpool.Conn, filter realtime.Filter, stream *realtime.ChanStream) {
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if !conn.Conn().IsClosed() {
			_, _ = conn.Exec(unlistenCtx, "UNLISTEN *")
		}
		conn.Release()
	}()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("postgres listen stopped",
					util.String("channel", s.channel),
					util.String("table", filter.Table),
					util.ErrorField(err))
				_ = stream.Close()
			}
			return
		}

		ev, truncated, err := decodeNotification(notification.Payload)
		if err != nil {
			s.logger.Warn("dropping malformed change notification",
				util.String("channel", s.channel),
				util.ErrorField(err))
			continue
		}
		if !filter.Matches(ev) {
			continue
		}
		if truncated && ev.Record != nil {
			record, err := s.loadRecord(ctx, ev.Table, ev.Record)
			if err != nil {
				s.logger.Warn("dropping truncated change notification",
					util.String("table", ev.Table),
					util.ErrorField(err))
				continue
			}
			ev.Record = record
		}
		if !stream.Deliver(ctx, ev) {
			return
		}
	}
}

// notification is the trigger payload. Truncated is set when the row did not
// fit and Record carries only its id.
type notification struct {
	realtime.ChangeEvent
	Truncated bool `json:"truncated"`
}

func decodeNotification(payload string) (realtime.ChangeEvent, bool, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return realtime.ChangeEvent{}, false, err
	}
	ev := n.ChangeEvent
	if ev.Table == "" || ev.Type == "" {
		return realtime.ChangeEvent{}, false, fmt.Errorf("notification missing table or type")
	}
	if string(ev.OldRecord) == "null" {
		ev.OldRecord = nil
	}
	if string(ev.Record) == "null" {
		ev.Record = nil
	}
	return ev, n.Truncated, nil
}

var changeTables = map[string]bool{
	realtime.TableAlerts:    true,
	realtime.TableTraffic:   true,
	realtime.TableAnomalies: true,
}

// loadRecord reads back the row a truncated notification refers to.
func (s *NotifySource) loadRecord(ctx context.Context, table string, ref json.RawMessage) (json.RawMessage, error) {
	if !changeTables[table] {
		return nil, fmt.Errorf("no row lookup for table %q", table)
	}
	var key struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(ref, &key); err != nil || key.ID == "" {
		return nil, fmt.Errorf("truncated %s notification has no row id", table)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var record string
	query := "SELECT row_to_json(t)::text FROM " + pgx.Identifier{table}.Sanitize() + " t WHERE t.id = $1"
	if err := s.pool.QueryRow(queryCtx, query, key.ID).Scan(&record); err != nil {
		return nil, fmt.Errorf("load %s row %s: %w", table, key.ID, err)
	}
	return json.RawMessage(record), nil
}
