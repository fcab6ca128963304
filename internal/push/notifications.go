package push

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/kvstore"
)

// DefaultLogCapacity is the number of records kept in NOTIFICATIONS_ARR.
const DefaultLogCapacity = 100

// Record is a logged promotional notification.
type Record struct {
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	Image     *string `json:"image"`
	Link      *string `json:"link"`
	Timestamp int64   `json:"timestamp"`
	ID        string  `json:"id"`
}

// NotificationLog is the newest-first, capped list of promotional
// notifications stored under NOTIFICATIONS_ARR.
type NotificationLog struct {
	store    kvstore.Store
	clock    clock.Clock
	capacity int

	// mu serializes the read-modify-write of the stored list.
	mu sync.Mutex
}

// NewNotificationLog creates a log with the default capacity.
func NewNotificationLog(store kvstore.Store, clk clock.Clock) *NotificationLog {
	if clk == nil {
		clk = clock.Real()
	}
	return &NotificationLog{store: store, clock: clk, capacity: DefaultLogCapacity}
}

// NewRecord builds a record from message data. Title falls back from
// bodytitle to title to "Notification"; body falls back to a generic text.
func NewRecord(data map[string]string, nowMillis int64) Record {
	title := firstNonEmpty(data["bodytitle"], data["title"], "Notification")
	body := firstNonEmpty(data["body"], "New notification received")

	return Record{
		Title:     title,
		Body:      body,
		Image:     optional(data["image"]),
		Link:      optional(data["link"]),
		Timestamp: nowMillis,
		ID:        fmt.Sprintf("notif_%d_%s", nowMillis, strings.ReplaceAll(uuid.NewString(), "-", "")[:9]),
	}
}

// Append prepends a record built from data and trims the list to capacity.
func (l *NotificationLog) Append(ctx context.Context, data map[string]string) (Record, error) {
	record := NewRecord(data, l.clock.Now().UnixMilli())

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.list(ctx)
	if err != nil {
		return Record{}, err
	}

	records = append([]Record{record}, records...)
	if len(records) > l.capacity {
		records = records[:l.capacity]
	}

	if err := kvstore.SetJSON(ctx, l.store, kvstore.KeyNotifications, records); err != nil {
		return Record{}, err
	}
	return record, nil
}

// List returns the stored records, newest first. An unreadable list reads as empty.
func (l *NotificationLog) List(ctx context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list(ctx)
}

func (l *NotificationLog) list(ctx context.Context) ([]Record, error) {
	var records []Record
	found, err := kvstore.GetJSON(ctx, l.store, kvstore.KeyNotifications, &records)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return records, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
