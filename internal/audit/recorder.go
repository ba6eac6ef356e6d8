package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/safego"
)

const shipTimeout = 5 * time.Second

// Store persists audit records. Satisfied by *repositories.AuditRepository.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder writes audit records to the store and ships a copy to the
// configured destinations in the background.
type Recorder struct {
	store   Store
	shipper Shipper
}

// NewRecorder creates a Recorder. shipper may be nil.
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{store: store, shipper: shipper}
}

// Record persists entry. Shipping happens asynchronously; its failures are
// logged and never returned.
func (r *Recorder) Record(ctx context.Context, entry *models.AuditLog, requestID string) error {
	if err := r.store.CreateAuditLog(ctx, entry); err != nil {
		return err
	}
	if r.shipper == nil {
		return nil
	}

	shipped := ToLogEntry(entry, requestID)
	safego.Go("audit_ship", func() {
		ctx, cancel := context.WithTimeout(context.Background(), shipTimeout)
		defer cancel()
		if err := r.shipper.Ship(ctx, shipped); err != nil {
			slog.Warn("failed to ship audit entry", "action", shipped.Action, "error", err)
		}
	})
	return nil
}

// ToLogEntry converts a stored audit record to its shipped form
func ToLogEntry(log *models.AuditLog, requestID string) *LogEntry {
	entry := &LogEntry{
		Timestamp:  log.CreatedAt,
		Action:     log.Action,
		StatusCode: log.StatusCode,
		RequestID:  requestID,
		Metadata:   log.Metadata,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if log.CompanyID != nil {
		entry.CompanyID = *log.CompanyID
	}
	entry.UserEmail = deref(log.UserEmail)
	entry.ResourceType = deref(log.ResourceType)
	entry.ResourceID = deref(log.ResourceID)
	entry.IPAddress = deref(log.IPAddress)
	return entry
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
