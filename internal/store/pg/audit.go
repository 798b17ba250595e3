package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/c-f-an/tov-nextjs-sub002/internal/audit"
)

var _ audit.Store = (*AuditStore)(nil)

// AuditStore appends to audit_logs. It never updates or deletes rows.
type AuditStore struct {
	db *sql.DB
}

func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, actor_id, action, resource_type, resource_id, metadata, ip, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.ActorID, string(e.Action), e.ResourceType, nullIfEmpty(e.ResourceID), meta,
		nullIfEmpty(e.IP), nullIfEmpty(e.UserAgent), e.CreatedAt)
	return err
}
