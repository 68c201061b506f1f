// Package audit writes the append-only audit trail. Entries are recorded as
// a side effect of every mutating operation; a failed audit write is logged
// and never fails the primary operation.
package audit

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Writer struct {
	db *pgxpool.Pool
}

func NewWriter(db *pgxpool.Pool) *Writer {
	return &Writer{db: db}
}

// Record appends one immutable entry. Payload is marshalled to JSON; entries
// are never updated or deleted.
func (w *Writer) Record(ctx context.Context, actor, action, target string, payload interface{}) {
	if w == nil || w.db == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[audit] marshal payload for %s: %v", action, err)
		data = []byte("{}")
	}

	const q = `
insert into audit_entries (id, actor, action, target, payload)
values ($1, $2, $3, $4, $5);
`
	if _, err := w.db.Exec(ctx, q, uuid.New().String(), actor, action, target, data); err != nil {
		log.Printf("[audit] write %s/%s: %v", action, target, err)
	}
}
