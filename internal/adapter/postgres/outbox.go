package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/sqlscan"

	"github.com/couchcryptid/alerthub-service/internal/domain"
)

type outboxRow struct {
	ID       int64  `db:"id"`
	ReportID int64  `db:"report_id"`
	Payload  string `db:"payload"`
}

// RelayOutbox claims up to limit unpublished tasks, hands them to publish and
// marks them published. If publish fails the claim is rolled back and the
// tasks stay pending. Concurrent relays skip each other's claimed rows.
func (s *Store) RelayOutbox(ctx context.Context, limit int, publish func(context.Context, []domain.OutboxEntry) error) (int, error) {
	var relayed int
	err := execTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		query, args, err := psql.
			Select("id", "report_id", "payload").
			From("enrichment_outbox").
			Where(sq.Eq{"published_at": nil}).
			OrderBy("id").
			Limit(uint64(limit)).
			Suffix("FOR UPDATE SKIP LOCKED").
			ToSql()
		if err != nil {
			return fmt.Errorf("build claim outbox: %w", err)
		}

		var rows []outboxRow
		if err := sqlscan.Select(ctx, tx, &rows, query, args...); err != nil {
			return fmt.Errorf("claim outbox: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		entries := make([]domain.OutboxEntry, len(rows))
		ids := make([]int64, len(rows))
		for i, r := range rows {
			entries[i] = domain.OutboxEntry{ID: r.ID, ReportID: r.ReportID, Payload: []byte(r.Payload)}
			ids[i] = r.ID
		}

		if err := publish(ctx, entries); err != nil {
			return fmt.Errorf("publish outbox: %w", err)
		}

		query, args, err = psql.
			Update("enrichment_outbox").
			Set("published_at", domain.Now()).
			Where(sq.Eq{"id": ids}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build mark published: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
		relayed = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return relayed, nil
}
