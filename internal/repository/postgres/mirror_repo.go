package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/access-sync/internal/errs"
	"github.com/and161185/access-sync/internal/model"
)

// mirrorTable describes where a platform's raw snapshot lives.
type mirrorTable struct {
	name         string
	statusColumn string
	statusType   string
}

var mirrorTables = map[model.Platform]mirrorTable{
	model.PlatformGoogle:    {name: "gws_users", statusColumn: "suspended", statusType: "boolean"},
	model.PlatformSlack:     {name: "slack_users", statusColumn: "deleted", statusType: "boolean"},
	model.PlatformJumpCloud: {name: "jumpcloud_users", statusColumn: "state", statusType: "text"},
	model.PlatformAtlassian: {name: "atlassian_users", statusColumn: "account_status", statusType: "text"},
	model.PlatformLDAP:      {name: "ldap_users", statusColumn: "user_account_control", statusType: "integer"},
}

func tableFor(p model.Platform) (mirrorTable, error) {
	t, ok := mirrorTables[p]
	if !ok {
		return mirrorTable{}, fmt.Errorf("mirror table for %q: %w", p, errs.ErrPlatformNotConfigured)
	}
	return t, nil
}

// MirrorRepo implements MirrorRepository using PostgreSQL.
type MirrorRepo struct{ q querier }

// NewMirrorRepo constructs a mirror repository.
func NewMirrorRepo(db *DB) *MirrorRepo { return &MirrorRepo{q: db.Pool} }

func upsertSQL(t mirrorTable) string {
	tbl := pgx.Identifier{t.name}.Sanitize()
	col := pgx.Identifier{t.statusColumn}.Sanitize()
	return fmt.Sprintf(`
INSERT INTO %[1]s (native_id, email, display_name, %[2]s, synced_at)
SELECT u.native_id, u.email, u.display_name, u.status::%[3]s, now()
FROM unnest($1::text[], $2::text[], $3::text[], $4::text[]) AS u(native_id, email, display_name, status)
ON CONFLICT (native_id) DO UPDATE SET
  email = EXCLUDED.email,
  display_name = EXCLUDED.display_name,
  %[2]s = EXCLUDED.%[2]s,
  synced_at = EXCLUDED.synced_at,
  absent_since = NULL`, tbl, col, t.statusType)
}

func listSQL(t mirrorTable) string {
	return fmt.Sprintf(`SELECT native_id, email, display_name, %s::text, synced_at FROM %s WHERE absent_since IS NULL ORDER BY native_id`,
		pgx.Identifier{t.statusColumn}.Sanitize(), pgx.Identifier{t.name}.Sanitize())
}

func absentExceptSQL(t mirrorTable) string {
	return fmt.Sprintf(`UPDATE %s SET absent_since = now() WHERE absent_since IS NULL AND native_id <> ALL($1::text[])`,
		pgx.Identifier{t.name}.Sanitize())
}

func absentByEmailSQL(t mirrorTable) string {
	return fmt.Sprintf(`UPDATE %s SET absent_since = now() WHERE absent_since IS NULL AND lower(email) = ANY($1::text[])`,
		pgx.Identifier{t.name}.Sanitize())
}

// Upsert writes users in one multi-row statement. Duplicate native IDs keep the last record.
func (r *MirrorRepo) Upsert(ctx context.Context, p model.Platform, users []model.MirrorUser) (int64, error) {
	t, err := tableFor(p)
	if err != nil {
		return 0, err
	}
	users = dedupeByNativeID(users)
	if len(users) == 0 {
		return 0, nil
	}

	ids := make([]string, len(users))
	emails := make([]string, len(users))
	names := make([]string, len(users))
	statuses := make([]string, len(users))
	for i, u := range users {
		ids[i], emails[i], names[i], statuses[i] = u.NativeID, u.Email, u.DisplayName, u.Status
	}

	tag, err := r.q.Exec(ctx, upsertSQL(t), ids, emails, names, statuses)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", t.name, err)
	}
	return tag.RowsAffected(), nil
}

// MarkAbsentExcept retracts rows the latest full listing no longer returned. An empty keep
// retracts the whole mirror.
func (r *MirrorRepo) MarkAbsentExcept(ctx context.Context, p model.Platform, keep []string) (int64, error) {
	t, err := tableFor(p)
	if err != nil {
		return 0, err
	}
	if keep == nil {
		keep = []string{}
	}
	tag, err := r.q.Exec(ctx, absentExceptSQL(t), keep)
	if err != nil {
		return 0, fmt.Errorf("retract %s: %w", t.name, err)
	}
	return tag.RowsAffected(), nil
}

// MarkAbsentByEmail retracts rows whose per-user lookup came back not found.
func (r *MirrorRepo) MarkAbsentByEmail(ctx context.Context, p model.Platform, emails []string) (int64, error) {
	t, err := tableFor(p)
	if err != nil {
		return 0, err
	}
	if len(emails) == 0 {
		return 0, nil
	}
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(strings.TrimSpace(e))
	}
	tag, err := r.q.Exec(ctx, absentByEmailSQL(t), lowered)
	if err != nil {
		return 0, fmt.Errorf("retract %s by email: %w", t.name, err)
	}
	return tag.RowsAffected(), nil
}

// List returns the present users of a platform mirror.
func (r *MirrorRepo) List(ctx context.Context, p model.Platform) ([]model.MirrorUser, error) {
	t, err := tableFor(p)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx, listSQL(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MirrorUser
	for rows.Next() {
		var u model.MirrorUser
		if err = rows.Scan(&u.NativeID, &u.Email, &u.DisplayName, &u.Status, &u.SyncedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func dedupeByNativeID(users []model.MirrorUser) []model.MirrorUser {
	pos := make(map[string]int, len(users))
	out := make([]model.MirrorUser, 0, len(users))
	for _, u := range users {
		if u.NativeID == "" {
			continue
		}
		if i, ok := pos[u.NativeID]; ok {
			out[i] = u
			continue
		}
		pos[u.NativeID] = len(out)
		out = append(out, u)
	}
	return out
}
