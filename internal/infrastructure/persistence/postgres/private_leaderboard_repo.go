package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRIVATE LEADERBOARD REPOSITORY IMPLEMENTATION
// Every mutation runs in one transaction with the leaderboard row locked
// (SELECT ... FOR UPDATE), so capacity and the single owner hold under
// concurrent requests.
// ══════════════════════════════════════════════════════════════════════════════

// PrivateLeaderboardRepository implements leaderboard.PrivateLeaderboardStore.
type PrivateLeaderboardRepository struct {
	conn *Connection
}

// NewPrivateLeaderboardRepository creates a new PrivateLeaderboardRepository.
func NewPrivateLeaderboardRepository(conn *Connection) *PrivateLeaderboardRepository {
	return &PrivateLeaderboardRepository{conn: conn}
}

const leaderboardColumns = `
	lb.id::text, lb.owner_id, lb.name, lb.description, lb.max_members, lb.created_at,
	(SELECT COUNT(*) FROM private_leaderboard_members m WHERE m.leaderboard_id = lb.id)`

// validID reports whether id can be a leaderboard key. Malformed IDs are
// treated as unknown leaderboards instead of reaching the UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Leaderboards
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts the leaderboard and its owner as the first member.
func (r *PrivateLeaderboardRepository) Create(ctx context.Context, lb *leaderboard.PrivateLeaderboard) error {
	if !validID(lb.ID) {
		return fmt.Errorf("invalid leaderboard id %q", lb.ID)
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO private_leaderboards (id, owner_id, name, description, max_members, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, lb.ID, lb.OwnerID, lb.Name, lb.Description, lb.MaxMembers, lb.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create leaderboard: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO private_leaderboard_members (leaderboard_id, user_id, joined_at)
			VALUES ($1, $2, $3)
		`, lb.ID, lb.OwnerID, lb.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add owner: %w", err)
		}
		return nil
	})
}

// Get returns a leaderboard with its member count.
func (r *PrivateLeaderboardRepository) Get(ctx context.Context, id string) (*leaderboard.PrivateLeaderboard, error) {
	if !validID(id) {
		return nil, leaderboard.ErrLeaderboardNotFound
	}
	row := r.conn.QueryRow(ctx, `SELECT `+leaderboardColumns+` FROM private_leaderboards lb WHERE lb.id = $1`, id)
	return scanLeaderboard(row)
}

// Delete removes the leaderboard; memberships cascade.
func (r *PrivateLeaderboardRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return leaderboard.ErrLeaderboardNotFound
	}
	tag, err := r.conn.Exec(ctx, `DELETE FROM private_leaderboards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete leaderboard: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return leaderboard.ErrLeaderboardNotFound
	}
	return nil
}

// ListForUser returns the leaderboards userID belongs to, oldest first.
func (r *PrivateLeaderboardRepository) ListForUser(ctx context.Context, userID string) ([]*leaderboard.PrivateLeaderboard, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+leaderboardColumns+`
		FROM private_leaderboards lb
		JOIN private_leaderboard_members me ON me.leaderboard_id = lb.id
		WHERE me.user_id = $1
		ORDER BY lb.created_at, lb.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboards: %w", err)
	}
	defer rows.Close()

	var out []*leaderboard.PrivateLeaderboard
	for rows.Next() {
		lb, err := scanLeaderboard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lb)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Members
// ─────────────────────────────────────────────────────────────────────────────

// ListMembers returns memberships in join order.
func (r *PrivateLeaderboardRepository) ListMembers(ctx context.Context, id string) ([]leaderboard.Membership, error) {
	if !validID(id) {
		return nil, leaderboard.ErrLeaderboardNotFound
	}

	rows, err := r.conn.Query(ctx, `
		SELECT leaderboard_id::text, user_id, joined_at
		FROM private_leaderboard_members
		WHERE leaderboard_id = $1
		ORDER BY joined_at, user_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []leaderboard.Membership
	for rows.Next() {
		var m leaderboard.Membership
		if err := rows.Scan(&m.LeaderboardID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The owner is always a member, so no rows means no leaderboard
	if len(out) == 0 {
		return nil, leaderboard.ErrLeaderboardNotFound
	}
	return out, nil
}

// IsMember reports whether userID belongs to the leaderboard.
func (r *PrivateLeaderboardRepository) IsMember(ctx context.Context, id, userID string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	var ok bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM private_leaderboard_members WHERE leaderboard_id = $1 AND user_id = $2)
	`, id, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

// AddMember inserts a membership. Capacity is checked before duplicates.
func (r *PrivateLeaderboardRepository) AddMember(ctx context.Context, id, userID string) error {
	if !validID(id) {
		return leaderboard.ErrLeaderboardNotFound
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var maxMembers int
		if _, err := lockLeaderboard(ctx, tx, id, &maxMembers); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM private_leaderboard_members WHERE leaderboard_id = $1
		`, id).Scan(&count); err != nil {
			return fmt.Errorf("failed to count members: %w", err)
		}
		if count >= maxMembers {
			return leaderboard.ErrLeaderboardFull
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO private_leaderboard_members (leaderboard_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (leaderboard_id, user_id) DO NOTHING
		`, id, userID)
		if err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return leaderboard.ErrAlreadyMember
		}
		return nil
	})
}

// RemoveMember deletes a membership. The owner cannot be removed.
func (r *PrivateLeaderboardRepository) RemoveMember(ctx context.Context, id, userID string) error {
	if !validID(id) {
		return leaderboard.ErrLeaderboardNotFound
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		owner, err := lockLeaderboard(ctx, tx, id, nil)
		if err != nil {
			return err
		}
		if owner == userID {
			return leaderboard.ErrCannotRemoveOwner
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM private_leaderboard_members WHERE leaderboard_id = $1 AND user_id = $2
		`, id, userID)
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return leaderboard.ErrMemberNotFound
		}
		return nil
	})
}

// TransferOwnership sets a new owner who must already be a member. The
// requester is re-checked against the locked row, so of two concurrent
// transfers by the same owner only the first succeeds.
func (r *PrivateLeaderboardRepository) TransferOwnership(ctx context.Context, id, requesterID, newOwnerID string) error {
	if !validID(id) {
		return leaderboard.ErrLeaderboardNotFound
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		owner, err := lockLeaderboard(ctx, tx, id, nil)
		if err != nil {
			return err
		}
		if owner != requesterID {
			return leaderboard.ErrNotOwner
		}
		if newOwnerID == owner {
			return leaderboard.ErrAlreadyOwner
		}

		var isMember bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM private_leaderboard_members WHERE leaderboard_id = $1 AND user_id = $2)
		`, id, newOwnerID).Scan(&isMember); err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if !isMember {
			return leaderboard.ErrNewOwnerNotMember
		}

		if _, err := tx.Exec(ctx, `UPDATE private_leaderboards SET owner_id = $2 WHERE id = $1`, id, newOwnerID); err != nil {
			return fmt.Errorf("failed to transfer ownership: %w", err)
		}
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// lockLeaderboard locks the leaderboard row and returns its owner.
// maxMembers, when non-nil, receives the capacity.
func lockLeaderboard(ctx context.Context, tx pgx.Tx, id string, maxMembers *int) (string, error) {
	var owner string
	var capacity int
	err := tx.QueryRow(ctx, `
		SELECT owner_id, max_members FROM private_leaderboards WHERE id = $1 FOR UPDATE
	`, id).Scan(&owner, &capacity)
	if err != nil {
		if IsNoRows(err) {
			return "", leaderboard.ErrLeaderboardNotFound
		}
		return "", fmt.Errorf("failed to lock leaderboard: %w", err)
	}
	if maxMembers != nil {
		*maxMembers = capacity
	}
	return owner, nil
}

func scanLeaderboard(row pgx.Row) (*leaderboard.PrivateLeaderboard, error) {
	var lb leaderboard.PrivateLeaderboard
	var count int64

	err := row.Scan(&lb.ID, &lb.OwnerID, &lb.Name, &lb.Description, &lb.MaxMembers, &lb.CreatedAt, &count)
	if err != nil {
		if IsNoRows(err) {
			return nil, leaderboard.ErrLeaderboardNotFound
		}
		return nil, fmt.Errorf("failed to scan leaderboard: %w", err)
	}

	lb.MemberCount = int(count)
	lb.CreatedAt = lb.CreatedAt.UTC()
	return &lb, nil
}
