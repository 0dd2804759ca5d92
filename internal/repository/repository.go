package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/google/uuid"
)

const userColumns = `id, username, email, role, created_at`

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt)
	return u, err
}

func (q *Queries) CreateUser(ctx context.Context, u *models.User) error {
	query := `INSERT INTO users (id, username, email, role, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING created_at`
	if err := q.db.QueryRow(ctx, query, u.ID, u.Username, u.Email, u.Role).Scan(&u.CreatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

const profileColumns = `user_id, role, validation_status, credential_id, credential_issued_at, created_at, updated_at`

func scanProfile(row rowScanner) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.UserID, &p.Role, &p.ValidationStatus, &p.CredentialID, &p.CredentialIssuedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) CreateProfile(ctx context.Context, p *models.Profile) error {
	query := `INSERT INTO profiles (user_id, role, validation_status, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW()) RETURNING created_at, updated_at`
	if err := q.db.QueryRow(ctx, query, p.UserID, p.Role, p.ValidationStatus).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (q *Queries) GetProfile(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	return scanProfile(q.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
}

func (q *Queries) GetProfileForUpdate(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	return scanProfile(q.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1 FOR UPDATE`, userID))
}

func (q *Queries) GetProfileForShare(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	return scanProfile(q.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1 FOR SHARE`, userID))
}

func (q *Queries) UpdateProfileStatus(ctx context.Context, userID uuid.UUID, status domain.ValidationStatus) (int64, error) {
	return execRows(ctx, q.db, `UPDATE profiles SET validation_status = $2, updated_at = NOW() WHERE user_id = $1`, userID, status)
}

// IssueCredential sets the credential only if none was issued before.
func (q *Queries) IssueCredential(ctx context.Context, userID uuid.UUID, credentialID string) (int64, error) {
	return execRows(ctx, q.db, `
		UPDATE profiles
		SET credential_id = $2, credential_issued_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND credential_id IS NULL`, userID, credentialID)
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		arg.EntityType, arg.EntityID, arg.ActorID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata)
	return err
}
