package repository

import (
	"context"
	"errors"

	"github.com/ideaSquared/adopt-dont-shop-sub006/internal/models"
	"github.com/jackc/pgx/v5"
)

// OrganizationRepository is the staff roster: it answers which users act
// on behalf of which organization. The authorization gate and read-state
// reconciliation delegate organization membership to it.
type OrganizationRepository struct {
	db DBTX
}

func NewOrganizationRepository(db DBTX) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (name)
		VALUES ($1)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, org.Name).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	var org models.Organization
	err := r.db.QueryRow(ctx, query, id).
		Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepository) AddStaff(ctx context.Context, organizationID, userID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO organization_staff (organization_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`, organizationID, userID)
	return err
}

func (r *OrganizationRepository) IsStaffMember(ctx context.Context, organizationID, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM organization_staff
			WHERE organization_id = $1 AND user_id = $2
		)
	`
	var isStaff bool
	if err := r.db.QueryRow(ctx, query, organizationID, userID).Scan(&isStaff); err != nil {
		return false, err
	}
	return isStaff, nil
}

// StaffOrganizationID returns the organization a user belongs to, or 0
// when the user is not on any roster.
func (r *OrganizationRepository) StaffOrganizationID(ctx context.Context, userID int64) (int64, error) {
	query := `
		SELECT organization_id
		FROM organization_staff
		WHERE user_id = $1
		ORDER BY organization_id
		LIMIT 1
	`
	var organizationID int64
	err := r.db.QueryRow(ctx, query, userID).Scan(&organizationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return organizationID, nil
}
