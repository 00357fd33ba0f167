package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

type workspaceRepository struct {
	db *gorm.DB
}

func (r *workspaceRepository) GetMembership(ctx context.Context, accountUID, regionUID uuid.UUID, workspaceID string) (domain.WorkspaceMembership, error) {
	var rec membershipModel
	err := r.db.WithContext(ctx).
		Where("account_uid = ? AND region_uid = ? AND workspace_id = ?", accountUID, regionUID, workspaceID).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.WorkspaceMembership{}, domain.ErrNotFound
		}
		return domain.WorkspaceMembership{}, err
	}
	return toDomainMembership(rec), nil
}

func (r *workspaceRepository) ListMemberships(ctx context.Context, accountUID, regionUID uuid.UUID) ([]domain.WorkspaceMembership, error) {
	var rows []membershipModel
	err := r.db.WithContext(ctx).
		Where("account_uid = ? AND region_uid = ?", accountUID, regionUID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkspaceMembership, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainMembership(row))
	}
	return out, nil
}
