package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

type regionRepository struct {
	db *gorm.DB
}

func (r *regionRepository) GetByUID(ctx context.Context, regionUID uuid.UUID) (domain.Region, error) {
	var rec regionModel
	if err := r.db.WithContext(ctx).Where("uid = ?", regionUID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Region{}, domain.ErrNotFound
		}
		return domain.Region{}, err
	}
	return toDomainRegion(rec), nil
}

func (r *regionRepository) List(ctx context.Context) ([]domain.Region, error) {
	var rows []regionModel
	if err := r.db.WithContext(ctx).Order("display_name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Region, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainRegion(row))
	}
	return out, nil
}

type regionIdentityRepository struct {
	db *gorm.DB
}

// EnsureTx provisions the region identity together with its private
// workspace and owner membership. Losing the insert race is not an error:
// the winner's identity is reread and returned.
func (r *regionIdentityRepository) EnsureTx(ctx context.Context, identity domain.RegionIdentity, privateWorkspace domain.Workspace, membership domain.WorkspaceMembership) (domain.RegionIdentity, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := regionIdentityModel{
			AccountUID: identity.AccountUID,
			RegionUID:  identity.RegionUID,
			UserCrUID:  identity.UserCrUID,
			UserCrName: identity.UserCrName,
			CreatedAt:  identity.CreatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		ws := workspaceModel{
			UID:         privateWorkspace.UID,
			ID:          privateWorkspace.ID,
			RegionUID:   privateWorkspace.RegionUID,
			DisplayName: privateWorkspace.DisplayName,
			CreatedAt:   privateWorkspace.CreatedAt,
		}
		if err := tx.Create(&ws).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		member := membershipModel{
			AccountUID:   membership.AccountUID,
			WorkspaceUID: membership.WorkspaceUID,
			WorkspaceID:  membership.WorkspaceID,
			RegionUID:    membership.RegionUID,
			Role:         string(membership.Role),
			Status:       string(membership.Status),
			IsPrivate:    membership.IsPrivate,
			CreatedAt:    membership.CreatedAt,
		}
		return tx.Create(&member).Error
	})
	if errors.Is(err, domain.ErrConflict) {
		return r.Get(ctx, identity.AccountUID, identity.RegionUID)
	}
	if err != nil {
		return domain.RegionIdentity{}, err
	}
	return identity, nil
}

func (r *regionIdentityRepository) Get(ctx context.Context, accountUID, regionUID uuid.UUID) (domain.RegionIdentity, error) {
	var rec regionIdentityModel
	err := r.db.WithContext(ctx).
		Where("account_uid = ? AND region_uid = ?", accountUID, regionUID).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RegionIdentity{}, domain.ErrNotFound
		}
		return domain.RegionIdentity{}, err
	}
	return toDomainRegionIdentity(rec), nil
}
