package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

func toDomainAccount(row accountModel) domain.GlobalAccount {
	return domain.GlobalAccount{
		UID:         row.UID,
		ID:          row.ID,
		DisplayName: row.DisplayName,
		AvatarURL:   row.AvatarURL,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func toDomainBinding(row bindingModel) domain.ProviderBinding {
	return domain.ProviderBinding{
		UID:          row.UID,
		AccountUID:   row.AccountUID,
		ProviderType: domain.ProviderType(row.ProviderType),
		ProviderID:   row.ProviderID,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
	}
}

func toBindingModel(b domain.ProviderBinding) bindingModel {
	return bindingModel{
		UID:          b.UID,
		AccountUID:   b.AccountUID,
		ProviderType: string(b.ProviderType),
		ProviderID:   b.ProviderID,
		PasswordHash: b.PasswordHash,
		CreatedAt:    b.CreatedAt,
	}
}

func toDomainRegion(row regionModel) domain.Region {
	return domain.Region{
		UID:         row.UID,
		DisplayName: row.DisplayName,
		Domain:      row.Domain,
		JWTSecret:   row.JWTSecret,
		CreatedAt:   row.CreatedAt,
	}
}

func toDomainRegionIdentity(row regionIdentityModel) domain.RegionIdentity {
	return domain.RegionIdentity{
		AccountUID: row.AccountUID,
		RegionUID:  row.RegionUID,
		UserCrUID:  row.UserCrUID,
		UserCrName: row.UserCrName,
		CreatedAt:  row.CreatedAt,
	}
}

func toDomainMembership(row membershipModel) domain.WorkspaceMembership {
	return domain.WorkspaceMembership{
		AccountUID:   row.AccountUID,
		WorkspaceUID: row.WorkspaceUID,
		WorkspaceID:  row.WorkspaceID,
		RegionUID:    row.RegionUID,
		Role:         domain.WorkspaceRole(row.Role),
		Status:       domain.JoinStatus(row.Status),
		IsPrivate:    row.IsPrivate,
		CreatedAt:    row.CreatedAt,
	}
}

// isUniqueViolation relies on gorm's TranslateError to normalize driver
// duplicate-key errors.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
