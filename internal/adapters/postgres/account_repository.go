package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

type accountRepository struct {
	db *gorm.DB
}

// CreateWithBindingTx writes the account and its first binding as one
// transaction. A duplicate on either row rolls the whole sign-up back and
// surfaces domain.ErrConflict for the caller to reread the winner.
func (r *accountRepository) CreateWithBindingTx(ctx context.Context, account domain.GlobalAccount, binding domain.ProviderBinding) (domain.GlobalAccount, error) {
	rec := accountModel{
		UID:         account.UID,
		ID:          account.ID,
		DisplayName: account.DisplayName,
		AvatarURL:   account.AvatarURL,
		CreatedAt:   account.CreatedAt,
		UpdatedAt:   account.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		bindingRec := toBindingModel(binding)
		if err := tx.Create(&bindingRec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.GlobalAccount{}, err
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) GetByUID(ctx context.Context, accountUID uuid.UUID) (domain.GlobalAccount, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("uid = ?", accountUID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.GlobalAccount{}, domain.ErrNotFound
		}
		return domain.GlobalAccount{}, err
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) UpdateProfile(ctx context.Context, accountUID uuid.UUID, displayName, avatarURL string, updatedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("uid = ?", accountUID).
		Updates(map[string]any{
			"display_name": displayName,
			"avatar_url":   avatarURL,
			"updated_at":   updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
