package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nimbusworks/console-identity-service/internal/domain"
)

type bindingRepository struct {
	db *gorm.DB
}

// Create inserts a binding. The unique (provider_type, provider_id)
// constraint is the arbiter of concurrent binds; a hit maps to
// domain.ErrConflict and the caller classifies it.
func (r *bindingRepository) Create(ctx context.Context, binding domain.ProviderBinding) error {
	rec := toBindingModel(binding)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *bindingRepository) FindByProvider(ctx context.Context, providerType domain.ProviderType, providerID string) (domain.ProviderBinding, error) {
	var rec bindingModel
	err := r.db.WithContext(ctx).
		Where("provider_type = ? AND provider_id = ?", string(providerType), providerID).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ProviderBinding{}, domain.ErrNotFound
		}
		return domain.ProviderBinding{}, err
	}
	return toDomainBinding(rec), nil
}

func (r *bindingRepository) FindByAccountAndType(ctx context.Context, accountUID uuid.UUID, providerType domain.ProviderType) (domain.ProviderBinding, error) {
	var rec bindingModel
	err := r.db.WithContext(ctx).
		Where("account_uid = ? AND provider_type = ?", accountUID, string(providerType)).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ProviderBinding{}, domain.ErrNotFound
		}
		return domain.ProviderBinding{}, err
	}
	return toDomainBinding(rec), nil
}

func (r *bindingRepository) ListByAccount(ctx context.Context, accountUID uuid.UUID) ([]domain.ProviderBinding, error) {
	var rows []bindingModel
	err := r.db.WithContext(ctx).
		Where("account_uid = ?", accountUID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProviderBinding, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainBinding(row))
	}
	return out, nil
}

func (r *bindingRepository) CountByAccount(ctx context.Context, accountUID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&bindingModel{}).
		Where("account_uid = ?", accountUID).
		Count(&count).Error
	return count, err
}

func (r *bindingRepository) Delete(ctx context.Context, accountUID uuid.UUID, providerType domain.ProviderType, providerID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("account_uid = ? AND provider_type = ? AND provider_id = ?", accountUID, string(providerType), providerID).
		Delete(&bindingModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Replace swaps one binding for another atomically. When the delete matches
// no row the old binding was already changed and the transaction aborts, so
// a stale phase-two proof cannot clobber a newer state.
func (r *bindingRepository) Replace(ctx context.Context, accountUID uuid.UUID, providerType domain.ProviderType, oldProviderID string, newBinding domain.ProviderBinding) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("account_uid = ? AND provider_type = ? AND provider_id = ?", accountUID, string(providerType), oldProviderID).
			Delete(&bindingModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotBound
		}
		rec := toBindingModel(newBinding)
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		return nil
	})
}

func (r *bindingRepository) UpdatePasswordHash(ctx context.Context, accountUID uuid.UUID, passwordHash string) error {
	res := r.db.WithContext(ctx).
		Model(&bindingModel{}).
		Where("account_uid = ? AND provider_type = ?", accountUID, string(domain.ProviderPassword)).
		Update("password_hash", passwordHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotBound
	}
	return nil
}
