package postgres

import (
	"gorm.io/gorm"

	"github.com/nimbusworks/console-identity-service/internal/ports"
)

type Repositories struct {
	Accounts         ports.AccountRepository
	Bindings         ports.BindingRepository
	Regions          ports.RegionRepository
	RegionIdentities ports.RegionIdentityRepository
	Workspaces       ports.WorkspaceRepository
	Outbox           ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Accounts:         &accountRepository{db: db},
		Bindings:         &bindingRepository{db: db},
		Regions:          &regionRepository{db: db},
		RegionIdentities: &regionIdentityRepository{db: db},
		Workspaces:       &workspaceRepository{db: db},
		Outbox:           &outboxRepository{db: db},
	}
}
