package postgres

import (
	"context"

	"github.com/EduForge-2025/cat-engine/internal/repositories"
	"gorm.io/gorm"
)

// Repository bundles the gorm-backed implementations behind the aggregate
// repositories.Repository interface.
type Repository struct {
	db *gorm.DB

	session    repositories.SessionRepository
	item       repositories.ItemRepository
	definition repositories.TestDefinitionRepository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:         db,
		session:    NewSessionPostgreSQL(db),
		item:       NewItemPostgreSQL(db),
		definition: NewTestDefinitionPostgreSQL(db),
	}
}

func (r *Repository) Session() repositories.SessionRepository               { return r.session }
func (r *Repository) Item() repositories.ItemRepository                     { return r.item }
func (r *Repository) TestDefinition() repositories.TestDefinitionRepository { return r.definition }

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
