package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sifan077/quotalink/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrMappingNotFound signals that the requested mapping does not exist.
	ErrMappingNotFound = errors.New("mapping not found")
	// ErrDuplicateCode signals a unique violation on the short code.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrDuplicateOwnerURL signals that the owner already shortened this exact URL.
	ErrDuplicateOwnerURL = errors.New("duplicate owner url")
)

const pgUniqueViolation = "23505"

// MappingStore is the durable table of mappings. It is the single source of
// truth for code uniqueness and for the (owner, url) pair uniqueness.
type MappingStore interface {
	FindByOwnerAndURL(ctx context.Context, ownerID, originalURL string) (*model.Mapping, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	Insert(ctx context.Context, ownerID, originalURL, code string) (*model.Mapping, error)
	FindByCode(ctx context.Context, code string) (*model.Mapping, error)
	IncrementClicks(ctx context.Context, id int64) error
	ListByOwner(ctx context.Context, ownerID string) ([]model.Mapping, error)
	FindByIDAndOwner(ctx context.Context, id int64, ownerID string) (*model.Mapping, error)
	DeleteByID(ctx context.Context, id int64) error
	CountAll(ctx context.Context) (int64, error)
}

type mappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository returns a GORM-backed MappingStore.
func NewMappingRepository(db *gorm.DB) MappingStore {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) FindByOwnerAndURL(ctx context.Context, ownerID, originalURL string) (*model.Mapping, error) {
	var m model.Mapping
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND original_url = ?", ownerID, originalURL).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *mappingRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Mapping{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *mappingRepository) Insert(ctx context.Context, ownerID, originalURL, code string) (*model.Mapping, error) {
	m := &model.Mapping{
		OwnerID:     ownerID,
		OriginalURL: originalURL,
		Code:        code,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, translateInsertError(err)
	}
	return m, nil
}

func (r *mappingRepository) FindByCode(ctx context.Context, code string) (*model.Mapping, error) {
	var m model.Mapping
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *mappingRepository) IncrementClicks(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Mapping{}).
		Where("id = ?", id).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMappingNotFound
	}
	return nil
}

func (r *mappingRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Mapping, error) {
	var result []model.Mapping
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *mappingRepository) FindByIDAndOwner(ctx context.Context, id int64, ownerID string) (*model.Mapping, error) {
	var m model.Mapping
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *mappingRepository) DeleteByID(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Mapping{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMappingNotFound
	}
	return nil
}

func (r *mappingRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Mapping{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMappingNotFound
	}
	return err
}

// translateInsertError maps Postgres unique violations onto the store sentinels
// by the name of the violated index.
func translateInsertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case model.CodeIndexName:
		return ErrDuplicateCode
	case model.OwnerURLIndexName:
		return ErrDuplicateOwnerURL
	default:
		return err
	}
}
