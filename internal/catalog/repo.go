package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/pkg/db/models"
	"github.com/caldercommerce/storefront/pkg/pagination"
)

// Repository manages products and their nested variants and images.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	ListProducts(ctx context.Context, params pagination.Params) ([]models.Product, int64, error)
	UpdateProductFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	DeleteProduct(ctx context.Context, id uuid.UUID) (int64, error)

	CreateVariant(ctx context.Context, variant *models.Variant) error
	GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	ListVariantsByProduct(ctx context.Context, productID uuid.UUID) ([]models.Variant, error)
	UpdateVariantFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	DeleteVariant(ctx context.Context, id uuid.UUID) (int64, error)

	CreateImage(ctx context.Context, image *models.Image) error
	DeleteImage(ctx context.Context, id uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Variants", "Images").Create(product).Error
}

func (r *repository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *repository) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("slug = ?", slug).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListProducts(ctx context.Context, params pagination.Params) ([]models.Product, int64, error) {
	params = params.Normalize()
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&rows).Error
	return rows, total, err
}

func (r *repository) UpdateProductFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) DeleteProduct(ctx context.Context, id uuid.UUID) (int64, error) {
	if err := r.db.WithContext(ctx).Where("product_id = ?", id).Delete(&models.Variant{}).Error; err != nil {
		return 0, err
	}
	if err := r.db.WithContext(ctx).Where("product_id = ?", id).Delete(&models.Image{}).Error; err != nil {
		return 0, err
	}
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	return result.RowsAffected, result.Error
}

func (r *repository) CreateVariant(ctx context.Context, variant *models.Variant) error {
	if variant.ID == uuid.Nil {
		variant.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(variant).Error
}

func (r *repository) GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &variant, nil
}

func (r *repository) ListVariantsByProduct(ctx context.Context, productID uuid.UUID) ([]models.Variant, error) {
	var rows []models.Variant
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateVariantFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) DeleteVariant(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Variant{})
	return result.RowsAffected, result.Error
}

func (r *repository) CreateImage(ctx context.Context, image *models.Image) error {
	if image.ID == uuid.Nil {
		image.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(image).Error
}

func (r *repository) DeleteImage(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Image{})
	return result.RowsAffected, result.Error
}
