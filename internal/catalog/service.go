package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/caldercommerce/storefront/pkg/db"
	"github.com/caldercommerce/storefront/pkg/db/models"
	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
	"github.com/caldercommerce/storefront/pkg/logger"
	"github.com/caldercommerce/storefront/pkg/pagination"
)

// CreateProductInput creates a product, optionally with its initial variants
// and images in one call.
type CreateProductInput struct {
	Title       string         `json:"title" validate:"required"`
	Slug        string         `json:"slug" validate:"required,max=255"`
	Vendor      string         `json:"vendor" validate:"required"`
	ProductType string         `json:"product_type" validate:"required"`
	Variants    []VariantInput `json:"variants,omitempty" validate:"omitempty,dive"`
	Images      []ImageInput   `json:"images,omitempty" validate:"omitempty,dive"`
}

// VariantInput creates a sellable variant under a product.
type VariantInput struct {
	Title       string          `json:"title" validate:"required"`
	Price       decimal.Decimal `json:"price" validate:"required"`
	SKU         string          `json:"sku" validate:"required"`
	Option      string          `json:"option"`
	Barcode     string          `json:"barcode"`
	Weight      *int            `json:"weight,omitempty" validate:"omitempty,gte=0"`
	WeightUnit  *string         `json:"weight_unit,omitempty"`
	Currency    *string         `json:"currency,omitempty" validate:"omitempty,len=3"`
	MinQuantity int             `json:"min_quantity" validate:"omitempty,gte=1"`
	MaxQuantity *int            `json:"max_quantity,omitempty" validate:"omitempty,gte=1"`
}

// ImageInput attaches an ordered image to a product.
type ImageInput struct {
	Src      string  `json:"src" validate:"required,url"`
	Alt      string  `json:"alt"`
	Position int     `json:"position" validate:"omitempty,gte=0"`
	Width    *string `json:"width,omitempty"`
	Height   *string `json:"height,omitempty"`
}

// UpdateProductInput patches product fields. Nil fields are left untouched.
type UpdateProductInput struct {
	Title       *string `json:"title,omitempty"`
	Slug        *string `json:"slug,omitempty" validate:"omitempty,max=255"`
	Vendor      *string `json:"vendor,omitempty"`
	ProductType *string `json:"product_type,omitempty"`
}

// UpdateVariantInput patches variant fields. Nil fields are left untouched.
type UpdateVariantInput struct {
	Title       *string          `json:"title,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	SKU         *string          `json:"sku,omitempty"`
	Option      *string          `json:"option,omitempty"`
	Barcode     *string          `json:"barcode,omitempty"`
	Weight      *int             `json:"weight,omitempty" validate:"omitempty,gte=0"`
	WeightUnit  *string          `json:"weight_unit,omitempty"`
	Currency    *string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	MinQuantity *int             `json:"min_quantity,omitempty" validate:"omitempty,gte=1"`
	MaxQuantity *int             `json:"max_quantity,omitempty" validate:"omitempty,gte=1"`
}

// Service manages the product catalog. GetVariant doubles as the variant
// lookup carts and checkout snapshot prices from.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	ListProducts(ctx context.Context, params pagination.Params) (pagination.Page[models.Product], error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error

	AddVariant(ctx context.Context, productID uuid.UUID, input VariantInput) (*models.Variant, error)
	// GetVariant returns nil without error when the variant does not exist.
	GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	ListVariants(ctx context.Context, productID uuid.UUID) ([]models.Variant, error)
	UpdateVariant(ctx context.Context, id uuid.UUID, input UpdateVariantInput) (*models.Variant, error)
	DeleteVariant(ctx context.Context, id uuid.UUID) error

	AddImage(ctx context.Context, productID uuid.UUID, input ImageInput) (*models.Image, error)
	DeleteImage(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo     Repository
	dbClient *db.Client
	logg     *logger.Logger
}

// NewService wires the catalog service.
func NewService(repo Repository, dbClient *db.Client, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{repo: repo, dbClient: dbClient, logg: logg}, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	for i := range input.Variants {
		if err := validateVariantInput(input.Variants[i]); err != nil {
			return nil, err
		}
	}
	product := &models.Product{
		Title:       input.Title,
		Slug:        input.Slug,
		Vendor:      input.Vendor,
		ProductType: input.ProductType,
	}
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateProduct(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "products_slug_key") {
				return pkgerrors.New(pkgerrors.CodeConflict, "product slug already in use")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
		}
		for _, vi := range input.Variants {
			variant := buildVariant(product.ID, vi)
			if err := repo.CreateVariant(ctx, variant); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create variant")
			}
		}
		for _, ii := range input.Images {
			image := buildImage(product.ID, ii)
			if err := repo.CreateImage(ctx, image); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create image")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "product_id", product.ID.String()), "product created")
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (s *service) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	product, err := s.repo.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product by slug")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (s *service) ListProducts(ctx context.Context, params pagination.Params) (pagination.Page[models.Product], error) {
	rows, total, err := s.repo.ListProducts(ctx, params)
	if err != nil {
		return pagination.Page[models.Product]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return pagination.NewPage(rows, params, total), nil
}

func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*models.Product, error) {
	if _, err := s.GetProduct(ctx, id); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if input.Title != nil {
		fields["title"] = *input.Title
	}
	if input.Slug != nil {
		fields["slug"] = *input.Slug
	}
	if input.Vendor != nil {
		fields["vendor"] = *input.Vendor
	}
	if input.ProductType != nil {
		fields["product_type"] = *input.ProductType
	}
	if len(fields) == 0 {
		return s.GetProduct(ctx, id)
	}
	if err := s.repo.UpdateProductFields(ctx, id, fields); err != nil {
		if db.IsUniqueViolation(err, "products_slug_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product slug already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return s.GetProduct(ctx, id)
}

func (s *service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	var affected int64
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		affected, err = s.repo.WithTx(tx).DeleteProduct(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func (s *service) AddVariant(ctx context.Context, productID uuid.UUID, input VariantInput) (*models.Variant, error) {
	if err := validateVariantInput(input); err != nil {
		return nil, err
	}
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	variant := buildVariant(productID, input)
	if err := s.repo.CreateVariant(ctx, variant); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create variant")
	}
	return variant, nil
}

func (s *service) GetVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	variant, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	return variant, nil
}

func (s *service) ListVariants(ctx context.Context, productID uuid.UUID) ([]models.Variant, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list variants")
	}
	return rows, nil
}

func (s *service) UpdateVariant(ctx context.Context, id uuid.UUID, input UpdateVariantInput) (*models.Variant, error) {
	existing, err := s.GetVariant(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	if input.Price != nil && input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}

	minQty := existing.MinQuantity
	if input.MinQuantity != nil {
		minQty = *input.MinQuantity
	}
	maxQty := existing.MaxQuantity
	if input.MaxQuantity != nil {
		maxQty = input.MaxQuantity
	}
	if maxQty != nil && *maxQty < minQty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max_quantity cannot be below min_quantity")
	}

	fields := map[string]any{}
	if input.Title != nil {
		fields["title"] = *input.Title
	}
	if input.Price != nil {
		fields["price"] = *input.Price
	}
	if input.SKU != nil {
		fields["sku"] = *input.SKU
	}
	if input.Option != nil {
		fields["option"] = *input.Option
	}
	if input.Barcode != nil {
		fields["barcode"] = *input.Barcode
	}
	if input.Weight != nil {
		fields["weight"] = *input.Weight
	}
	if input.WeightUnit != nil {
		fields["weight_unit"] = *input.WeightUnit
	}
	if input.Currency != nil {
		fields["currency"] = *input.Currency
	}
	if input.MinQuantity != nil {
		fields["min_quantity"] = *input.MinQuantity
	}
	if input.MaxQuantity != nil {
		fields["max_quantity"] = *input.MaxQuantity
	}
	if len(fields) == 0 {
		return existing, nil
	}
	if err := s.repo.UpdateVariantFields(ctx, id, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update variant")
	}
	return s.repo.GetVariant(ctx, id)
}

func (s *service) DeleteVariant(ctx context.Context, id uuid.UUID) error {
	affected, err := s.repo.DeleteVariant(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete variant")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	return nil
}

func (s *service) AddImage(ctx context.Context, productID uuid.UUID, input ImageInput) (*models.Image, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	image := buildImage(productID, input)
	if err := s.repo.CreateImage(ctx, image); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create image")
	}
	return image, nil
}

func (s *service) DeleteImage(ctx context.Context, id uuid.UUID) error {
	affected, err := s.repo.DeleteImage(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete image")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "image not found")
	}
	return nil
}

func validateVariantInput(input VariantInput) error {
	if input.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	minQty := input.MinQuantity
	if minQty == 0 {
		minQty = 1
	}
	if input.MaxQuantity != nil && *input.MaxQuantity < minQty {
		return pkgerrors.New(pkgerrors.CodeValidation, "max_quantity cannot be below min_quantity")
	}
	return nil
}

func buildVariant(productID uuid.UUID, input VariantInput) *models.Variant {
	minQty := input.MinQuantity
	if minQty == 0 {
		minQty = 1
	}
	return &models.Variant{
		ProductID:   productID,
		Title:       input.Title,
		Price:       input.Price,
		SKU:         input.SKU,
		Option:      input.Option,
		Barcode:     input.Barcode,
		Weight:      input.Weight,
		WeightUnit:  input.WeightUnit,
		Currency:    input.Currency,
		MinQuantity: minQty,
		MaxQuantity: input.MaxQuantity,
	}
}

func buildImage(productID uuid.UUID, input ImageInput) *models.Image {
	return &models.Image{
		ProductID: productID,
		Position:  input.Position,
		Alt:       input.Alt,
		Src:       input.Src,
		Width:     input.Width,
		Height:    input.Height,
	}
}
