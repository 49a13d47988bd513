package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/closetline/api/internal/repositories"
)

const (
	productIDPrefix         = "prd_"
	maxProductImages        = 4
	maxProductNameLength    = 120
	maxProductDescriptionLn = 4000
)

var (
	// ErrCatalogInvalidInput indicates the product form failed validation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product does not exist.
	ErrCatalogNotFound = errors.New("catalog: product not found")
	// ErrCatalogUnavailable indicates a storage or database failure.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

var descriptionPolicy = bluemonday.StrictPolicy()

// CatalogServiceDeps wires the product catalog.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Uploader    ImageUploader
	Sanitizer   func(string) string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	uploader ImageUploader
	sanitize func(string) string
	title    cases.Caser
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return productIDPrefix + ulid.Make().String()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeDescription
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &catalogService{
		products: deps.Products,
		uploader: deps.Uploader,
		sanitize: sanitize,
		title:    cases.Title(language.English),
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" || utf8.RuneCountInString(name) > maxProductNameLength {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	sizes := normaliseSizes(cmd.Sizes)
	if len(sizes) == 0 {
		return Product{}, fmt.Errorf("%w: at least one size is required", ErrCatalogInvalidInput)
	}
	if len(cmd.Images) > maxProductImages {
		return Product{}, fmt.Errorf("%w: at most %d images", ErrCatalogInvalidInput, maxProductImages)
	}
	description := s.sanitize(cmd.Description)
	if utf8.RuneCountInString(description) > maxProductDescriptionLn {
		return Product{}, fmt.Errorf("%w: description is too long", ErrCatalogInvalidInput)
	}
	if len(cmd.Images) > 0 && s.uploader == nil {
		return Product{}, fmt.Errorf("%w: image storage is not configured", ErrCatalogUnavailable)
	}

	now := s.now()
	product := Product{
		ID:          s.newID(),
		Name:        name,
		Description: description,
		Price:       decimal.NewFromFloat(cmd.Price).Round(2).InexactFloat64(),
		Category:    s.label(cmd.Category),
		SubCategory: s.label(cmd.SubCategory),
		Sizes:       sizes,
		Bestseller:  cmd.Bestseller,
		Images:      make([]string, 0, len(cmd.Images)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for i, image := range cmd.Images {
		if image.Body == nil {
			continue
		}
		url, err := s.uploader.UploadProductImage(ctx, product.ID, image)
		if err != nil {
			s.logger(ctx, "catalog.image.upload.failed", map[string]any{
				"productId": product.ID,
				"index":     i,
				"error":     err.Error(),
			})
			return Product{}, fmt.Errorf("%w: upload image %d: %v", ErrCatalogUnavailable, i+1, err)
		}
		product.Images = append(product.Images, url)
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translate(err)
	}
	s.logger(ctx, "catalog.product.created", map[string]any{"productId": product.ID, "images": len(product.Images)})
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context) ([]Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, s.translate(err)
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translate(err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.translate(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) label(raw string) string {
	trimmed := strings.Join(strings.Fields(raw), " ")
	if trimmed == "" {
		return ""
	}
	return s.title.String(strings.ToLower(trimmed))
}

func (s *catalogService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrCatalogNotFound
	default:
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
}

func sanitizeDescription(raw string) string {
	return strings.TrimSpace(descriptionPolicy.Sanitize(raw))
}

func normaliseSizes(sizes []string) []string {
	out := make([]string, 0, len(sizes))
	seen := make(map[string]struct{}, len(sizes))
	for _, size := range sizes {
		size = strings.TrimSpace(size)
		if size == "" {
			continue
		}
		if _, ok := seen[size]; ok {
			continue
		}
		seen[size] = struct{}{}
		out = append(out, size)
	}
	return out
}
