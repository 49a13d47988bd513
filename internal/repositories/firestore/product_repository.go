package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/closetline/api/internal/domain"
	pfirestore "github.com/closetline/api/internal/platform/firestore"
	"github.com/closetline/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalog entries in Firestore.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
	}, nil
}

// Insert creates the product document.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.base.Create(ctx, product.ID, fromDomainProduct(product))
}

// FindByID loads a product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if strings.TrimSpace(productID) == "" {
		return domain.Product{}, errors.New("product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc.ID, doc.Data), nil
}

// List returns the whole catalog, newest first.
func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, toDomainProduct(doc.ID, doc.Data))
	}
	return products, nil
}

// Delete removes the product. A missing product is reported as not found.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	ref, err := r.base.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

type productDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	Price       float64   `firestore:"price"`
	Category    string    `firestore:"category"`
	SubCategory string    `firestore:"subCategory"`
	Sizes       []string  `firestore:"sizes"`
	Bestseller  bool      `firestore:"bestseller"`
	Images      []string  `firestore:"images"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func toDomainProduct(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Price:       doc.Price,
		Category:    doc.Category,
		SubCategory: doc.SubCategory,
		Sizes:       cloneStrings(doc.Sizes),
		Bestseller:  doc.Bestseller,
		Images:      cloneStrings(doc.Images),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func fromDomainProduct(product domain.Product) productDocument {
	doc := productDocument{
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Category:    product.Category,
		SubCategory: product.SubCategory,
		Sizes:       cloneStrings(product.Sizes),
		Bestseller:  product.Bestseller,
		Images:      cloneStrings(product.Images),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
	if doc.Sizes == nil {
		doc.Sizes = []string{}
	}
	if doc.Images == nil {
		doc.Images = []string{}
	}
	return doc
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
