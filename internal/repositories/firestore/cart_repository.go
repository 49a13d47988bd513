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

const cartCollection = "carts"

// CartRepository persists one cart document per user, keyed by user ID.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base:     pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
		provider: provider,
	}, nil
}

// Get loads the user's cart.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	return toDomainCart(doc.ID, doc.Data), nil
}

// Mutate reads the cart, applies fn and writes the result within one transaction.
// Returning repositories.ErrSkipWrite from fn leaves the document untouched.
func (r *CartRepository) Mutate(ctx context.Context, userID string, fn repositories.CartMutation) (domain.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	if fn == nil {
		return domain.Cart{}, errors.New("cart repository: mutation is required")
	}

	var result domain.Cart
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, found, err := r.base.GetTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		cart := domain.Cart{UserID: userID}
		if found {
			cart = toDomainCart(userID, doc.Data)
		}
		if err := fn(&cart, found); err != nil {
			result = cart
			return err
		}
		cart.UserID = userID
		result = cart
		return r.base.SetTx(ctx, tx, userID, fromDomainCart(cart))
	})
	if errors.Is(err, repositories.ErrSkipWrite) {
		return result, nil
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return result, nil
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	Totals    cartTotalsDocument `firestore:"totals"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Name      string    `firestore:"name"`
	Size      string    `firestore:"size"`
	UnitPrice float64   `firestore:"unitPrice"`
	Quantity  int       `firestore:"quantity"`
	ImageURL  string    `firestore:"imageUrl"`
	AddedAt   time.Time `firestore:"addedAt"`
}

type cartTotalsDocument struct {
	Quantity int     `firestore:"quantity"`
	Subtotal float64 `firestore:"subtotal"`
	Tax      float64 `firestore:"tax"`
	Shipping float64 `firestore:"shipping"`
	Total    float64 `firestore:"total"`
}

func toDomainCart(userID string, doc cartDocument) domain.Cart {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
			AddedAt:   item.AddedAt,
		})
	}
	return domain.Cart{
		UserID: userID,
		Items:  items,
		Totals: domain.CartTotals{
			Quantity: doc.Totals.Quantity,
			Subtotal: doc.Totals.Subtotal,
			Tax:      doc.Totals.Tax,
			Shipping: doc.Totals.Shipping,
			Total:    doc.Totals.Total,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func fromDomainCart(cart domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return cartDocument{
		Items: items,
		Totals: cartTotalsDocument{
			Quantity: cart.Totals.Quantity,
			Subtotal: cart.Totals.Subtotal,
			Tax:      cart.Totals.Tax,
			Shipping: cart.Totals.Shipping,
			Total:    cart.Totals.Total,
		},
		CreatedAt: cart.CreatedAt.UTC(),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
}
