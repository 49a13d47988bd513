package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/closetline/api/internal/domain"
	pfirestore "github.com/closetline/api/internal/platform/firestore"
	"github.com/closetline/api/internal/platform/pagination"
	"github.com/closetline/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		provider: provider,
	}, nil
}

// Insert creates the order document.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, fromDomainOrder(order))
}

// Mutate applies fn to the stored order inside a transaction.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutation is required")
	}

	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, found, err := r.base.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !found {
			return pfirestore.NotFound("orders.mutate", orderID)
		}
		order := toDomainOrder(doc.ID, doc.Data)
		if err := fn(&order); err != nil {
			result = order
			return err
		}
		result = order
		return r.base.SetTx(ctx, tx, orderID, fromDomainOrder(order))
	})
	if errors.Is(err, repositories.ErrSkipWrite) {
		return result, nil
	}
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// FindByID loads an order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

// List returns one page of all orders, newest first.
func (r *OrderRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := pager.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, size)}
	for i, doc := range docs {
		if i == size {
			break
		}
		page.Items = append(page.Items, toDomainOrder(doc.ID, doc.Data))
	}
	if len(docs) > size {
		last := page.Items[len(page.Items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type orderDocument struct {
	UserID          string                  `firestore:"userId"`
	Items           []orderItemDocument     `firestore:"items"`
	Shipping        shippingProfileDocument `firestore:"shipping"`
	Subtotal        float64                 `firestore:"subtotal"`
	Tax             float64                 `firestore:"tax"`
	ShippingFee     float64                 `firestore:"shippingFee"`
	Total           float64                 `firestore:"total"`
	PaymentMethod   string                  `firestore:"paymentMethod"`
	PaymentStatus   string                  `firestore:"paymentStatus"`
	ShippingStatus  string                  `firestore:"shippingStatus"`
	PaidAt          *time.Time              `firestore:"paidAt,omitempty"`
	StripeSessionID string                  `firestore:"stripeSessionId,omitempty"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string  `firestore:"productId"`
	Name      string  `firestore:"name"`
	Size      string  `firestore:"size"`
	UnitPrice float64 `firestore:"unitPrice"`
	Quantity  int     `firestore:"quantity"`
	ImageURL  string  `firestore:"imageUrl"`
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	return domain.Order{
		ID:              id,
		UserID:          doc.UserID,
		Items:           items,
		Shipping:        toDomainShipping(doc.Shipping),
		Subtotal:        doc.Subtotal,
		Tax:             doc.Tax,
		ShippingFee:     doc.ShippingFee,
		Total:           doc.Total,
		PaymentMethod:   domain.PaymentMethod(doc.PaymentMethod),
		PaymentStatus:   domain.PaymentStatus(doc.PaymentStatus),
		ShippingStatus:  domain.ShippingStatus(doc.ShippingStatus),
		PaidAt:          doc.PaidAt,
		StripeSessionID: doc.StripeSessionID,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	doc := orderDocument{
		UserID:          order.UserID,
		Items:           items,
		Shipping:        fromDomainShipping(order.Shipping),
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		ShippingFee:     order.ShippingFee,
		Total:           order.Total,
		PaymentMethod:   string(order.PaymentMethod),
		PaymentStatus:   string(order.PaymentStatus),
		ShippingStatus:  string(order.ShippingStatus),
		StripeSessionID: order.StripeSessionID,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
	if order.PaidAt != nil {
		paidAt := order.PaidAt.UTC()
		doc.PaidAt = &paidAt
	}
	return doc
}
