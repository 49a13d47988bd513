package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/closetline/api/internal/domain"
)

var orderTestNow = time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)

func newTestOrderService(t *testing.T, orders ...domain.Order) (OrderService, *fakeOrderRepo, *recordingPublisher) {
	t.Helper()
	repo := newFakeOrderRepo(orders...)
	events := &recordingPublisher{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      repo,
		Events:      events,
		Clock:       func() time.Time { return orderTestNow },
		IDGenerator: func() string { return "ord_test" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc, repo, events
}

func unpaidOrder(id string, method domain.PaymentMethod) domain.Order {
	return domain.Order{
		ID:             id,
		UserID:         "usr_1",
		Items:          []domain.OrderItem{{ProductID: "prd_shirt", Name: "Linen Shirt", Size: "M", UnitPrice: 3000, Quantity: 1}},
		Shipping:       domain.ShippingProfile{Email: "ada@example.com"},
		Total:          4050,
		PaymentMethod:  method,
		PaymentStatus:  domain.PaymentStatusUnpaid,
		ShippingStatus: domain.ShippingStatusPlaced,
		CreatedAt:      orderTestNow.Add(-time.Hour),
		UpdatedAt:      orderTestNow.Add(-time.Hour),
	}
}

func TestNewOrderServiceValidatesDeps(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{Clock: time.Now}); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: newFakeOrderRepo()}); err == nil {
		t.Fatal("expected error without clock")
	}
}

func TestOrderServicePlaceOrderSnapshotsCart(t *testing.T) {
	svc, repo, events := newTestOrderService(t)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID: "usr_1",
		Items: []domain.CartItem{
			{ProductID: "prd_shirt", Name: "Linen Shirt", Size: "M", UnitPrice: 3000, Quantity: 2, ImageURL: "https://img/shirt.jpg"},
		},
		Shipping:      domain.ShippingProfile{FirstName: "Ada", Email: "ada@example.com"},
		Totals:        domain.CartTotals{Quantity: 2, Subtotal: 6000, Tax: 1800, Shipping: 0, Total: 7800},
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.ID != "ord_test" {
		t.Fatalf("expected generated id, got %s", order.ID)
	}
	if order.PaymentStatus != domain.PaymentStatusUnpaid || order.ShippingStatus != domain.ShippingStatusPlaced {
		t.Fatalf("unexpected initial statuses %s/%s", order.PaymentStatus, order.ShippingStatus)
	}
	if order.Subtotal != 6000 || order.Tax != 1800 || order.ShippingFee != 0 || order.Total != 7800 {
		t.Fatalf("expected totals copied from cart, got %+v", order)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 2 || order.Items[0].ImageURL != "https://img/shirt.jpg" {
		t.Fatalf("expected items snapshot, got %+v", order.Items)
	}
	if _, ok := repo.orders["ord_test"]; !ok {
		t.Fatal("expected order to be persisted")
	}
	if got := events.types(); len(got) != 1 || got[0] != OrderEventPlaced {
		t.Fatalf("expected order.placed event, got %v", got)
	}
	if events.events[0].Email != "ada@example.com" {
		t.Fatalf("expected event to carry shipping email, got %q", events.events[0].Email)
	}
}

func TestOrderServicePlaceOrderValidation(t *testing.T) {
	svc, _, _ := newTestOrderService(t)
	ctx := context.Background()

	cases := map[string]PlaceOrderCommand{
		"missing user":   {Items: []domain.CartItem{{ProductID: "p", Quantity: 1}}, PaymentMethod: domain.PaymentMethodCard},
		"no items":       {UserID: "usr_1", PaymentMethod: domain.PaymentMethodCard},
		"unknown method": {UserID: "usr_1", Items: []domain.CartItem{{ProductID: "p", Quantity: 1}}, PaymentMethod: "BARTER"},
	}
	for name, cmd := range cases {
		if _, err := svc.PlaceOrder(ctx, cmd); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestOrderServicePublishFailureDoesNotFailOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	events := &recordingPublisher{err: errors.New("pubsub down")}
	var logged []string
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: repo,
		Events: events,
		Clock:  func() time.Time { return orderTestNow },
		Logger: func(_ context.Context, event string, _ map[string]any) { logged = append(logged, event) },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:        "usr_1",
		Items:         []domain.CartItem{{ProductID: "prd_shirt", Quantity: 1, UnitPrice: 10}},
		PaymentMethod: domain.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if len(order.ID) <= len(orderIDPrefix) || order.ID[:len(orderIDPrefix)] != orderIDPrefix {
		t.Fatalf("expected prefixed ulid id, got %s", order.ID)
	}
	found := false
	for _, event := range logged {
		if event == "order.event.publish.failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected publish failure to be logged, got %v", logged)
	}
}

func TestOrderServiceConfirmPaymentIsIdempotent(t *testing.T) {
	svc, repo, events := newTestOrderService(t, unpaidOrder("ord_card", domain.PaymentMethodCard))
	ctx := context.Background()

	order, err := svc.ConfirmPayment(ctx, "ord_card", "cs_123")
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if !order.IsPaid() || order.PaidAt == nil || !order.PaidAt.Equal(orderTestNow) {
		t.Fatalf("expected paid order, got %+v", order)
	}
	if order.ShippingStatus != domain.ShippingStatusPlaced {
		t.Fatalf("expected card order to stay placed, got %s", order.ShippingStatus)
	}
	if order.StripeSessionID != "cs_123" {
		t.Fatalf("expected session recorded, got %q", order.StripeSessionID)
	}

	if _, err := svc.ConfirmPayment(ctx, "ord_card", "cs_123"); err != nil {
		t.Fatalf("second ConfirmPayment: %v", err)
	}
	if repo.mutations != 1 {
		t.Fatalf("expected a single write, got %d", repo.mutations)
	}
	if got := events.types(); len(got) != 1 || got[0] != OrderEventPaid {
		t.Fatalf("expected a single order.paid event, got %v", got)
	}
}

func TestOrderServiceConfirmPaymentUnknownOrder(t *testing.T) {
	svc, _, _ := newTestOrderService(t)
	if _, err := svc.ConfirmPayment(context.Background(), "ord_missing", ""); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceConfirmPaymentKeepsShippingProgress(t *testing.T) {
	order := unpaidOrder("ord_card", domain.PaymentMethodCard)
	order.ShippingStatus = domain.ShippingStatusShipped
	svc, _, _ := newTestOrderService(t, order)

	paid, err := svc.ConfirmPayment(context.Background(), "ord_card", "")
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if paid.ShippingStatus != domain.ShippingStatusShipped {
		t.Fatalf("expected shipping to stay shipped, got %s", paid.ShippingStatus)
	}
}

func TestOrderServiceMarkCashOnDeliveryPaid(t *testing.T) {
	svc, _, events := newTestOrderService(t,
		unpaidOrder("ord_cod", domain.PaymentMethodCashOnDelivery),
		unpaidOrder("ord_card", domain.PaymentMethodCard),
	)
	ctx := context.Background()

	order, err := svc.MarkCashOnDeliveryPaid(ctx, "ord_cod")
	if err != nil {
		t.Fatalf("MarkCashOnDeliveryPaid: %v", err)
	}
	if !order.IsPaid() || order.ShippingStatus != domain.ShippingStatusDelivered {
		t.Fatalf("expected paid and delivered, got %s/%s", order.PaymentStatus, order.ShippingStatus)
	}
	if _, err := svc.MarkCashOnDeliveryPaid(ctx, "ord_cod"); err != nil {
		t.Fatalf("repeat MarkCashOnDeliveryPaid: %v", err)
	}
	if len(events.types()) != 1 {
		t.Fatalf("expected one paid event, got %v", events.types())
	}

	if _, err := svc.MarkCashOnDeliveryPaid(ctx, "ord_card"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected card order to be rejected, got %v", err)
	}
}

func TestOrderServiceUpdateShippingStatus(t *testing.T) {
	svc, repo, events := newTestOrderService(t, unpaidOrder("ord_1", domain.PaymentMethodCard))
	ctx := context.Background()

	order, err := svc.UpdateShippingStatus(ctx, "ord_1", "shipped")
	if err != nil {
		t.Fatalf("UpdateShippingStatus: %v", err)
	}
	if order.ShippingStatus != domain.ShippingStatusShipped {
		t.Fatalf("expected shipped, got %s", order.ShippingStatus)
	}

	if _, err := svc.UpdateShippingStatus(ctx, "ord_1", "SHIPPED"); err != nil {
		t.Fatalf("repeat UpdateShippingStatus: %v", err)
	}
	if repo.mutations != 1 {
		t.Fatalf("expected repeat status to skip the write, got %d writes", repo.mutations)
	}

	if _, err := svc.UpdateShippingStatus(ctx, "ord_1", "PACKING"); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected regression to be rejected, got %v", err)
	}
	if _, err := svc.UpdateShippingStatus(ctx, "ord_1", "LOST"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected unknown status to be invalid input, got %v", err)
	}
	if got := events.types(); len(got) != 1 || got[0] != OrderEventShippingUpdated {
		t.Fatalf("expected one shipping event, got %v", got)
	}
}

func TestOrderServiceAttachPaymentSession(t *testing.T) {
	svc, _, _ := newTestOrderService(t, unpaidOrder("ord_card", domain.PaymentMethodCard))

	order, err := svc.AttachPaymentSession(context.Background(), "ord_card", "cs_42")
	if err != nil {
		t.Fatalf("AttachPaymentSession: %v", err)
	}
	if order.StripeSessionID != "cs_42" || !order.UpdatedAt.Equal(orderTestNow) {
		t.Fatalf("unexpected order %+v", order)
	}
	if _, err := svc.AttachPaymentSession(context.Background(), "ord_card", " "); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderServiceListings(t *testing.T) {
	older := unpaidOrder("ord_old", domain.PaymentMethodCard)
	newer := unpaidOrder("ord_new", domain.PaymentMethodCard)
	newer.CreatedAt = orderTestNow
	other := unpaidOrder("ord_other", domain.PaymentMethodCard)
	other.UserID = "usr_2"
	svc, _, _ := newTestOrderService(t, older, newer, other)
	ctx := context.Background()

	mine, err := svc.ListUserOrders(ctx, "usr_1")
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "ord_new" {
		t.Fatalf("expected newest first for usr_1, got %+v", mine)
	}

	none, err := svc.ListUserOrders(ctx, "usr_3")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", none, err)
	}

	page, err := svc.ListOrders(ctx, domain.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Items) != 2 || page.NextPageToken == "" {
		t.Fatalf("expected first page with next token, got %+v", page)
	}
}
