package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrShippingRegression indicates an attempt to move an order backwards through fulfilment.
	ErrShippingRegression = errors.New("order: shipping status cannot move backwards")
	// ErrUnknownShippingStatus indicates a status outside the fulfilment ladder.
	ErrUnknownShippingStatus = errors.New("order: unknown shipping status")
)

var shippingLadder = []ShippingStatus{
	ShippingStatusPlaced,
	ShippingStatusPacking,
	ShippingStatusShipped,
	ShippingStatusOutForDelivery,
	ShippingStatusDelivered,
}

// ParseShippingStatus normalises raw input into a known shipping status.
func ParseShippingStatus(raw string) (ShippingStatus, bool) {
	candidate := ShippingStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if shippingRank(candidate) < 0 {
		return "", false
	}
	return candidate, true
}

// ParsePaymentMethod normalises raw input into a known payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(PaymentMethodCashOnDelivery), "COD":
		return PaymentMethodCashOnDelivery, true
	case string(PaymentMethodCard), "STRIPE":
		return PaymentMethodCard, true
	default:
		return "", false
	}
}

func shippingRank(status ShippingStatus) int {
	for i, candidate := range shippingLadder {
		if candidate == status {
			return i
		}
	}
	return -1
}

// IsPaid reports whether the order has been settled.
func (o Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// AdvanceShipping moves the order forward to target. Re-asserting the current status is a no-op.
// It reports whether the order changed.
func (o *Order) AdvanceShipping(target ShippingStatus, now time.Time) (bool, error) {
	next := shippingRank(target)
	if next < 0 {
		return false, fmt.Errorf("%w: %q", ErrUnknownShippingStatus, target)
	}
	current := shippingRank(o.ShippingStatus)
	if next == current {
		return false, nil
	}
	if next < current {
		return false, fmt.Errorf("%w: %s -> %s", ErrShippingRegression, o.ShippingStatus, target)
	}
	o.ShippingStatus = target
	o.UpdatedAt = now
	return true, nil
}

// MarkPaid settles the order. Paying twice keeps the original paidAt and reports no change.
// Cash on delivery orders are delivered the moment they are paid.
func (o *Order) MarkPaid(now time.Time) bool {
	if o.IsPaid() {
		return false
	}
	paidAt := now
	o.PaymentStatus = PaymentStatusPaid
	o.PaidAt = &paidAt
	o.UpdatedAt = now
	switch o.PaymentMethod {
	case PaymentMethodCashOnDelivery:
		o.ShippingStatus = ShippingStatusDelivered
	default:
		if o.ShippingStatus == "" {
			o.ShippingStatus = ShippingStatusPlaced
		}
	}
	return true
}
