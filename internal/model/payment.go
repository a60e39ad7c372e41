package model

import (
	"fmt"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRejected PaymentStatus = "rejected"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:  {PaymentStatusPaid, PaymentStatusRejected},
	PaymentStatusPaid:     {PaymentStatusRefunded},
	PaymentStatusRejected: nil,
	PaymentStatusRefunded: nil,
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(s)
	if _, ok := paymentTransitions[status]; !ok {
		return "", fmt.Errorf("unknown payment status %q", s)
	}
	return status, nil
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return contains(paymentTransitions[s], next)
}

// Payment is the transfer record backing exactly one package.
type Payment struct {
	ID          int64         `json:"id"`
	PackageID   int64         `json:"package_id"`
	AmountCents int64         `json:"amount_cents"`
	Reference   string        `json:"reference"`
	Status      PaymentStatus `json:"status"`
	VerifiedBy  *int64        `json:"verified_by"`
	VerifiedAt  *time.Time    `json:"verified_at"`
	CreatedAt   time.Time     `json:"created_at"`
}
