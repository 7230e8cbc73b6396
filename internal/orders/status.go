package orders

import "strings"

type ShippingStatus string

const (
	ShippingPending    ShippingStatus = "pending"
	ShippingProcessing ShippingStatus = "processing"
	ShippingShipped    ShippingStatus = "shipped"
	ShippingDelivered  ShippingStatus = "delivered"
	ShippingCancelled  ShippingStatus = "cancelled"
)

// cancelled outranks everything: once the system of record cancels, no replay may revive it.
var shippingRank = map[ShippingStatus]int{
	ShippingPending:    0,
	ShippingProcessing: 1,
	ShippingShipped:    2,
	ShippingDelivered:  3,
	ShippingCancelled:  4,
}

var validNext = map[ShippingStatus]map[ShippingStatus]bool{
	ShippingPending:    {ShippingProcessing: true, ShippingShipped: true, ShippingDelivered: true, ShippingCancelled: true},
	ShippingProcessing: {ShippingShipped: true, ShippingDelivered: true, ShippingCancelled: true},
	ShippingShipped:    {ShippingDelivered: true, ShippingCancelled: true},
	ShippingDelivered:  {ShippingCancelled: true},
	ShippingCancelled:  {},
}

func CanTransition(from, to ShippingStatus) bool {
	return validNext[from][to]
}

// ParseShippingStatus folds case and whitespace; anything unknown becomes pending.
func ParseShippingStatus(s string) ShippingStatus {
	st := ShippingStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := shippingRank[st]; ok {
		return st
	}
	return ShippingPending
}

func (s ShippingStatus) Rank() int { return shippingRank[s] }

func (s ShippingStatus) Terminal() bool { return s == ShippingCancelled }

type PaymentStatus string

const (
	PaymentUnknown  PaymentStatus = ""
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

var paymentRank = map[PaymentStatus]int{
	PaymentUnknown:  0,
	PaymentPending:  1,
	PaymentPaid:     2,
	PaymentRefunded: 3,
}

func ParsePaymentStatus(s string) PaymentStatus {
	st := PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
	if st == "completed" {
		return PaymentPaid
	}
	if _, ok := paymentRank[st]; ok {
		return st
	}
	return PaymentUnknown
}

func (s PaymentStatus) Rank() int { return paymentRank[s] }
