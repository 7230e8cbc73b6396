package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the canonical, validated form of one buyer purchase.
type Order struct {
	ID                string           `json:"id" validate:"required"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Price             decimal.Decimal  `json:"price"`
	MarkedUpPrice     *decimal.Decimal `json:"markedUpPrice,omitempty"`
	Seller            string           `json:"seller" validate:"required"`
	Buyer             string           `json:"buyer" validate:"required"`
	Date              time.Time        `json:"date"`
	ShippingStatus    ShippingStatus   `json:"shippingStatus"`
	PaymentStatus     PaymentStatus    `json:"paymentStatus,omitempty"`
	WasAuction        bool             `json:"wasAuction"`
	IsCustomRequest   bool             `json:"isCustomRequest"`
	DeliveryAddress   *DeliveryAddress `json:"deliveryAddress,omitempty"`
	Tags              []string         `json:"tags"`
	FinalBid          *decimal.Decimal `json:"finalBid,omitempty"`
	TierCreditAmount  *decimal.Decimal `json:"tierCreditAmount,omitempty"`
	TrackingNumber    string           `json:"trackingNumber,omitempty"`
	OriginalRequestID string           `json:"originalRequestId,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt,omitempty"`
	// Synthetic is set when the backend sent no id and one was derived from content.
	Synthetic bool `json:"synthetic,omitempty"`
}

type DeliveryAddress struct {
	FullName            string `json:"fullName" validate:"required"`
	AddressLine1        string `json:"addressLine1" validate:"required"`
	AddressLine2        string `json:"addressLine2,omitempty"`
	City                string `json:"city"`
	State               string `json:"state"`
	PostalCode          string `json:"postalCode"`
	Country             string `json:"country"`
	SpecialInstructions string `json:"specialInstructions,omitempty"`
}

// EffectivePrice is what the buyer paid: the marked-up price when present.
func (o Order) EffectivePrice() decimal.Decimal {
	if o.MarkedUpPrice != nil {
		return *o.MarkedUpPrice
	}
	return o.Price
}

func (o Order) HasAddress() bool {
	return o.DeliveryAddress != nil && o.DeliveryAddress.FullName != "" && o.DeliveryAddress.AddressLine1 != ""
}

func (o Order) Involves(user string) bool {
	return user != "" && (o.Buyer == user || o.Seller == user)
}

// Clone deep-copies pointer and slice fields so snapshots can be handed out safely.
func (o Order) Clone() Order {
	c := o
	if o.MarkedUpPrice != nil {
		v := *o.MarkedUpPrice
		c.MarkedUpPrice = &v
	}
	if o.FinalBid != nil {
		v := *o.FinalBid
		c.FinalBid = &v
	}
	if o.TierCreditAmount != nil {
		v := *o.TierCreditAmount
		c.TierCreditAmount = &v
	}
	if o.DeliveryAddress != nil {
		a := *o.DeliveryAddress
		c.DeliveryAddress = &a
	}
	if o.Tags != nil {
		c.Tags = append([]string(nil), o.Tags...)
	}
	return c
}

// Filter is the transport query for a full load.
type Filter struct {
	Buyer string
}
