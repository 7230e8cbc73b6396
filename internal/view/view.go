// Package view derives what the orders page shows from the canonical set.
// Everything here is a pure function; inputs are never modified.
package view

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/pantypost/order-sync/internal/orders"
)

type Criteria struct {
	Status      orders.ShippingStatus // empty means any
	Query       string
	AuctionOnly bool
	CustomOnly  bool
}

func Filter(list []orders.Order, c Criteria) []orders.Order {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(c.Query))

	out := make([]orders.Order, 0, len(list))
	for _, o := range list {
		if c.Status != "" && o.ShippingStatus != c.Status {
			continue
		}
		if c.AuctionOnly && !o.WasAuction {
			continue
		}
		if c.CustomOnly && !o.IsCustomRequest {
			continue
		}
		if q != "" && !matches(fold, o, q) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func matches(fold cases.Caser, o orders.Order, q string) bool {
	fields := append([]string{o.Title, o.Description, o.Seller, o.ID, o.TrackingNumber}, o.Tags...)
	for _, f := range fields {
		if strings.Contains(fold.String(f), q) {
			return true
		}
	}
	return false
}

type SortKey string

const (
	SortDate   SortKey = "date"
	SortPrice  SortKey = "price"
	SortStatus SortKey = "status"
	SortTitle  SortKey = "title"
)

func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(s)); k {
	case SortPrice, SortStatus, SortTitle:
		return k
	}
	return SortDate
}

// Sort returns a stably sorted copy.
func Sort(list []orders.Order, key SortKey, desc bool) []orders.Order {
	out := slices.Clone(list)
	cmp := func(a, b orders.Order) int {
		switch key {
		case SortPrice:
			return a.EffectivePrice().Cmp(b.EffectivePrice())
		case SortStatus:
			return a.ShippingStatus.Rank() - b.ShippingStatus.Rank()
		case SortTitle:
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		default:
			return a.Date.Compare(b.Date)
		}
	}
	slices.SortStableFunc(out, func(a, b orders.Order) int {
		if desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
	return out
}

type Stats struct {
	Total           int                           `json:"total"`
	Active          int                           `json:"active"`
	ByStatus        map[orders.ShippingStatus]int `json:"byStatus"`
	TotalSpent      decimal.Decimal               `json:"totalSpent"`
	Auctions        int                           `json:"auctions"`
	Custom          int                           `json:"custom"`
	AwaitingAddress int                           `json:"awaitingAddress"`
}

func Summarize(list []orders.Order) Stats {
	s := Stats{ByStatus: map[orders.ShippingStatus]int{}, TotalSpent: decimal.Zero}
	for _, o := range list {
		s.Total++
		s.ByStatus[o.ShippingStatus]++
		if o.ShippingStatus != orders.ShippingCancelled {
			s.TotalSpent = s.TotalSpent.Add(o.EffectivePrice())
		}
		if o.ShippingStatus != orders.ShippingDelivered && o.ShippingStatus != orders.ShippingCancelled {
			s.Active++
		}
		if o.WasAuction {
			s.Auctions++
		}
		if o.IsCustomRequest {
			s.Custom++
		}
		if !o.HasAddress() && (o.ShippingStatus == orders.ShippingPending || o.ShippingStatus == orders.ShippingProcessing) {
			s.AwaitingAddress++
		}
	}
	return s
}
