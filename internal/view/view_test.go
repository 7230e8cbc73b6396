package view

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantypost/order-sync/internal/orders"
)

func fixture() []orders.Order {
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }
	markup := decimal.RequireFromString("33")
	return []orders.Order{
		{ID: "a", Title: "Silk Set", Price: decimal.NewFromInt(30), MarkedUpPrice: &markup, Date: day(3),
			ShippingStatus: orders.ShippingShipped, WasAuction: true, Tags: []string{"silk"}},
		{ID: "b", Title: "cotton socks", Price: decimal.NewFromInt(10), Date: day(1),
			ShippingStatus: orders.ShippingPending, IsCustomRequest: true},
		{ID: "c", Title: "Lace", Price: decimal.NewFromInt(20), Date: day(2),
			ShippingStatus: orders.ShippingCancelled},
		{ID: "d", Title: "Straße Kit", Price: decimal.NewFromInt(5), Date: day(2),
			ShippingStatus: orders.ShippingDelivered,
			DeliveryAddress: &orders.DeliveryAddress{FullName: "A", AddressLine1: "B"}},
	}
}

func idsOf(list []orders.Order) []string {
	out := []string{}
	for _, o := range list {
		out = append(out, o.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	list := fixture()
	assert.Equal(t, []string{"a"}, idsOf(Filter(list, Criteria{Status: orders.ShippingShipped})))
	assert.Equal(t, []string{"a"}, idsOf(Filter(list, Criteria{AuctionOnly: true})))
	assert.Equal(t, []string{"b"}, idsOf(Filter(list, Criteria{CustomOnly: true})))
	assert.Equal(t, []string{"a"}, idsOf(Filter(list, Criteria{Query: "SILK"})))
	assert.Equal(t, []string{"d"}, idsOf(Filter(list, Criteria{Query: "strasse"})), "case folding")
	assert.Len(t, Filter(list, Criteria{}), 4)
}

func TestSort(t *testing.T) {
	list := fixture()
	assert.Equal(t, []string{"a", "c", "d", "b"}, idsOf(Sort(list, SortDate, true)))
	assert.Equal(t, []string{"b", "c", "d", "a"}, idsOf(Sort(list, SortDate, false)), "stable for equal dates")
	assert.Equal(t, []string{"d", "b", "c", "a"}, idsOf(Sort(list, SortPrice, false)))
	assert.Equal(t, []string{"c", "d", "a", "b"}, idsOf(Sort(list, SortStatus, true)))
	assert.Equal(t, []string{"b", "c", "a", "d"}, idsOf(Sort(list, SortTitle, false)))

	// input untouched
	assert.Equal(t, []string{"a", "b", "c", "d"}, idsOf(list))
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortPrice, ParseSortKey("PRICE"))
	assert.Equal(t, SortDate, ParseSortKey("whatever"))
}

func TestSummarize(t *testing.T) {
	s := Summarize(fixture())
	require.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Active)
	assert.Equal(t, 1, s.ByStatus[orders.ShippingCancelled])
	assert.True(t, s.TotalSpent.Equal(decimal.NewFromInt(48)), s.TotalSpent.String())
	assert.Equal(t, 1, s.Auctions)
	assert.Equal(t, 1, s.Custom)
	assert.Equal(t, 1, s.AwaitingAddress)
}
