package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrRejected = errors.New("order rejected")

	MinPrice = decimal.RequireFromString("0.01")
	MaxPrice = decimal.RequireFromString("100000")

	// Epoch is the date given to records that arrive without a usable one.
	Epoch = time.Unix(0, 0).UTC()

	syntheticNamespace = uuid.MustParse("6f1c3c1e-7d0a-4b8e-9f4c-2a1d5e7b9c30")
	validate           = validator.New(validator.WithRequiredStructEnabled())
)

const untitled = "Untitled order"

// RejectedError carries why a raw record could not become an Order.
type RejectedError struct {
	Reason  string
	Payload json.RawMessage
}

func (e *RejectedError) Error() string { return "order rejected: " + e.Reason }

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type rawOrder struct {
	MongoID           flexString       `json:"_id"`
	ID                flexString       `json:"id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Price             *decimal.Decimal `json:"price"`
	MarkedUpPrice     *decimal.Decimal `json:"markedUpPrice"`
	Seller            string           `json:"seller"`
	Buyer             string           `json:"buyer"`
	Date              flexString       `json:"date"`
	ShippingStatus    string           `json:"shippingStatus"`
	PaymentStatus     string           `json:"paymentStatus"`
	WasAuction        bool             `json:"wasAuction"`
	IsCustomRequest   bool             `json:"isCustomRequest"`
	DeliveryAddress   *DeliveryAddress `json:"deliveryAddress"`
	Tags              []string         `json:"tags"`
	FinalBid          *decimal.Decimal `json:"finalBid"`
	TierCreditAmount  *decimal.Decimal `json:"tierCreditAmount"`
	TrackingNumber    flexString       `json:"trackingNumber"`
	OriginalRequestID flexString       `json:"originalRequestId"`
	UpdatedAt         flexString       `json:"updatedAt"`
}

// Validate turns one untrusted record into a canonical Order.
// Defaults are applied before structural checks so records missing only cosmetic
// fields survive; sanitization runs last. It has no side effects.
func Validate(raw json.RawMessage) (Order, error) {
	reject := func(format string, args ...any) (Order, error) {
		return Order{}, &RejectedError{Reason: fmt.Sprintf(format, args...), Payload: raw}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return reject("payload is not an object")
	}
	var r rawOrder
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return reject("malformed payload: %v", err)
	}

	o := Order{
		Title:             strings.TrimSpace(r.Title),
		Description:       r.Description,
		Seller:            strings.TrimSpace(r.Seller),
		Buyer:             strings.TrimSpace(r.Buyer),
		ShippingStatus:    ParseShippingStatus(r.ShippingStatus),
		PaymentStatus:     ParsePaymentStatus(r.PaymentStatus),
		WasAuction:        r.WasAuction,
		IsCustomRequest:   r.IsCustomRequest,
		Tags:              r.Tags,
		TrackingNumber:    strings.TrimSpace(string(r.TrackingNumber)),
		OriginalRequestID: strings.TrimSpace(string(r.OriginalRequestID)),
	}
	if o.Title == "" {
		o.Title = untitled
	}
	o.Date = parseTime(string(r.Date))
	if o.Date.IsZero() {
		o.Date = Epoch
	}
	o.UpdatedAt = parseTime(string(r.UpdatedAt))

	o.ID = strings.TrimSpace(string(r.ID))
	if o.ID == "" {
		o.ID = strings.TrimSpace(string(r.MongoID))
	}
	if o.ID == "" {
		o.ID = synthesizeID(r)
		o.Synthetic = true
	}

	// structural
	if r.Price == nil {
		return reject("price is required")
	}
	if !r.Price.IsPositive() {
		return reject("price must be positive, got %s", r.Price.String())
	}
	o.Price = *r.Price
	if err := validate.Struct(o); err != nil {
		return reject("%s", describe(err))
	}

	// content
	o.Price = clamp(o.Price, MinPrice, MaxPrice)
	if r.MarkedUpPrice != nil {
		m := decimal.Max(clamp(*r.MarkedUpPrice, MinPrice, MaxPrice), o.Price)
		o.MarkedUpPrice = &m
	}
	if r.FinalBid != nil {
		v := clamp(*r.FinalBid, MinPrice, MaxPrice)
		o.FinalBid = &v
	}
	if r.TierCreditAmount != nil {
		v := clamp(*r.TierCreditAmount, decimal.Zero, MaxPrice)
		o.TierCreditAmount = &v
	}
	o.Title = SanitizeText(o.Title)
	if o.Title == "" {
		o.Title = untitled
	}
	o.Description = SanitizeText(o.Description)
	o.TrackingNumber = SanitizeText(o.TrackingNumber)
	o.Tags = sanitizeTags(o.Tags)
	if r.DeliveryAddress != nil {
		a := SanitizeAddress(*r.DeliveryAddress)
		o.DeliveryAddress = &a
	}
	return o, nil
}

// synthesizeID derives a stable id from content, so the same id-less payload
// maps to the same Order on every merge pass.
func synthesizeID(r rawOrder) string {
	price := ""
	if r.Price != nil {
		price = r.Price.String()
	}
	key := strings.Join([]string{
		strings.TrimSpace(r.Buyer),
		strings.TrimSpace(r.Seller),
		strings.TrimSpace(r.Title),
		strings.TrimSpace(string(r.Date)),
		price,
	}, "|")
	return "local-" + uuid.NewSHA1(syntheticNamespace, []byte(key)).String()
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// ValidateAddress enforces the two fields downstream shipping logic needs.
func ValidateAddress(a DeliveryAddress) error {
	if err := validate.Struct(a); err != nil {
		return errors.New(describe(err))
	}
	return nil
}
