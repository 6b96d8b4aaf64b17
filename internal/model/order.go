package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one line of the cart snapshot, carried through verbatim.
type CartLine struct {
	PackageID int  `json:"package_id"`
	Quantity  int  `json:"quantity"`
	IsUpsell  bool `json:"is_upsell"`
}

// CartSnapshot is the cart state captured at submission time.
type CartSnapshot struct {
	Lines       []CartLine        `json:"lines"`
	Vouchers    []string          `json:"vouchers,omitempty"`
	Attribution map[string]string `json:"attribution,omitempty"`
}

// Address is the API's address shape.
type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"line4"`
	State       string `json:"state,omitempty"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// PaymentDetail names the API payment method and, for cards, the token.
type PaymentDetail struct {
	PaymentMethod string `json:"payment_method"`
	CardToken     string `json:"card_token,omitempty"`
}

// User is the purchasing customer.
type User struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	PhoneNumber      string `json:"phone_number,omitempty"`
	AcceptsMarketing bool   `json:"accepts_marketing"`
}

// OrderPayload is the normalized submission object. It is built once per
// attempt and never mutated afterwards.
type OrderPayload struct {
	Lines                 []CartLine        `json:"lines"`
	ShippingAddress       Address           `json:"shipping_address"`
	BillingAddress        *Address          `json:"billing_address,omitempty"`
	BillingSameAsShipping bool              `json:"billing_same_as_shipping_address"`
	PaymentDetail         PaymentDetail     `json:"payment_detail"`
	User                  User              `json:"user"`
	Vouchers              []string          `json:"vouchers"`
	Attribution           map[string]string `json:"attribution,omitempty"`
	Currency              string            `json:"currency"`
	SuccessURL            string            `json:"success_url"`
	FailureURL            string            `json:"payment_failed_url"`
}

// Order is the commerce API's answer to a successful submission.
type Order struct {
	RefID              string          `json:"ref_id"`
	Number             int64           `json:"number"`
	TotalInclTax       decimal.Decimal `json:"total_incl_tax"`
	Currency           string          `json:"currency,omitempty"`
	PaymentCompleteURL string          `json:"payment_complete_url,omitempty"`
	OrderStatusURL     string          `json:"order_status_url,omitempty"`
}

// ProspectCartRequest is the partial contact info sent when creating a
// prospect cart.
type ProspectCartRequest struct {
	Lines       []CartLine        `json:"lines"`
	User        User              `json:"user"`
	Attribution map[string]string `json:"attribution,omitempty"`
	Currency    string            `json:"currency,omitempty"`
}

// ProspectCart is the provisional cart stored for recovery.
type ProspectCart struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is no longer usable at now.
func (p ProspectCart) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// SubmissionAttempt lives for exactly one call to the orchestrator's submit.
type SubmissionAttempt struct {
	ID            string
	StartedAt     time.Time
	PaymentMethod PaymentMethod
	IsExpress     bool
}

// CompletedOrder is the "last completed order" record kept in session
// storage to detect return navigation after a purchase.
type CompletedOrder struct {
	RefID       string    `json:"ref_id"`
	Number      int64     `json:"number"`
	CompletedAt time.Time `json:"completed_at"`
}
