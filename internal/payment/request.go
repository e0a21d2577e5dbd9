package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Network identifies a card network accepted by the merchant.
type Network string

const (
	Visa       Network = "visa"
	MasterCard Network = "masterCard"
	Amex       Network = "amex"
)

// Capability is a merchant processing capability.
type Capability string

// ThreeDSecure enables 3-D Secure authentication.
const ThreeDSecure Capability = "3DS"

// ContactField names a contact detail the payment sheet must collect.
type ContactField string

const (
	PostalAddress ContactField = "postalAddress"
	Name          ContactField = "name"
	Phone         ContactField = "phoneNumber"
	Email         ContactField = "emailAddress"
)

// SummaryItem is one labelled line of the payment sheet.
type SummaryItem struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Request describes a payment authorization.
type Request struct {
	MerchantID             string         `json:"merchantId"`
	SupportedNetworks      []Network      `json:"supportedNetworks"`
	Capabilities           []Capability   `json:"capabilities"`
	CountryCode            string         `json:"countryCode"`
	CurrencyCode           string         `json:"currencyCode"`
	SummaryItems           []SummaryItem  `json:"summaryItems"`
	RequiredBillingFields  []ContactField `json:"requiredBillingFields,omitempty"`
	RequiredShippingFields []ContactField `json:"requiredShippingFields,omitempty"`
}

// Total returns the amount of the final summary item, the figure the
// customer authorizes.
func (r Request) Total() decimal.Decimal {
	if len(r.SummaryItems) == 0 {
		return decimal.Zero
	}
	return r.SummaryItems[len(r.SummaryItems)-1].Amount
}

// Merchant holds the static merchant identity used to shape requests.
type Merchant struct {
	ID           string
	DisplayName  string
	CountryCode  string
	CurrencyCode string
	Networks     []Network
	Capabilities []Capability
}

// DefaultMerchant returns the demo store identity.
func DefaultMerchant() Merchant {
	return Merchant{
		ID:           "merchant.com.yourcompany.swiftpaydemo",
		DisplayName:  "SwiftPay Demo Store",
		CountryCode:  "US",
		CurrencyCode: "USD",
		Networks:     []Network{Visa, MasterCard, Amex},
		Capabilities: []Capability{ThreeDSecure},
	}
}

// BuildRequest shapes a request whose summary reads Subtotal, Tax and a final
// line labelled with the merchant name carrying subtotal + tax. The parts are
// expected to be rounded already; their sum is not rounded again.
func (m Merchant) BuildRequest(subtotal, tax decimal.Decimal) Request {
	label := strings.TrimSpace(m.DisplayName)
	if label == "" {
		label = "Total"
	}
	return Request{
		MerchantID:        m.ID,
		SupportedNetworks: append([]Network(nil), m.Networks...),
		Capabilities:      append([]Capability(nil), m.Capabilities...),
		CountryCode:       m.CountryCode,
		CurrencyCode:      m.CurrencyCode,
		SummaryItems: []SummaryItem{
			{Label: "Subtotal", Amount: subtotal},
			{Label: "Tax", Amount: tax},
			{Label: label, Amount: subtotal.Add(tax)},
		},
	}
}

// ConfigureForPayLater returns req with the contact fields installment
// financing needs when eligible is true; otherwise req is returned unchanged.
func ConfigureForPayLater(req Request, eligible bool) Request {
	if !eligible {
		return req
	}
	req.RequiredBillingFields = []ContactField{PostalAddress, Name, Phone, Email}
	req.RequiredShippingFields = []ContactField{PostalAddress, Name, Phone, Email}
	return req
}
