package shopify

import "encoding/json"

// Money is the nested amount object used by Shopify money-set fields.
type Money struct {
	Amount       json.Number `json:"amount"`
	CurrencyCode string      `json:"currency_code"`
}

// MoneySet carries an amount in shop and presentment currencies.
type MoneySet struct {
	ShopMoney Money `json:"shop_money"`
}

// TaxLine is a tax applied to a line item. Rate is a fraction (0.23 for 23%).
type TaxLine struct {
	Title string      `json:"title"`
	Rate  float64     `json:"rate"`
	Price json.Number `json:"price"`
}

// DiscountAllocation is the portion of a discount attributed to one line.
type DiscountAllocation struct {
	Amount                   json.Number `json:"amount"`
	DiscountApplicationIndex int         `json:"discount_application_index"`
}

// DiscountApplication is the order-level record of an applied discount.
type DiscountApplication struct {
	Type             string      `json:"type"`
	TargetType       string      `json:"target_type"`
	TargetSelection  string      `json:"target_selection"`
	AllocationMethod string      `json:"allocation_method"`
	ValueType        string      `json:"value_type"`
	Value            json.Number `json:"value"`
	Code             string      `json:"code,omitempty"`
	Title            string      `json:"title,omitempty"`
}

// LineItem is a product row of a Shopify order.
type LineItem struct {
	ID                  int64                `json:"id"`
	Title               string               `json:"title"`
	ProductID           int64                `json:"product_id"`
	VariantID           int64                `json:"variant_id"`
	SKU                 string               `json:"sku"`
	Quantity            int                  `json:"quantity"`
	Price               json.Number          `json:"price"`
	PreTaxPrice         json.Number          `json:"pre_tax_price"`
	Taxable             bool                 `json:"taxable"`
	TaxLines            []TaxLine            `json:"tax_lines"`
	DiscountAllocations []DiscountAllocation `json:"discount_allocations"`
}

// ShippingLine is a shipping row of a Shopify order.
type ShippingLine struct {
	Title       string      `json:"title"`
	Price       json.Number `json:"price"`
	PreTaxPrice json.Number `json:"pre_tax_price"`
	TaxLines    []TaxLine   `json:"tax_lines"`
}

// Address carries the subset of the Shopify address we need.
type Address struct {
	CountryCode string `json:"country_code"`
}

// Customer identifies the buyer on an order.
type Customer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Order mirrors the Shopify Admin REST order resource, limited to the fields
// the invoice pipeline consumes.
type Order struct {
	ID                       int64                 `json:"id"`
	Name                     string                `json:"name"`
	Currency                 string                `json:"currency"`
	FinancialStatus          string                `json:"financial_status"`
	TaxesIncluded            bool                  `json:"taxes_included"`
	TotalPrice               json.Number           `json:"total_price"`
	TotalDiscounts           json.Number           `json:"total_discounts"`
	CurrentTotalDiscountsSet *MoneySet             `json:"current_total_discounts_set"`
	BillingAddress           *Address              `json:"billing_address"`
	ShippingAddress          *Address              `json:"shipping_address"`
	Customer                 *Customer             `json:"customer"`
	DiscountApplications     []DiscountApplication `json:"discount_applications"`
	LineItems                []LineItem            `json:"line_items"`
	ShippingLines            []ShippingLine        `json:"shipping_lines"`
}
