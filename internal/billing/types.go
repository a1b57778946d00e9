package billing

// TargetType identifies what a discount application points at.
type TargetType string

const (
	TargetLineItem     TargetType = "LINE_ITEM"
	TargetShippingLine TargetType = "SHIPPING_LINE"
)

// TargetSelection narrows which targets of a type are affected.
type TargetSelection string

const (
	SelectionAll      TargetSelection = "ALL"
	SelectionEntitled TargetSelection = "ENTITLED"
)

// AllocationMethod describes how a discount is spread over its targets.
type AllocationMethod string

const (
	AllocationAcross AllocationMethod = "ACROSS"
	AllocationEach   AllocationMethod = "EACH"
)

// ValueKind discriminates the two discount value variants.
type ValueKind int

const (
	// ValuePercentage means Amount is a percentage in [0,100].
	ValuePercentage ValueKind = iota
	// ValueFixedAmount means Amount is a tax-inclusive monetary amount.
	ValueFixedAmount
)

// DiscountValue is the tagged union carried by a discount application. The
// two variants are mutually exclusive and callers switch exhaustively on Kind.
type DiscountValue struct {
	Kind   ValueKind
	Amount float64
}

// DiscountApplication mirrors the platform's flattened discount record.
type DiscountApplication struct {
	TargetType       TargetType
	TargetSelection  TargetSelection
	AllocationMethod AllocationMethod
	Value            DiscountValue
}

// TaxLine carries a single tax rate attached to a line item. RatePercent is
// normalized on read: platform payloads deliver either a fraction (0.23) or a
// percentage (23).
type TaxLine struct {
	RatePercent float64
}

// LineItem is a product row of the platform order.
type LineItem struct {
	Title        string
	ProductID    string
	VariantID    string
	Quantity     int
	UnitPrice    float64 // tax-inclusive, platform currency
	PriceExclTax float64 // explicit tax-exclusive unit price when the platform provides one
	Taxable      bool
	TaxLines     []TaxLine
	// DiscountAllocations are tax-inclusive amounts already attributed to
	// this line by the platform.
	DiscountAllocations []float64
}

// ShippingLine is the optional shipping row of the order.
type ShippingLine struct {
	Title        string
	Price        float64 // tax-inclusive
	PriceExclTax float64
}

// Order is the normalized input consumed by the engine. TotalValue is the
// platform's authoritative tax-inclusive grand total and is the figure the
// computed invoice must reconcile to.
type Order struct {
	OrderNumber          string
	Currency             string
	TotalValue           float64
	TotalDiscounts       float64 // tax-inclusive discount total reported by the platform
	Country              string
	LineItems            []LineItem
	DiscountApplications []DiscountApplication
	Shipping             *ShippingLine
}

// ShippingKey is the sentinel DiscountMap key for the shipping line.
const ShippingKey = "shipping"

// DiscountMap maps a product id (or ShippingKey) to a discount percentage in
// [0,100]. It is rebuilt for every invoice computation and never persisted.
type DiscountMap map[string]float64

// VAT tiers of the invoicing service.
const (
	TaxTierNormal       = 1 // 23%
	TaxTierIntermediate = 2 // 13%
	TaxTierReduced      = 3 // 6%
	TaxTierExempt       = 4 // 0%
)

// ExemptionCodeM16 is the legal exemption reason attached to 0% VAT lines.
const ExemptionCodeM16 = "M16"

// LineType distinguishes product rows from the shipping row.
type LineType string

const (
	LineTypeProduct  LineType = "product"
	LineTypeShipping LineType = "shipping"
)

// InvoiceLine is one row of the invoicing API payload. Lines are immutable
// once appended to an invoice.
type InvoiceLine struct {
	ProductID       int64 // invoicing-service product identifier
	Description     string
	Quantity        int
	Price           float64 // tax-exclusive, rounded to 3 decimals
	TaxID           int
	DiscountPercent float64 // rounded to 4 decimals
	ExemptionCode   string
	Type            LineType
}

// ProductMapping resolves platform identifiers to invoicing-service product
// ids. It is fully populated by the caller before computation starts.
type ProductMapping struct {
	Products map[string]int64
	// ShippingProductID is the invoicing-service product used for shipping
	// lines. Zero means no mapping exists and shipping is not invoiced.
	ShippingProductID int64
}

// Totals is the immutable accumulation produced by the line builder and
// consumed by the reconciliation corrector.
type Totals struct {
	BaseExclTax     float64 // post-discount tax-exclusive base
	BaseVAT         float64 // post-discount VAT
	DiscountExclTax float64 // tax-exclusive value removed by per-line discounts
}

// Invoice is the engine output: ordered lines plus the top-level discount
// percentage, ready to serialize as the invoicing API payload.
type Invoice struct {
	OrderNumber string
	Currency    string
	Lines       []InvoiceLine
	// Discount is the invoice-level discount percentage, 4 decimals.
	Discount float64
	Totals   Totals
	// Corrected reports that the reconciliation corrector had to adjust the
	// discount to absorb rounding drift; Divergence is the pre-correction gap.
	Corrected  bool
	Divergence float64
}

// defaultCountry is the destination that carries an implicit VAT default.
const defaultCountry = "PT"

// defaultVATRate applies to taxable items shipped to defaultCountry when the
// platform sends no tax line.
const defaultVATRate = 23.0

// TaxRatePercent derives the VAT percentage for the line. Explicit tax lines
// win; fractions are normalized to percentages. Without tax lines the country
// default applies to taxable items and non-taxable items are 0.
func (li LineItem) TaxRatePercent(country string) float64 {
	if len(li.TaxLines) > 0 {
		rate := li.TaxLines[0].RatePercent
		if rate > 0 && rate < 1 {
			rate *= 100
		}
		if rate < 0 {
			return 0
		}
		return rate
	}
	if !li.Taxable {
		return 0
	}
	if country == defaultCountry {
		return defaultVATRate
	}
	return 0
}

// UnitPriceExclTax returns the tax-exclusive unit price, preferring the
// explicit platform figure over dividing out the VAT.
func (li LineItem) UnitPriceExclTax(country string) float64 {
	if li.PriceExclTax > 0 {
		return li.PriceExclTax
	}
	rate := li.TaxRatePercent(country)
	return li.UnitPrice / (1 + rate/100)
}

// TaxTierForRate maps a VAT percentage to the invoicing-service tier id.
// Rates that do not match a known tier fall back to the normal tier.
func TaxTierForRate(rate float64) int {
	switch int(Round2(rate)) {
	case 23:
		return TaxTierNormal
	case 13:
		return TaxTierIntermediate
	case 6:
		return TaxTierReduced
	case 0:
		return TaxTierExempt
	default:
		return TaxTierNormal
	}
}

// RateForTaxTier is the inverse of TaxTierForRate.
func RateForTaxTier(tier int) float64 {
	switch tier {
	case TaxTierIntermediate:
		return 13
	case TaxTierReduced:
		return 6
	case TaxTierExempt:
		return 0
	default:
		return 23
	}
}
