package domain

import "time"

// Product is one catalog entry. Stock lives on the variants; TotalStock is a
// denormalised aggregate that must equal the sum of the variant stocks after
// every successful mutation.
type Product struct {
	ID          string
	Title       string
	Description string
	Category    string
	Craft       string
	CoverImage  string
	Variants    []ProductVariant
	PriceBase   float64
	PriceNow    float64
	TotalStock  int
	Trending    bool
	Rating      float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductVariant is a purchasable colour/style option with its own gallery and
// stock counter.
type ProductVariant struct {
	ID     string
	Name   VariantName
	Images []string
	Stock  int
}

// PrimaryImage returns the first gallery image of the variant, if any.
func (v ProductVariant) PrimaryImage() string {
	if len(v.Images) == 0 {
		return ""
	}
	return v.Images[0]
}

// SumVariantStock recomputes the aggregate stock across variants.
func SumVariantStock(variants []ProductVariant) int {
	total := 0
	for _, variant := range variants {
		if variant.Stock > 0 {
			total += variant.Stock
		}
	}
	return total
}

// Address is the shipping destination recorded on an order. All fields are
// required at intake.
type Address struct {
	Street  string
	City    string
	State   string
	Country string
	Zipcode string
}

// Complete reports whether every address field is populated.
func (a Address) Complete() bool {
	return a.Street != "" && a.City != "" && a.State != "" && a.Country != "" && a.Zipcode != ""
}

// OrderLine references one product variant with the price snapshot taken at
// creation time. UnitPrice is immutable after intake.
type OrderLine struct {
	ProductID string
	Quantity  int
	UnitPrice float64
	Variant   VariantSnapshot
}

// VariantSnapshot is the display name and image copied onto an order line so
// later catalog edits do not retroactively change historical orders.
type VariantSnapshot struct {
	VariantID string
	Name      string
	Image     string
}

// Order is a customer order. TotalPrice must equal the rounded sum of
// UnitPrice x Quantity across lines after every line mutation, and an order
// with zero lines must not persist.
type Order struct {
	ID           string
	CustomerName string
	Email        string
	Phone        string
	Address      Address
	Lines        []OrderLine
	TotalPrice   float64
	Status       string
	IsPaid       bool
	IsDelivered  bool
	LineProgress map[string]int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderStatusPending is the only intake status; payment and delivery are
// tracked as independent flags rather than status transitions.
const OrderStatusPending = "pending"

// LineKeySeparator joins product id and variant name into a progress map key.
const LineKeySeparator = "|"

// LineKey derives the progress-map key for an order line.
func LineKey(productID, variantName string) string {
	return productID + LineKeySeparator + variantName
}
