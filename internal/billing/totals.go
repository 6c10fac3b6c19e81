// Package billing holds the invoice arithmetic and the invoice status machine.
// Nothing in here touches storage.
package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// MoneyPlaces is the precision every derived amount is rounded to.
const MoneyPlaces = 2

var (
	hundred        = decimal.NewFromInt(100)
	maxQuantity    = decimal.NewFromInt(999999)
	maxUnitPrice   = decimal.RequireFromString("9999999.99")
	maxDescription = 1000
)

// ItemInput is the caller-controlled part of a line item.
type ItemInput struct {
	Description  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	TaxRate      decimal.Decimal
	Discount     decimal.Decimal
	DiscountType DiscountType
}

// ItemAmounts are the derived amounts of one line item.
type ItemAmounts struct {
	Gross          decimal.Decimal
	DiscountAmount decimal.Decimal
	SubTotal       decimal.Decimal // after discount, before tax
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

type InvoiceTotals struct {
	SubTotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
}

// FieldErrors maps input field names to messages.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for f, m := range e {
		parts = append(parts, f+": "+m)
	}
	return "invalid line item: " + strings.Join(parts, "; ")
}

// Normalize fills defaults and rounds inputs to two places, so a line's
// gross amount never carries more than four.
func (in ItemInput) Normalize() ItemInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Quantity = in.Quantity.Round(MoneyPlaces)
	in.UnitPrice = in.UnitPrice.Round(MoneyPlaces)
	in.TaxRate = in.TaxRate.Round(MoneyPlaces)
	in.Discount = in.Discount.Round(MoneyPlaces)
	if in.DiscountType == "" {
		in.DiscountType = DiscountPercentage
	}
	return in
}

// Validate checks ranges. The returned error is FieldErrors or nil.
func (in ItemInput) Validate() error {
	errs := FieldErrors{}
	if in.Description == "" {
		errs["description"] = "is required"
	} else if len([]rune(in.Description)) > maxDescription {
		errs["description"] = fmt.Sprintf("must be at most %d characters", maxDescription)
	}
	if !in.Quantity.IsPositive() {
		errs["quantity"] = "must be greater than 0"
	} else if in.Quantity.GreaterThan(maxQuantity) {
		errs["quantity"] = "must not exceed 999999"
	}
	if in.UnitPrice.IsNegative() {
		errs["unit_price"] = "must be at least 0"
	} else if in.UnitPrice.GreaterThan(maxUnitPrice) {
		errs["unit_price"] = "must not exceed 9999999.99"
	}
	if !percentInRange(in.TaxRate) {
		errs["tax_rate"] = "must be between 0 and 100"
	}
	if !percentInRange(in.Discount) {
		errs["discount"] = "must be between 0 and 100"
	}
	switch in.DiscountType {
	case DiscountPercentage:
	case DiscountFixed:
		if _, ok := errs["discount"]; !ok && in.Discount.GreaterThan(in.Quantity.Mul(in.UnitPrice)) {
			errs["discount"] = "must not exceed the line amount"
		}
	default:
		errs["discount_type"] = "must be percentage or fixed"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func percentInRange(d decimal.Decimal) bool {
	return !d.IsNegative() && !d.GreaterThan(hundred)
}

// CalculateItem validates the input and derives discount, tax and total.
// The discount is applied first and tax is charged on the discounted base.
func CalculateItem(in ItemInput) (ItemAmounts, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return ItemAmounts{}, err
	}

	gross := in.Quantity.Mul(in.UnitPrice)
	discount := in.Discount
	if in.DiscountType == DiscountPercentage {
		discount = gross.Mul(in.Discount).Div(hundred)
	}
	discount = discount.Round(MoneyPlaces)

	net := gross.Sub(discount).Round(MoneyPlaces)
	tax := net.Mul(in.TaxRate).Div(hundred).Round(MoneyPlaces)

	return ItemAmounts{
		Gross:          gross,
		DiscountAmount: discount,
		SubTotal:       net,
		TaxAmount:      tax,
		Total:          net.Add(tax),
	}, nil
}

// CalculateInvoice folds item amounts into invoice totals. Without a global rate the
// sub-total is the sum of discounted item bases and the tax is the sum of item taxes.
// A non-nil globalTaxRate takes the sum of item totals as the sub-total and charges
// the single rate on it.
func CalculateInvoice(items []ItemAmounts, globalTaxRate *decimal.Decimal) InvoiceTotals {
	sub := decimal.Zero
	tax := decimal.Zero
	if globalTaxRate != nil {
		for _, it := range items {
			sub = sub.Add(it.Total)
		}
		tax = sub.Mul(*globalTaxRate).Div(hundred).Round(MoneyPlaces)
	} else {
		for _, it := range items {
			sub = sub.Add(it.SubTotal)
			tax = tax.Add(it.TaxAmount)
		}
	}
	return InvoiceTotals{
		SubTotal:    sub,
		TaxAmount:   tax,
		TotalAmount: sub.Add(tax),
	}
}

// ValidateTaxRate checks an optional invoice-level rate.
func ValidateTaxRate(rate *decimal.Decimal) bool {
	return rate == nil || percentInRange(*rate)
}

// Balance is what remains to be paid.
func Balance(total decimal.Decimal, payments []decimal.Decimal) (paid, balance decimal.Decimal) {
	paid = decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p)
	}
	return paid, total.Sub(paid)
}
