package billing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func TestCalculateItemPercentageDiscount(t *testing.T) {
	got, err := CalculateItem(ItemInput{
		Description:  "Consulting",
		Quantity:     d("2"),
		UnitPrice:    d("100"),
		Discount:     d("10"),
		DiscountType: DiscountPercentage,
		TaxRate:      d("10"),
	})
	require.NoError(t, err)

	assertDec(t, "20", got.DiscountAmount, "discount_amount")
	assertDec(t, "180", got.SubTotal, "sub_total")
	assertDec(t, "18", got.TaxAmount, "tax_amount")
	assertDec(t, "198", got.Total, "total")
}

func TestCalculateItemFixedDiscount(t *testing.T) {
	got, err := CalculateItem(ItemInput{
		Description:  "Hosting",
		Quantity:     d("3"),
		UnitPrice:    d("50"),
		Discount:     d("15"),
		DiscountType: DiscountFixed,
		TaxRate:      d("20"),
	})
	require.NoError(t, err)

	assertDec(t, "15", got.DiscountAmount, "discount_amount")
	assertDec(t, "135", got.SubTotal, "sub_total")
	assertDec(t, "27", got.TaxAmount, "tax_amount")
	assertDec(t, "162", got.Total, "total")
}

func TestCalculateItemDefaultsToPercentage(t *testing.T) {
	got, err := CalculateItem(ItemInput{Description: "x", Quantity: d("1"), UnitPrice: d("80"), Discount: d("25")})
	require.NoError(t, err)
	assertDec(t, "20", got.DiscountAmount, "discount_amount")
	assertDec(t, "60", got.Total, "total")
}

func TestCalculateItemRoundsToCents(t *testing.T) {
	got, err := CalculateItem(ItemInput{
		Description: "Odd",
		Quantity:    d("3"),
		UnitPrice:   d("3.33"),
		Discount:    d("12.5"),
		TaxRate:     d("7"),
	})
	require.NoError(t, err)

	// gross 9.99, discount 1.24875 -> 1.25, net 8.74, tax 0.6118 -> 0.61
	assertDec(t, "1.25", got.DiscountAmount, "discount_amount")
	assertDec(t, "8.74", got.SubTotal, "sub_total")
	assertDec(t, "0.61", got.TaxAmount, "tax_amount")
	assertDec(t, "9.35", got.Total, "total")
}

func TestCalculateItemValidation(t *testing.T) {
	cases := []struct {
		name  string
		in    ItemInput
		field string
	}{
		{"missing description", ItemInput{Quantity: d("1"), UnitPrice: d("1")}, "description"},
		{"zero quantity", ItemInput{Description: "x", Quantity: d("0"), UnitPrice: d("1")}, "quantity"},
		{"huge quantity", ItemInput{Description: "x", Quantity: d("1000000"), UnitPrice: d("1")}, "quantity"},
		{"negative price", ItemInput{Description: "x", Quantity: d("1"), UnitPrice: d("-1")}, "unit_price"},
		{"tax over 100", ItemInput{Description: "x", Quantity: d("1"), UnitPrice: d("1"), TaxRate: d("100.01")}, "tax_rate"},
		{"negative discount", ItemInput{Description: "x", Quantity: d("1"), UnitPrice: d("1"), Discount: d("-5")}, "discount"},
		{"fixed discount above line", ItemInput{Description: "x", Quantity: d("1"), UnitPrice: d("10"), Discount: d("11"), DiscountType: DiscountFixed}, "discount"},
		{"unknown discount type", ItemInput{Description: "x", Quantity: d("1"), UnitPrice: d("1"), DiscountType: "bogus"}, "discount_type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CalculateItem(tc.in)
			var fe FieldErrors
			require.ErrorAs(t, err, &fe)
			assert.Contains(t, fe, tc.field)
		})
	}
}

func TestCalculateItemTotalIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		in := ItemInput{
			Description: "p",
			Quantity:    decimal.New(int64(rng.Intn(100000)+1), -2),
			UnitPrice:   decimal.New(int64(rng.Intn(1000000)), -2),
			TaxRate:     decimal.New(int64(rng.Intn(10001)), -2),
			Discount:    decimal.New(int64(rng.Intn(10001)), -2),
		}
		if rng.Intn(2) == 0 {
			in.DiscountType = DiscountFixed
			if in.Discount.GreaterThan(in.Quantity.Mul(in.UnitPrice)) {
				in.Discount = decimal.Zero
			}
		}

		got, err := CalculateItem(in)
		require.NoError(t, err, "input %+v", in)

		want := in.Quantity.Mul(in.UnitPrice).Sub(got.DiscountAmount).Round(MoneyPlaces).Add(got.TaxAmount)
		require.True(t, want.Equal(got.Total), "total identity broken for %+v", in)
		require.True(t, got.Total.Equal(got.SubTotal.Add(got.TaxAmount)))

		again, err := CalculateItem(in)
		require.NoError(t, err)
		require.Equal(t, got, again)
	}
}

func TestCalculateInvoiceSumsItems(t *testing.T) {
	a, err := CalculateItem(ItemInput{Description: "a", Quantity: d("2"), UnitPrice: d("100"), Discount: d("10"), TaxRate: d("10")})
	require.NoError(t, err)
	b, err := CalculateItem(ItemInput{Description: "b", Quantity: d("1"), UnitPrice: d("50")})
	require.NoError(t, err)

	totals := CalculateInvoice([]ItemAmounts{a, b}, nil)
	assertDec(t, "230", totals.SubTotal, "sub_total")
	assertDec(t, "18", totals.TaxAmount, "tax_amount")
	assertDec(t, "248", totals.TotalAmount, "total_amount")
	assert.True(t, totals.TotalAmount.Equal(a.Total.Add(b.Total)))
}

func TestCalculateInvoiceGlobalRateOverrides(t *testing.T) {
	a, err := CalculateItem(ItemInput{Description: "a", Quantity: d("2"), UnitPrice: d("100"), Discount: d("10"), TaxRate: d("10")})
	require.NoError(t, err)
	rate := d("5")

	totals := CalculateInvoice([]ItemAmounts{a}, &rate)
	assertDec(t, "198", totals.SubTotal, "sub_total")
	assertDec(t, "9.90", totals.TaxAmount, "tax_amount")
	assertDec(t, "207.90", totals.TotalAmount, "total_amount")
	assert.True(t, totals.TotalAmount.Equal(totals.SubTotal.Add(totals.TaxAmount)))
}

func TestCalculateItemRoundsFractionalQuantity(t *testing.T) {
	got, err := CalculateItem(ItemInput{Description: "Hours", Quantity: d("1.5"), UnitPrice: d("19.99")})
	require.NoError(t, err)

	// 1.5 * 19.99 = 29.985
	assertDec(t, "29.99", got.SubTotal, "sub_total")
	assertDec(t, "29.99", got.Total, "total")
	assert.True(t, got.Total.Equal(got.Total.Round(MoneyPlaces)))

	totals := CalculateInvoice([]ItemAmounts{got}, nil)
	assertDec(t, "29.99", totals.TotalAmount, "total_amount")
}

func TestCalculateInvoiceEmptyAndIdempotent(t *testing.T) {
	zero := CalculateInvoice(nil, nil)
	assert.True(t, zero.SubTotal.IsZero())
	assert.True(t, zero.TaxAmount.IsZero())
	assert.True(t, zero.TotalAmount.IsZero())

	rate := d("5")
	zero = CalculateInvoice([]ItemAmounts{}, &rate)
	assert.True(t, zero.TotalAmount.IsZero())

	a, err := CalculateItem(ItemInput{Description: "a", Quantity: d("1.5"), UnitPrice: d("19.99"), TaxRate: d("8.25")})
	require.NoError(t, err)
	first := CalculateInvoice([]ItemAmounts{a}, nil)
	second := CalculateInvoice([]ItemAmounts{a}, nil)
	assert.Equal(t, first, second)
}

func TestBalance(t *testing.T) {
	paid, balance := Balance(d("198"), []decimal.Decimal{d("100"), d("48.5")})
	assertDec(t, "148.5", paid, "paid")
	assertDec(t, "49.5", balance, "balance")
}
