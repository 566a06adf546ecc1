package currency

import (
	"math"
	"strings"

	"github.com/formgate/formgate/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("currency",
	fx.Provide(NewConverter),
)

// Converter translates between major-unit decimal amounts and the
// processor's integer minor-unit representation.
type Converter struct {
	table func() config.CurrencyTable
}

func NewConverter(holder *config.CurrencyTableHolder) *Converter {
	return &Converter{table: holder.Get}
}

// NewStaticConverter builds a converter over a fixed table.
func NewStaticConverter(table config.CurrencyTable) *Converter {
	return &Converter{table: func() config.CurrencyTable { return table }}
}

// ToMinorUnits converts a major-unit amount to minor units for a currency.
// The exponent comes from the active currency table, so zero-decimal
// currencies multiply by 1, not 100.
func (c *Converter) ToMinorUnits(amount float64, code string) int64 {
	factor := c.factor(code)
	return int64(math.Round(amount * float64(factor)))
}

// FromMinorUnits is the inverse of ToMinorUnits.
func (c *Converter) FromMinorUnits(minor int64, code string) float64 {
	factor := c.factor(code)
	return float64(minor) / float64(factor)
}

// Validate reports whether an externally asserted amount/currency pair
// matches what the order expects. Currency comparison is case-insensitive.
func (c *Converter) Validate(expectedMinor, actualMinor int64, expectedCurrency, actualCurrency string) bool {
	if !strings.EqualFold(strings.TrimSpace(expectedCurrency), strings.TrimSpace(actualCurrency)) {
		return false
	}
	return expectedMinor == actualMinor
}

func (c *Converter) factor(code string) int64 {
	exp := c.table().Exponent(code)
	factor := int64(1)
	for i := 0; i < exp; i++ {
		factor *= 10
	}
	return factor
}
