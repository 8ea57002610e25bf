package order

import (
	"github.com/shopspring/decimal"

	"ms-service-orders/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ComputeFinancials derives every total from the line items. Warranty lines count as zero.
func ComputeFinancials(parts []models.Part, labor []models.Labor, taxRate decimal.Decimal) models.Financials {
	partsTotal := decimal.Zero
	for _, p := range parts {
		if p.IsWarranty {
			continue
		}
		partsTotal = partsTotal.Add(decimal.NewFromInt(int64(p.Quantity)).Mul(p.Price))
	}

	laborTotal := decimal.Zero
	for _, l := range labor {
		if l.IsWarranty {
			continue
		}
		laborTotal = laborTotal.Add(l.Hours.Mul(l.Rate))
	}

	subtotal := partsTotal.Add(laborTotal)
	tax := subtotal.Mul(taxRate).Div(hundred)

	return models.Financials{
		PartsTotal: partsTotal,
		LaborTotal: laborTotal,
		Subtotal:   subtotal,
		TaxRate:    taxRate,
		Tax:        tax,
		Total:      subtotal.Add(tax),
	}
}

// normalizeParts copies parts and zeroes the price of warranty lines.
func normalizeParts(parts []models.Part) []models.Part {
	out := make([]models.Part, len(parts))
	for i, p := range parts {
		if p.IsWarranty {
			p.Price = decimal.Zero
		}
		out[i] = p
	}
	return out
}

func normalizeLabor(labor []models.Labor) []models.Labor {
	out := make([]models.Labor, len(labor))
	for i, l := range labor {
		if l.IsWarranty {
			l.Rate = decimal.Zero
		}
		out[i] = l
	}
	return out
}
