package models

import "github.com/shopspring/decimal"

type IntakeItem struct {
	ItemType     string `json:"itemType" validate:"required"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Quantity     int    `json:"quantity" validate:"gte=1"`
	Description  string `json:"description" validate:"required"`
	NeedsQuote   bool   `json:"needsQuote"`
}

// IntakeForm is one intake batch: a customer dropping off one or more items.
type IntakeForm struct {
	CustomerName       string       `json:"customerName" validate:"required"`
	CustomerPhone      string       `json:"customerPhone" validate:"required"`
	CustomerEmail      string       `json:"customerEmail,omitempty" validate:"omitempty,email"`
	Company            string       `json:"company,omitempty"`
	Urgency            string       `json:"urgency,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	ExpectedCompletion string       `json:"expectedCompletion,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Items              []IntakeItem `json:"items" validate:"required,min=1,dive"`
}

// DetailsUpdate carries the editable fields of an order. Nil means "leave unchanged".
type DetailsUpdate struct {
	SerialNumber       *string          `json:"serialNumber,omitempty"`
	ExpectedCompletion *string          `json:"expectedCompletion,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Parts              *[]Part          `json:"parts,omitempty" validate:"omitempty,dive"`
	Labor              *[]Labor         `json:"labor,omitempty" validate:"omitempty,dive"`
	TaxRate            *decimal.Decimal `json:"taxRate,omitempty" validate:"omitempty,gte=0"`
}

func (u DetailsUpdate) TouchesFinancials() bool {
	return u.Parts != nil || u.Labor != nil || u.TaxRate != nil
}
