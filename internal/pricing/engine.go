// Package pricing computes landed retail prices from source cost, domestic
// handling and international shipping.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/maltedev/storefront-importer/internal/models"
)

var cubicCmPerCbm = decimal.NewFromInt(1_000_000)

// Rates is the pricing part of the configuration bundle.
type Rates struct {
	MarkupFactor  float64
	RoundingStep  float64
	AirRatePerKg  float64
	SeaRatePerCbm float64
	SeaMinimumFee float64
	PaddingCm     float64
}

func DefaultRates() Rates {
	return Rates{
		MarkupFactor:  1.20,
		RoundingStep:  250,
		AirRatePerKg:  12000,
		SeaRatePerCbm: 182000,
		SeaMinimumFee: 500,
		PaddingCm:     5,
	}
}

// Input holds the per-item values fed to the engine. Method is optional.
type Input struct {
	BasePrice   decimal.Decimal
	DomesticFee decimal.Decimal
	WeightKg    float64
	Dimensions  *models.Dimensions
	Method      models.ShippingMethod
}

// Engine is stateless apart from its rates; Quote is deterministic.
type Engine struct {
	markup  decimal.Decimal
	step    decimal.Decimal
	airRate decimal.Decimal
	seaRate decimal.Decimal
	seaMin  decimal.Decimal
	padding decimal.Decimal
}

func NewEngine(r Rates) *Engine {
	step := decimal.NewFromFloat(r.RoundingStep)
	if !step.IsPositive() {
		step = decimal.NewFromInt(1)
	}
	return &Engine{
		markup:  decimal.NewFromFloat(r.MarkupFactor),
		step:    step,
		airRate: decimal.NewFromFloat(r.AirRatePerKg),
		seaRate: decimal.NewFromFloat(r.SeaRatePerCbm),
		seaMin:  decimal.NewFromFloat(r.SeaMinimumFee),
		padding: decimal.NewFromFloat(r.PaddingCm),
	}
}

// SelectMethod returns the explicit method when given, AIR for parcels
// strictly between 0 and 1 kg, SEA otherwise.
func SelectMethod(weightKg float64, explicit models.ShippingMethod) models.ShippingMethod {
	if explicit != "" {
		return explicit
	}
	if weightKg > 0 && weightKg < 1 {
		return models.ShippingAir
	}
	return models.ShippingSea
}

// Quote prices one item. A non-positive base price yields a zero final
// price which callers must treat as a rejection.
func (e *Engine) Quote(in Input) models.PriceQuote {
	q := models.PriceQuote{
		BasePrice:   in.BasePrice,
		DomesticFee: in.DomesticFee,
		WeightKg:    in.WeightKg,
		Dimensions:  in.Dimensions,
		Method:      SelectMethod(in.WeightKg, in.Method),
		Shipping:    decimal.Zero,
		FinalPrice:  decimal.Zero,
	}
	if !in.BasePrice.IsPositive() {
		return q
	}

	switch q.Method {
	case models.ShippingAir:
		q.Shipping = e.airShipping(in.WeightKg)
	default:
		q.Shipping = e.seaShipping(in.Dimensions)
	}

	total := in.BasePrice.Add(in.DomesticFee).Add(q.Shipping).Mul(e.markup)
	q.FinalPrice = e.roundUp(total)
	return q
}

// Final is a shorthand for Quote(in).FinalPrice.
func (e *Engine) Final(in Input) decimal.Decimal {
	return e.Quote(in).FinalPrice
}

func (e *Engine) airShipping(weightKg float64) decimal.Decimal {
	if weightKg <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(weightKg).Mul(e.airRate)
}

func (e *Engine) seaShipping(d *models.Dimensions) decimal.Decimal {
	volume := decimal.Zero
	if d != nil {
		l := e.pad(d.LengthCm)
		w := e.pad(d.WidthCm)
		h := e.pad(d.HeightCm)
		volume = l.Mul(w).Mul(h).Div(cubicCmPerCbm)
	}
	return decimal.Max(volume.Mul(e.seaRate), e.seaMin)
}

// pad grows a positive dimension by the packaging allowance; missing
// dimensions stay zero.
func (e *Engine) pad(cm float64) decimal.Decimal {
	if cm <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(cm).Add(e.padding)
}

func (e *Engine) roundUp(v decimal.Decimal) decimal.Decimal {
	return v.Div(e.step).Ceil().Mul(e.step)
}
