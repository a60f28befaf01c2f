package models

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// SeverityLevel represents the severity of an anomaly
type SeverityLevel string

const (
	SeverityInfo     SeverityLevel = "info"
	SeverityWarning  SeverityLevel = "warning"
	SeverityError    SeverityLevel = "error"
	SeverityCritical SeverityLevel = "critical"
)

// AnomalyType represents the type of anomaly detected
type AnomalyType string

const (
	AnomalyTypePriceSpike  AnomalyType = "price_spike"
	AnomalyTypeVolumeSurge AnomalyType = "volume_surge"
)

// Anomaly describes a suspicious movement between two consecutive candles.
// Anomalies are advisory: they never stop a backtest.
type Anomaly struct {
	Type        AnomalyType     `json:"type"`
	Severity    SeverityLevel   `json:"severity"`
	OpenTime    time.Time       `json:"open_time"`
	Description string          `json:"description"`
	Value       decimal.Decimal `json:"value"`
	Threshold   decimal.Decimal `json:"threshold"`
	Confidence  float64         `json:"confidence"`
}

// NewAnomaly creates an anomaly with its severity derived from the inputs.
func NewAnomaly(anomalyType AnomalyType, openTime time.Time, description string, value, threshold decimal.Decimal, confidence float64) *Anomaly {
	return &Anomaly{
		Type:        anomalyType,
		Severity:    DetermineSeverity(anomalyType, value, threshold, confidence),
		OpenTime:    openTime,
		Description: description,
		Value:       value,
		Threshold:   threshold,
		Confidence:  confidence,
	}
}

// MoveRatio returns how many times larger the bigger of two prices is than
// the smaller one, so a doubling and a halving both give 2. It returns zero
// when either price is not positive.
func MoveRatio(current, previous decimal.Decimal) decimal.Decimal {
	if !current.IsPositive() || !previous.IsPositive() {
		return decimal.Zero
	}
	if current.GreaterThanOrEqual(previous) {
		return current.Div(previous)
	}
	return previous.Div(current)
}

// DetectPriceSpike reports whether the close-to-close move exceeds threshold in either direction.
func DetectPriceSpike(current, previous, threshold decimal.Decimal) bool {
	return MoveRatio(current, previous).GreaterThan(threshold)
}

// DetectVolumeSurge reports whether volume grew by more than threshold times.
func DetectVolumeSurge(currentVolume, previousVolume, threshold decimal.Decimal) bool {
	if !previousVolume.IsPositive() {
		return false
	}
	return currentVolume.Div(previousVolume).GreaterThan(threshold)
}

// CreatePriceSpikeAnomaly builds a price spike anomaly for the candle opening at openTime.
func CreatePriceSpikeAnomaly(openTime time.Time, current, previous, threshold decimal.Decimal) *Anomaly {
	ratio := MoveRatio(current, previous)
	direction := "rise"
	if current.LessThan(previous) {
		direction = "drop"
	}
	description := fmt.Sprintf("close price %s of %sx (current: %s, previous: %s)",
		direction, ratio.StringFixed(2), current.String(), previous.String())

	return NewAnomaly(AnomalyTypePriceSpike, openTime, description, ratio, threshold, confidence(ratio, threshold, 0.5, 0.1))
}

// CreateVolumeSurgeAnomaly builds a volume surge anomaly for the candle opening at openTime.
func CreateVolumeSurgeAnomaly(openTime time.Time, current, previous, threshold decimal.Decimal) *Anomaly {
	ratio := current.Div(previous)
	description := fmt.Sprintf("volume surge of %sx (current: %s, previous: %s)",
		ratio.StringFixed(2), current.String(), previous.String())

	return NewAnomaly(AnomalyTypeVolumeSurge, openTime, description, ratio, threshold, confidence(ratio, threshold, 0.6, 0.08))
}

// DetermineSeverity determines severity based on anomaly type and confidence
func DetermineSeverity(anomalyType AnomalyType, value, threshold decimal.Decimal, confidence float64) SeverityLevel {
	var criticalMultiple decimal.Decimal
	switch anomalyType {
	case AnomalyTypePriceSpike:
		criticalMultiple = decimal.NewFromInt(2)
	case AnomalyTypeVolumeSurge:
		criticalMultiple = decimal.NewFromInt(5)
	default:
		return SeverityInfo
	}

	if !threshold.IsZero() && confidence >= 0.9 && value.Div(threshold).GreaterThan(criticalMultiple) {
		return SeverityCritical
	}
	if confidence >= 0.7 {
		return SeverityError
	}
	return SeverityWarning
}

// confidence grows from base with how far ratio exceeds threshold, capped at 1.
func confidence(ratio, threshold decimal.Decimal, base, slope float64) float64 {
	if threshold.IsZero() || ratio.LessThanOrEqual(threshold) {
		return 0.0
	}
	excess := ratio.Sub(threshold).Div(threshold)
	return math.Min(base+excess.InexactFloat64()*slope, 1.0)
}
