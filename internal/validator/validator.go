// Package validator scans candle sequences for suspicious price and volume
// movements. Findings are advisory and never stop a backtest.
package validator

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-value-averager/internal/models"
)

const (
	// DefaultPriceSpikeThreshold flags a close more than 5x (or less than a fifth of) the previous close.
	DefaultPriceSpikeThreshold = "5"

	// DefaultVolumeSurgeThreshold flags volume more than 10x the previous candle.
	DefaultVolumeSurgeThreshold = "10"
)

// Config holds the anomaly thresholds. Zero values select the defaults.
type Config struct {
	PriceSpikeThreshold  decimal.Decimal
	VolumeSurgeThreshold decimal.Decimal
}

// Validator detects price spikes and volume surges between consecutive candles.
type Validator struct {
	thresholds map[models.AnomalyType]decimal.Decimal
	logger     *slog.Logger
}

// New creates a Validator. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.PriceSpikeThreshold.IsPositive() {
		cfg.PriceSpikeThreshold = decimal.RequireFromString(DefaultPriceSpikeThreshold)
	}
	if !cfg.VolumeSurgeThreshold.IsPositive() {
		cfg.VolumeSurgeThreshold = decimal.RequireFromString(DefaultVolumeSurgeThreshold)
	}

	return &Validator{
		thresholds: map[models.AnomalyType]decimal.Decimal{
			models.AnomalyTypePriceSpike:  cfg.PriceSpikeThreshold,
			models.AnomalyTypeVolumeSurge: cfg.VolumeSurgeThreshold,
		},
		logger: logger,
	}
}

// Threshold returns the active threshold for an anomaly type.
func (v *Validator) Threshold(t models.AnomalyType) decimal.Decimal {
	return v.thresholds[t]
}

// Scan returns the anomalies found in candles, oldest first. Candles whose
// values cannot be parsed are skipped.
func (v *Validator) Scan(ctx context.Context, candles []models.Candle) ([]models.Anomaly, error) {
	if len(candles) < 2 {
		return nil, nil
	}

	spike := v.thresholds[models.AnomalyTypePriceSpike]
	surge := v.thresholds[models.AnomalyTypeVolumeSurge]

	var anomalies []models.Anomaly
	for i := 1; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prev, cur := &candles[i-1], &candles[i]

		prevClose, err1 := prev.GetCloseDecimal()
		curClose, err2 := cur.GetCloseDecimal()
		if err1 == nil && err2 == nil && models.DetectPriceSpike(curClose, prevClose, spike) {
			anomalies = append(anomalies, *models.CreatePriceSpikeAnomaly(cur.OpenAt(), curClose, prevClose, spike))
		}

		prevVolume, err1 := prev.GetVolumeDecimal()
		curVolume, err2 := cur.GetVolumeDecimal()
		if err1 == nil && err2 == nil && models.DetectVolumeSurge(curVolume, prevVolume, surge) {
			anomalies = append(anomalies, *models.CreateVolumeSurgeAnomaly(cur.OpenAt(), curVolume, prevVolume, surge))
		}
	}

	for _, a := range anomalies {
		v.logger.Warn("candle anomaly",
			"type", a.Type,
			"severity", a.Severity,
			"open_time", a.OpenTime,
			"description", a.Description)
	}

	return anomalies, nil
}
