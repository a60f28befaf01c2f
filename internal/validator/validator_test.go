package validator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-value-averager/internal/models"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func series(closes, volumes []string) []models.Candle {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i := range closes {
		open := base.AddDate(0, 0, i)
		out[i] = models.Candle{
			OpenTime:  open.UnixMilli(),
			Close:     closes[i],
			Volume:    volumes[i],
			CloseTime: open.AddDate(0, 0, 1).UnixMilli() - 1,
		}
	}
	return out
}

func TestScan_NoAnomalies(t *testing.T) {
	v := New(Config{}, createTestLogger())

	anomalies, err := v.Scan(context.Background(), series(
		[]string{"10", "12", "9", "11"},
		[]string{"100", "150", "90", "300"},
	))
	require.NoError(t, err)
	assert.Empty(t, anomalies)

	anomalies, err = v.Scan(context.Background(), series([]string{"10"}, []string{"1"}))
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestScan_FindsSpikesAndSurges(t *testing.T) {
	v := New(Config{}, createTestLogger())

	candles := series(
		[]string{"10", "60", "59", "5"},
		[]string{"100", "120", "5000", "5000"},
	)
	anomalies, err := v.Scan(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, anomalies, 3)

	assert.Equal(t, models.AnomalyTypePriceSpike, anomalies[0].Type)
	assert.Equal(t, candles[1].OpenAt(), anomalies[0].OpenTime)

	assert.Equal(t, models.AnomalyTypeVolumeSurge, anomalies[1].Type)
	assert.Equal(t, candles[2].OpenAt(), anomalies[1].OpenTime)

	assert.Equal(t, models.AnomalyTypePriceSpike, anomalies[2].Type)
	assert.Contains(t, anomalies[2].Description, "drop")
}

func TestScan_CustomThresholds(t *testing.T) {
	v := New(Config{PriceSpikeThreshold: decimal.RequireFromString("1.5")}, createTestLogger())
	assert.Equal(t, "1.5", v.Threshold(models.AnomalyTypePriceSpike).String())
	assert.Equal(t, DefaultVolumeSurgeThreshold, v.Threshold(models.AnomalyTypeVolumeSurge).String())

	anomalies, err := v.Scan(context.Background(), series(
		[]string{"10", "20"},
		[]string{"1", "1"},
	))
	require.NoError(t, err)
	assert.Len(t, anomalies, 1)
}

func TestScan_SkipsUnparseable(t *testing.T) {
	v := New(Config{}, nil)
	anomalies, err := v.Scan(context.Background(), series(
		[]string{"10", "bad", "100"},
		[]string{"", "1", "1"},
	))
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestScan_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{}, nil).Scan(ctx, series([]string{"1", "2"}, []string{"1", "1"}))
	assert.ErrorIs(t, err, context.Canceled)
}
