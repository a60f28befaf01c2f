// Package backtest simulates a buy-only value-averaging strategy over a candle
// sequence.
//
// Each period the target portfolio value grows by a fixed amount. If the
// holdings are worth less than the target at the period's close, the
// shortfall is bought; if they are worth as much or more, nothing happens.
// Nothing is ever sold.
//
// All money and quantity arithmetic uses decimal.Decimal. The one rounding
// step is the division that sizes a purchase (units = amount / price), carried
// to decimal.DivisionPrecision fractional digits.
package backtest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/johnayoung/go-value-averager/internal/errors"
	"github.com/johnayoung/go-value-averager/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Config holds the strategy parameters.
type Config struct {
	// Symbol labels the asset in transactions and the summary
	Symbol string

	// GrowthTargetPerPeriod is the amount the target value increases by each period
	GrowthTargetPerPeriod decimal.Decimal
}

// Validate checks the strategy parameters.
func (c Config) Validate() error {
	if c.Symbol == "" {
		return &ConfigError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if !c.GrowthTargetPerPeriod.IsPositive() {
		return &ConfigError{Field: "growth_target_per_period", Message: "growth target must be greater than 0"}
	}
	return nil
}

// ConfigError reports invalid strategy parameters.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid backtest config %s: %s", e.Field, e.Message)
}

// Type classifies the error for exit-code mapping.
func (e *ConfigError) Type() apperrors.ErrorType {
	return apperrors.ErrorTypeValidation
}

// State is the running bookkeeping of one backtest.
type State struct {
	Period         int             `json:"period"`
	TargetValue    decimal.Decimal `json:"target_value"`
	TotalUnitsHeld decimal.Decimal `json:"total_units_held"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	BuyCount       int             `json:"buy_count"`
}

// Transaction records one purchase.
type Transaction struct {
	Period      int             `json:"period"`
	UnitsBought decimal.Decimal `json:"units_bought"`
	Price       decimal.Decimal `json:"price"`
	AmountSpent decimal.Decimal `json:"amount_spent"`
	Date        time.Time       `json:"date"`
}

// Apply advances s by one period using the candle's close. It returns the
// purchase made, or nil when the holdings already meet the target.
func (s *State) Apply(candle models.Candle, growth decimal.Decimal) (*Transaction, error) {
	price, err := candle.GetCloseDecimal()
	if err != nil {
		return nil, &models.ValidationError{Field: "close", Message: fmt.Sprintf("invalid close price %q: %v", candle.Close, err)}
	}
	if price.IsNegative() {
		return nil, &models.ValidationError{Field: "close", Message: fmt.Sprintf("close price %s is negative", price)}
	}

	s.Period++
	s.TargetValue = s.TargetValue.Add(growth)

	currentValue := s.TotalUnitsHeld.Mul(price)
	investmentNeeded := s.TargetValue.Sub(currentValue)
	if !investmentNeeded.IsPositive() {
		return nil, nil
	}

	if price.IsZero() {
		return nil, &apperrors.DivisionByZeroError{Operation: fmt.Sprintf("units bought in period %d (close price is zero)", s.Period)}
	}

	unitsBought := investmentNeeded.Div(price)
	s.TotalUnitsHeld = s.TotalUnitsHeld.Add(unitsBought)
	s.TotalInvested = s.TotalInvested.Add(investmentNeeded)
	s.BuyCount++

	return &Transaction{
		Period:      s.Period,
		UnitsBought: unitsBought,
		Price:       price,
		AmountSpent: investmentNeeded,
		Date:        candle.CloseAt(),
	}, nil
}

// Summary holds the aggregate metrics of a completed backtest.
type Summary struct {
	Symbol               string          `json:"symbol"`
	Periods              int             `json:"periods"`
	BuyCount             int             `json:"buy_count"`
	TargetValue          decimal.Decimal `json:"target_value"`
	TotalUnitsHeld       decimal.Decimal `json:"total_units_held"`
	TotalInvested        decimal.Decimal `json:"total_invested"`
	AveragePrice         decimal.Decimal `json:"average_price"`
	StartPrice           decimal.Decimal `json:"start_price"`
	FinalPrice           decimal.Decimal `json:"final_price"`
	FinalPortfolioValue  decimal.Decimal `json:"final_portfolio_value"`
	ProfitAndLoss        decimal.Decimal `json:"profit_and_loss"`
	ProfitAndLossPercent decimal.Decimal `json:"profit_and_loss_percent"`
	BuyAndHoldPercent    decimal.Decimal `json:"buy_and_hold_percent"`
	StartDate            time.Time       `json:"start_date"`
	EndDate              time.Time       `json:"end_date"`
}

// Result is the full output of a backtest run.
type Result struct {
	Transactions []Transaction `json:"transactions"`
	Summary      Summary       `json:"summary"`
}

// Backtester runs the strategy for a fixed configuration.
type Backtester struct {
	config Config
	logger *slog.Logger
}

// New creates a Backtester. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{config: cfg, logger: logger}, nil
}

// Run processes candles strictly in the given order and returns every
// purchase plus the summary. It returns no partial result on error.
func (b *Backtester) Run(candles []models.Candle) (*Result, error) {
	if len(candles) == 0 {
		return nil, &apperrors.InsufficientDataError{Need: 1, Got: 0}
	}

	var state State
	transactions := make([]Transaction, 0, len(candles))
	for i := range candles {
		tx, err := state.Apply(candles[i], b.config.GrowthTargetPerPeriod)
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", i+1, err)
		}
		if tx == nil {
			continue
		}
		transactions = append(transactions, *tx)
		b.logger.Debug("bought",
			"period", tx.Period,
			"units", tx.UnitsBought.String(),
			"price", tx.Price.String(),
			"amount", tx.AmountSpent.String())
	}

	summary, err := summarize(b.config.Symbol, state, candles[0], candles[len(candles)-1])
	if err != nil {
		return nil, err
	}

	b.logger.Info("backtest completed",
		"symbol", summary.Symbol,
		"periods", summary.Periods,
		"buys", summary.BuyCount,
		"invested", summary.TotalInvested.StringFixed(2),
		"pnl_percent", summary.ProfitAndLossPercent.StringFixed(2))

	return &Result{Transactions: transactions, Summary: *summary}, nil
}

// Run is a convenience wrapper for a one-off backtest.
func Run(candles []models.Candle, cfg Config) (*Result, error) {
	b, err := New(cfg, nil)
	if err != nil {
		return nil, err
	}
	return b.Run(candles)
}

func summarize(symbol string, state State, first, last models.Candle) (*Summary, error) {
	if state.TotalUnitsHeld.IsZero() {
		return nil, &apperrors.DivisionByZeroError{Operation: "average price (no units held)"}
	}
	if state.TotalInvested.IsZero() {
		return nil, &apperrors.DivisionByZeroError{Operation: "profit and loss percent (nothing invested)"}
	}

	startPrice, err := first.GetOpenDecimal()
	if err != nil {
		return nil, &models.ValidationError{Field: "open", Message: fmt.Sprintf("invalid open price %q: %v", first.Open, err)}
	}
	if startPrice.IsZero() {
		return nil, &apperrors.DivisionByZeroError{Operation: "buy-and-hold return (first open price is zero)"}
	}

	finalPrice, err := last.GetCloseDecimal()
	if err != nil {
		return nil, &models.ValidationError{Field: "close", Message: fmt.Sprintf("invalid close price %q: %v", last.Close, err)}
	}

	finalValue := state.TotalUnitsHeld.Mul(finalPrice)
	pnl := finalValue.Sub(state.TotalInvested)

	return &Summary{
		Symbol:               symbol,
		Periods:              state.Period,
		BuyCount:             state.BuyCount,
		TargetValue:          state.TargetValue,
		TotalUnitsHeld:       state.TotalUnitsHeld,
		TotalInvested:        state.TotalInvested,
		AveragePrice:         state.TotalInvested.Div(state.TotalUnitsHeld),
		StartPrice:           startPrice,
		FinalPrice:           finalPrice,
		FinalPortfolioValue:  finalValue,
		ProfitAndLoss:        pnl,
		ProfitAndLossPercent: pnl.Mul(hundred).Div(state.TotalInvested),
		BuyAndHoldPercent:    finalPrice.Sub(startPrice).Mul(hundred).Div(startPrice),
		StartDate:            first.OpenAt(),
		EndDate:              last.CloseAt(),
	}, nil
}
