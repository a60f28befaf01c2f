// Package report renders backtest results for the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/johnayoung/go-value-averager/internal/backtest"
	"github.com/johnayoung/go-value-averager/internal/models"
)

// Format names an output rendering.
type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// DefaultDateLayout renders calendar dates.
const DefaultDateLayout = "2006-01-02"

// SupportedFormats lists every valid Format.
var SupportedFormats = []Format{FormatText, FormatTable, FormatJSON}

// IsSupportedFormat reports whether name is a known Format.
func IsSupportedFormat(name string) bool {
	for _, f := range SupportedFormats {
		if string(f) == name {
			return true
		}
	}
	return false
}

// Options configures a Reporter. Zero values select text output in the
// local timezone with DefaultDateLayout.
type Options struct {
	Format     Format
	Timezone   string
	DateLayout string
}

// Reporter writes a backtest result in one Format.
type Reporter struct {
	format     Format
	location   *time.Location
	dateLayout string
}

// New creates a Reporter from opts.
func New(opts Options) (*Reporter, error) {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if !IsSupportedFormat(string(opts.Format)) {
		return nil, &models.ValidationError{Field: "format", Message: fmt.Sprintf("unsupported format %q", opts.Format)}
	}

	loc, err := LoadLocation(opts.Timezone)
	if err != nil {
		return nil, err
	}

	if opts.DateLayout == "" {
		opts.DateLayout = DefaultDateLayout
	}

	return &Reporter{format: opts.Format, location: loc, dateLayout: opts.DateLayout}, nil
}

// LoadLocation resolves a timezone name. Empty and "Local" both mean the
// system zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &models.ValidationError{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q: %v", name, err)}
	}
	return loc, nil
}

// Render writes result to w.
func (r *Reporter) Render(w io.Writer, result *backtest.Result) error {
	if result == nil {
		return fmt.Errorf("nothing to render: result is nil")
	}

	switch r.format {
	case FormatTable:
		return r.renderTable(w, result)
	case FormatJSON:
		return r.renderJSON(w, result)
	default:
		return r.renderText(w, result)
	}
}

func (r *Reporter) date(t time.Time) string {
	return t.In(r.location).Format(r.dateLayout)
}

func (r *Reporter) renderText(w io.Writer, result *backtest.Result) error {
	s := result.Summary
	var b strings.Builder

	for _, tx := range result.Transactions {
		fmt.Fprintf(&b, "Bought %s %s at $%s with $%s on %s\n",
			tx.UnitsBought.StringFixed(6), s.Symbol, tx.Price.String(),
			tx.AmountSpent.StringFixed(2), r.date(tx.Date))
	}

	fmt.Fprintf(&b, "Average Price %s: %s\n", s.Symbol, s.AveragePrice.StringFixed(6))
	fmt.Fprintf(&b, "Total %s: %s\n", s.Symbol, s.TotalUnitsHeld.StringFixed(6))
	fmt.Fprintf(&b, "Total Investment: $%s\n", s.TotalInvested.StringFixed(2))
	fmt.Fprintf(&b, "Final Total Value: $%s\n", s.FinalPortfolioValue.StringFixed(2))
	fmt.Fprintf(&b, "PNL: %s\n", s.ProfitAndLoss.StringFixed(2))
	fmt.Fprintf(&b, "PNL: %s%%\n", s.ProfitAndLossPercent.StringFixed(2))
	fmt.Fprintf(&b, "Hodl PNL: %s%%\n", s.BuyAndHoldPercent.StringFixed(2))
	fmt.Fprintf(&b, "Number of buys: %d\n", s.BuyCount)

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Reporter) renderTable(w io.Writer, result *backtest.Result) error {
	s := result.Summary
	var b strings.Builder

	if len(result.Transactions) > 0 {
		buys := tablewriter.NewWriter(&b)
		buys.SetHeader([]string{"#", "Date", "Price", "Units", "Amount"})
		buys.SetAlignment(tablewriter.ALIGN_RIGHT)
		for _, tx := range result.Transactions {
			buys.Append([]string{
				strconv.Itoa(tx.Period),
				r.date(tx.Date),
				"$" + tx.Price.String(),
				tx.UnitsBought.StringFixed(6),
				"$" + tx.AmountSpent.StringFixed(2),
			})
		}
		buys.Render()
	}

	summary := tablewriter.NewWriter(&b)
	summary.SetHeader([]string{"Metric", s.Symbol})
	summary.SetAlignment(tablewriter.ALIGN_LEFT)
	summary.AppendBulk([][]string{
		{"Period", r.date(s.StartDate) + " to " + r.date(s.EndDate)},
		{"Periods", strconv.Itoa(s.Periods)},
		{"Average Price", s.AveragePrice.StringFixed(6)},
		{"Total Units", s.TotalUnitsHeld.StringFixed(6)},
		{"Total Investment", "$" + s.TotalInvested.StringFixed(2)},
		{"Final Total Value", "$" + s.FinalPortfolioValue.StringFixed(2)},
		{"PNL", s.ProfitAndLoss.StringFixed(2)},
		{"PNL %", s.ProfitAndLossPercent.StringFixed(2) + "%"},
		{"Hodl PNL %", s.BuyAndHoldPercent.StringFixed(2) + "%"},
		{"Number of buys", strconv.Itoa(s.BuyCount)},
	})
	summary.Render()

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Reporter) renderJSON(w io.Writer, result *backtest.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}
