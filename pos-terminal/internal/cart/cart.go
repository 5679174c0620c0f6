// Package cart holds the ordered sequence of scanned additions and derives
// counts, totals and the grouped display view from it on demand.
package cart

import (
	"time"

	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the consumption tax applied to the pre-tax total.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// Cart is not safe for concurrent use; its owner serializes access.
type Cart struct {
	lines   []domain.CartLine
	taxRate decimal.Decimal
	now     func() time.Time
}

func New(taxRate decimal.Decimal) *Cart {
	return &Cart{
		taxRate: taxRate,
		now:     time.Now,
	}
}

// AddLine appends one unit of p. Lines are never merged at insertion time.
func (c *Cart) AddLine(p domain.Product) {
	c.lines = append(c.lines, domain.CartLine{
		Product: p,
		AddedAt: c.now(),
	})
}

// Lines returns a copy of the line sequence in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Count() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Total is the pre-tax sum of unit prices across all lines.
func (c *Cart) Total() int64 {
	return Total(c.lines)
}

func (c *Cart) TotalWithTax() int64 {
	return WithTax(c.Total(), c.taxRate)
}

// GroupedView collapses lines by product ID in first-occurrence order.
func (c *Cart) GroupedView() []domain.GroupedLine {
	return Group(c.lines)
}

func (c *Cart) Quote() domain.Quote {
	total := c.Total()
	return domain.Quote{
		ItemsCount:   len(c.lines),
		Total:        total,
		TotalWithTax: WithTax(total, c.taxRate),
	}
}

func (c *Cart) Clear() {
	c.lines = nil
}

func Total(lines []domain.CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Product.Price
	}
	return total
}

// WithTax returns floor(total * (1 + rate)) without going through floats.
func WithTax(total int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(1).Add(rate)).
		Floor().
		IntPart()
}

func Group(lines []domain.CartLine) []domain.GroupedLine {
	grouped := make([]domain.GroupedLine, 0, len(lines))
	index := make(map[int64]int, len(lines))

	for _, l := range lines {
		if i, ok := index[l.Product.ID]; ok {
			grouped[i].Quantity++
			grouped[i].Subtotal += l.Product.Price
			continue
		}
		index[l.Product.ID] = len(grouped)
		grouped = append(grouped, domain.GroupedLine{
			Product:  l.Product,
			Quantity: 1,
			Subtotal: l.Product.Price,
		})
	}
	return grouped
}
