package console

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/fjod/go_pos/pos-terminal/internal/session"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var yenPrinter = message.NewPrinter(language.Japanese)

// Yen formats an amount as ¥1,234.
func Yen(amount int64) string {
	return yenPrinter.Sprintf("¥%d", amount)
}

func renderCart(w io.Writer, c session.CartView) {
	if c.Count == 0 {
		fmt.Fprintln(w, "cart is empty")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tQTY\tSUBTOTAL\t")
	for _, l := range c.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t\n", l.Product.Code, l.Product.Name, l.Quantity, Yen(l.Subtotal))
	}
	tw.Flush()

	fmt.Fprintf(w, "items: %d  total: %s  with tax: %s\n", c.Count, Yen(c.Total), Yen(c.TotalWithTax))
}

func renderQuote(w io.Writer, q domain.Quote) {
	fmt.Fprintln(w, "confirm purchase?")
	fmt.Fprintf(w, "  items:            %d\n", q.ItemsCount)
	fmt.Fprintf(w, "  total (excl tax): %s\n", Yen(q.Total))
	fmt.Fprintf(w, "  total (incl tax): %s\n", Yen(q.TotalWithTax))
}

func renderReceipt(w io.Writer, r domain.Receipt) {
	fmt.Fprintln(w, "purchase complete")
	fmt.Fprintf(w, "  transaction:      %s\n", r.TransactionID)
	fmt.Fprintf(w, "  total (incl tax): %s\n", Yen(r.TotalWithTax))
	fmt.Fprintf(w, "  total (excl tax): %s\n", Yen(r.TotalAmount))
}
