// Package console is the interactive front-end of the terminal. Lines that
// start with ':' are commands; anything else is a decoded barcode, which is
// how keyboard-wedge scanners present themselves.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fjod/go_pos/pos-terminal/internal/backend"
	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/fjod/go_pos/pos-terminal/internal/session"
	"go.uber.org/zap"
)

// Terminal is the part of the session the console drives.
type Terminal interface {
	Accepting() bool
	Arm()
	AddScanned() (domain.Product, error)
	Purchase(ctx context.Context, confirm func(domain.Quote) bool) (domain.Receipt, error)
	Cart() session.CartView
	Health(ctx context.Context) ([]byte, error)
	Observe(fn func(session.Event))
}

// CodeSink receives barcodes typed or wedged into the console.
type CodeSink interface {
	Push(code string) bool
}

type Console struct {
	term Terminal
	sink CodeSink
	in   io.Reader
	log  *zap.Logger

	mu  sync.Mutex
	out io.Writer
}

func New(term Terminal, sink CodeSink, in io.Reader, out io.Writer, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Console{term: term, sink: sink, in: in, out: out, log: log}
	term.Observe(c.onEvent)
	return c
}

// Run reads input until EOF, ":quit" or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
		close(lines)
	}()

	c.printf("ready. scan a barcode or type :help\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if quit := c.handle(ctx, strings.TrimSpace(line), lines); quit {
				return nil
			}
		}
	}
}

func (c *Console) handle(ctx context.Context, line string, lines <-chan string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ":") {
		c.scan(line)
		return false
	}

	switch cmd := strings.ToLower(strings.TrimPrefix(line, ":")); cmd {
	case "scan", "s":
		c.term.Arm()
	case "add", "a":
		c.add()
	case "cart", "c":
		c.withOut(func(w io.Writer) { renderCart(w, c.term.Cart()) })
	case "buy", "b":
		c.buy(ctx, lines)
	case "health", "h":
		c.health(ctx)
	case "help", "?":
		c.printf("commands: :scan  :add  :cart  :buy  :health  :quit\n")
	case "quit", "q":
		return true
	default:
		c.printf("unknown command %q, type :help\n", cmd)
	}
	return false
}

func (c *Console) scan(code string) {
	if !c.term.Accepting() {
		c.printf("scanner is not armed, type :scan first\n")
		return
	}
	if !c.sink.Push(code) {
		c.printf("scanner is not running\n")
	}
}

func (c *Console) add() {
	if _, err := c.term.AddScanned(); err != nil {
		switch {
		case errors.Is(err, session.ErrNothingScanned):
			c.printf("nothing scanned to add\n")
		case errors.Is(err, session.ErrPurchaseInProgress):
			c.printf("purchase in progress\n")
		default:
			c.printf("! %v\n", err)
		}
	}
}

func (c *Console) buy(ctx context.Context, lines <-chan string) {
	confirm := func(q domain.Quote) bool {
		c.withOut(func(w io.Writer) {
			renderQuote(w, q)
			fmt.Fprint(w, "[y/N] ")
		})
		select {
		case answer, ok := <-lines:
			if !ok {
				return false
			}
			answer = strings.ToLower(strings.TrimSpace(answer))
			return answer == "y" || answer == "yes"
		case <-ctx.Done():
			return false
		}
	}

	_, err := c.term.Purchase(ctx, confirm)
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrEmptyCart):
		c.printf("cart is empty\n")
	case errors.Is(err, session.ErrPurchaseCancelled):
		c.printf("purchase cancelled\n")
	case errors.Is(err, session.ErrPurchaseInProgress):
		c.printf("purchase in progress\n")
	}
	// failures and success are reported through onEvent
}

func (c *Console) health(ctx context.Context) {
	body, err := c.term.Health(ctx)
	if err != nil {
		c.log.Warn("health check failed", zap.Error(err))
		_, msg := session.Describe(err)
		c.printf("! health check failed: %s\n", msg)
		return
	}
	c.printf("%s\n", strings.TrimSpace(string(body)))
}

func (c *Console) onEvent(e session.Event) {
	switch e.Kind {
	case session.EventArmed:
		c.printf("scanner armed\n")
	case session.EventLookupStarted:
		c.printf("looking up %s ...\n", e.Code)
	case session.EventProductScanned:
		c.printf("  %s  %s  (:add to add to cart)\n", e.Product.Name, Yen(e.Product.Price))
	case session.EventLookupFailed, session.EventPurchaseFailed, session.EventDecodeFailed:
		_, msg := session.Describe(e.Err)
		c.printf("! %s\n", msg)
	case session.EventItemAdded:
		cart := c.term.Cart()
		c.printf("added %s. cart: %d items, %s\n", e.Product.Name, cart.Count, Yen(cart.Total))
	case session.EventPurchased:
		c.withOut(func(w io.Writer) { renderReceipt(w, *e.Receipt) })
	}
}

func (c *Console) printf(format string, args ...any) {
	c.withOut(func(w io.Writer) { fmt.Fprintf(w, format, args...) })
}

func (c *Console) withOut(fn func(w io.Writer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.out)
}
