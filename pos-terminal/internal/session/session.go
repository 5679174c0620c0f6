// Package session is the terminal's screen state: the scan gate, the product
// currently on display and the cart. Console and HTTP front-ends share one
// Session and every mutation goes through it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_pos/pkg/logger"
	"github.com/fjod/go_pos/pos-terminal/internal/backend"
	"github.com/fjod/go_pos/pos-terminal/internal/cart"
	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/fjod/go_pos/pos-terminal/internal/publisher"
	"github.com/fjod/go_pos/pos-terminal/internal/scanner"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

type ProductLookup interface {
	LookupProduct(ctx context.Context, code string) (domain.Product, error)
}

type PurchaseSubmitter interface {
	SubmitPurchase(ctx context.Context, lines []domain.CartLine) (domain.Receipt, error)
}

type HealthChecker interface {
	Health(ctx context.Context) ([]byte, error)
}

type Options struct {
	Lookup    ProductLookup
	Purchases PurchaseSubmitter
	Health    HealthChecker
	// Publisher is optional; receipts are dropped without one.
	Publisher publisher.ReceiptPublisher

	TaxRate      decimal.Decimal
	ReopenPolicy scanner.ReopenPolicy
	ReopenDelay  time.Duration
	// IgnoreRepeat drops a decode equal to the code whose product is being
	// looked up or is still on display.
	IgnoreRepeat bool

	Logger *zap.Logger
}

type Session struct {
	lookup       ProductLookup
	purchases    PurchaseSubmitter
	health       HealthChecker
	publisher    publisher.ReceiptPublisher
	taxRate      decimal.Decimal
	ignoreRepeat bool
	gate         *scanner.Controller
	log          *zap.Logger

	mu          sync.Mutex
	baseCtx     context.Context
	cart        *cart.Cart
	lookupSeq   uint64
	loading     bool
	purchasing  bool
	closing     bool
	lastCode    string
	scanned     *domain.Product
	lastErr     error
	lastReceipt *domain.Receipt
	observers   []func(Event)

	wg sync.WaitGroup
}

func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pub := opts.Publisher
	if pub == nil {
		pub = publisher.Noop{}
	}

	s := &Session{
		lookup:       opts.Lookup,
		purchases:    opts.Purchases,
		health:       opts.Health,
		publisher:    pub,
		taxRate:      opts.TaxRate,
		ignoreRepeat: opts.IgnoreRepeat,
		log:          log,
		baseCtx:      context.Background(),
		cart:         cart.New(opts.TaxRate),
	}
	s.gate = scanner.NewController(opts.ReopenPolicy, opts.ReopenDelay, s.startLookup, log)
	return s
}

// Observe registers fn to be called after every state change. Observers run
// on the goroutine that caused the change, outside the session lock.
func (s *Session) Observe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Run subscribes to src and serves decode events until ctx is done. The
// source is unsubscribed on every exit path and in-flight lookups are
// waited for before Run returns. Once Run starts tearing down no new lookup
// or receipt publish is started.
func (s *Session) Run(ctx context.Context, src scanner.Source) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	defer s.gate.Stop()
	defer s.wg.Wait()
	defer func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
	}()
	defer func() {
		if err := src.Unsubscribe(); err != nil {
			s.log.Warn("unsubscribe decode source", zap.Error(err))
		}
	}()

	if err := src.Subscribe(func(code string) { s.HandleDecode(code) }, s.handleDecodeError); err != nil {
		return fmt.Errorf("subscribe decode source: %w", err)
	}
	s.log.Info("scanning", zap.String("reopen_policy", string(s.gate.Policy())), zap.Bool("accepting", s.gate.Accepting()))

	<-ctx.Done()
	return nil
}

// Wait blocks until every lookup started so far has settled.
func (s *Session) Wait() {
	s.wg.Wait()
}

// HandleDecode is the decode callback. Codes arriving while the gate is
// closed never reach the product lookup.
func (s *Session) HandleDecode(code string) bool {
	if s.ignoreRepeat && s.isRepeat(code) {
		s.log.Debug("decode ignored, same code on display", zap.String("code", code))
		return false
	}
	return s.gate.SubmitDecodedCode(code)
}

func (s *Session) isRepeat(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return code == s.lastCode && (s.loading || s.scanned != nil)
}

func (s *Session) handleDecodeError(err error) {
	s.log.Warn("decode failed", zap.Error(err))
	s.emit(Event{Kind: EventDecodeFailed, Err: err})
}

// Arm opens the gate for the next scan.
func (s *Session) Arm() {
	s.gate.Open()
	s.emit(Event{Kind: EventArmed})
}

func (s *Session) Accepting() bool {
	return s.gate.Accepting()
}

func (s *Session) startLookup(code string, cycle scanner.Cycle) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.log.Debug("lookup skipped, session closing", zap.String("code", code))
		return
	}
	s.lookupSeq++
	seq := s.lookupSeq
	s.loading = true
	s.lastCode = code
	s.scanned = nil
	s.lastErr = nil
	ctx := s.baseCtx
	s.wg.Add(1)
	s.mu.Unlock()

	s.emit(Event{Kind: EventLookupStarted, Code: code})
	go s.runLookup(ctx, seq, cycle, code)
}

func (s *Session) runLookup(ctx context.Context, seq uint64, cycle scanner.Cycle, code string) {
	defer s.wg.Done()

	p, err := s.lookup.LookupProduct(ctx, code)
	log := logger.FromContext(ctx, s.log).With(zap.String("code", code))

	s.mu.Lock()
	if seq != s.lookupSeq {
		s.mu.Unlock()
		log.Debug("lookup superseded")
		return
	}
	s.loading = false
	if err != nil {
		s.lastErr = err
	} else {
		s.scanned = &p
	}
	s.mu.Unlock()

	s.gate.LookupSettled(cycle)

	if err != nil {
		if backend.IsNotFound(err) {
			log.Info("product not found")
		} else {
			log.Warn("lookup failed", zap.Error(err))
		}
		s.emit(Event{Kind: EventLookupFailed, Code: code, Err: err})
		return
	}
	s.emit(Event{Kind: EventProductScanned, Code: code, Product: &p})
}

// AddScanned moves the displayed product into the cart as one line and
// reopens the gate for the next scan.
func (s *Session) AddScanned() (domain.Product, error) {
	s.mu.Lock()
	if s.purchasing {
		s.mu.Unlock()
		return domain.Product{}, ErrPurchaseInProgress
	}
	if s.scanned == nil {
		s.mu.Unlock()
		return domain.Product{}, ErrNothingScanned
	}
	p := *s.scanned
	s.cart.AddLine(p)
	s.scanned = nil
	s.lastReceipt = nil
	s.mu.Unlock()

	s.gate.Open()
	s.log.Info("added to cart", zap.Int64("product_id", p.ID), zap.Int64("price", p.Price))
	s.emit(Event{Kind: EventItemAdded, Product: &p})
	return p, nil
}

// Quote returns the figures shown on the confirmation step.
func (s *Session) Quote() (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cart.IsEmpty() {
		return domain.Quote{}, backend.ErrEmptyCart
	}
	return s.cart.Quote(), nil
}

// Purchase asks confirm with the current quote and, if it agrees, submits
// the cart as one transaction. The cart is frozen from the moment the quote
// is taken. On a declined confirmation nothing changes and
// ErrPurchaseCancelled is returned. On failure the cart is left intact.
func (s *Session) Purchase(ctx context.Context, confirm func(domain.Quote) bool) (domain.Receipt, error) {
	s.mu.Lock()
	if s.purchasing {
		s.mu.Unlock()
		return domain.Receipt{}, ErrPurchaseInProgress
	}
	if s.cart.IsEmpty() {
		s.mu.Unlock()
		return domain.Receipt{}, backend.ErrEmptyCart
	}
	quote := s.cart.Quote()
	lines := s.cart.Lines()
	s.purchasing = true
	s.mu.Unlock()

	if confirm != nil && !confirm(quote) {
		s.mu.Lock()
		s.purchasing = false
		s.mu.Unlock()
		return domain.Receipt{}, ErrPurchaseCancelled
	}

	log := logger.FromContext(ctx, s.log)
	receipt, err := s.purchases.SubmitPurchase(ctx, lines)

	s.mu.Lock()
	s.purchasing = false
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()

		log.Error("purchase failed", zap.Int("items_count", quote.ItemsCount), zap.Error(err))
		s.emit(Event{Kind: EventPurchaseFailed, Err: err})
		return domain.Receipt{}, err
	}

	if receipt.TotalAmount != quote.Total {
		log.Warn("backend total differs from cart total",
			zap.Int64("backend_total", receipt.TotalAmount),
			zap.Int64("cart_total", quote.Total))
	}
	receipt.TotalWithTax = cart.WithTax(receipt.TotalAmount, s.taxRate)
	s.cart.Clear()
	s.scanned = nil
	s.lastErr = nil
	s.lastReceipt = &receipt
	s.mu.Unlock()

	log.Info("purchase completed",
		zap.Stringer("transaction_id", receipt.TransactionID),
		zap.Int64("total_with_tax", receipt.TotalWithTax))
	s.emit(Event{Kind: EventPurchased, Receipt: &receipt})
	s.publish(receipt)
	return receipt, nil
}

// publish hands the receipt to the publisher in the background. Failures
// never reach the operator.
func (s *Session) publish(r domain.Receipt) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.log.Warn("receipt not published, session closing", zap.Stringer("transaction_id", r.TransactionID))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.context()), publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, r); err != nil {
			s.log.Warn("publish receipt", zap.Stringer("transaction_id", r.TransactionID), zap.Error(err))
		}
	}()
}

// Health returns the backend health document untouched.
func (s *Session) Health(ctx context.Context) ([]byte, error) {
	if s.health == nil {
		return nil, errors.New("health check not configured")
	}
	return s.health.Health(ctx)
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Accepting:    s.gate.Accepting(),
		ReopenPolicy: string(s.gate.Policy()),
		Loading:      s.loading,
		Purchasing:   s.purchasing,
		LastCode:     s.lastCode,
		Cart:         s.cartViewLocked(),
	}
	if s.scanned != nil {
		p := *s.scanned
		v.Scanned = &p
	}
	if s.lastErr != nil {
		v.ErrorKind, v.Error = Describe(s.lastErr)
	}
	if s.lastReceipt != nil {
		r := *s.lastReceipt
		v.LastReceipt = &r
	}
	return v
}

func (s *Session) Cart() CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartViewLocked()
}

func (s *Session) cartViewLocked() CartView {
	q := s.cart.Quote()
	return CartView{
		Items:        s.cart.GroupedView(),
		Count:        q.ItemsCount,
		Total:        q.Total,
		TotalWithTax: q.TotalWithTax,
	}
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

func (s *Session) emit(e Event) {
	s.mu.Lock()
	observers := append(([]func(Event))(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(e)
	}
}
