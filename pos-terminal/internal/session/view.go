package session

import "github.com/fjod/go_pos/pos-terminal/internal/domain"

// View is a snapshot of everything a screen renders.
type View struct {
	Accepting    bool            `json:"accepting"`
	ReopenPolicy string          `json:"reopen_policy"`
	Loading      bool            `json:"loading"`
	Purchasing   bool            `json:"purchasing"`
	LastCode     string          `json:"last_code,omitempty"`
	Scanned      *domain.Product `json:"scanned,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	LastReceipt  *domain.Receipt `json:"last_receipt,omitempty"`
	Cart         CartView        `json:"cart"`
}

type CartView struct {
	Items        []domain.GroupedLine `json:"items"`
	Count        int                  `json:"count"`
	Total        int64                `json:"total"`
	TotalWithTax int64                `json:"total_with_tax"`
}

type EventKind int

const (
	EventLookupStarted EventKind = iota
	EventProductScanned
	EventLookupFailed
	EventItemAdded
	EventPurchased
	EventPurchaseFailed
	EventDecodeFailed
	EventArmed
)

func (k EventKind) String() string {
	switch k {
	case EventLookupStarted:
		return "lookup_started"
	case EventProductScanned:
		return "product_scanned"
	case EventLookupFailed:
		return "lookup_failed"
	case EventItemAdded:
		return "item_added"
	case EventPurchased:
		return "purchased"
	case EventPurchaseFailed:
		return "purchase_failed"
	case EventDecodeFailed:
		return "decode_failed"
	case EventArmed:
		return "armed"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind    EventKind
	Code    string
	Product *domain.Product
	Receipt *domain.Receipt
	Err     error
}
