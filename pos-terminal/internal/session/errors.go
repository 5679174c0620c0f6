package session

import (
	"errors"
	"fmt"

	"github.com/fjod/go_pos/pos-terminal/internal/backend"
	"github.com/fjod/go_pos/pos-terminal/internal/scanner"
)

var (
	ErrNothingScanned     = errors.New("no scanned product to add")
	ErrPurchaseInProgress = errors.New("purchase already in progress")
	ErrPurchaseCancelled  = errors.New("purchase cancelled")
)

const (
	KindNotFound  = "not_found"
	KindService   = "service"
	KindTransport = "transport"
	KindPurchase  = "purchase"
	KindDecode    = "decode"
	KindUnknown   = "unknown"
)

// Describe turns err into a short kind and an operator-facing message.
func Describe(err error) (kind, message string) {
	var (
		nf *backend.NotFoundError
		se *backend.ServiceError
		te *backend.TransportError
		de *scanner.DecodeError
	)

	prefix := ""
	var pe *backend.PurchaseError
	if errors.As(err, &pe) {
		prefix = "purchase failed: "
	}

	switch {
	case errors.As(err, &nf):
		return KindNotFound, fmt.Sprintf("product not found (code: %s)", nf.Code)
	case errors.As(err, &se):
		if prefix != "" {
			return KindPurchase, fmt.Sprintf("%sbackend returned %d", prefix, se.Status)
		}
		return KindService, fmt.Sprintf("backend error (status %d)", se.Status)
	case errors.As(err, &te):
		if prefix != "" {
			return KindPurchase, prefix + "backend unreachable"
		}
		return KindTransport, "backend unreachable"
	case errors.As(err, &de):
		return KindDecode, "could not read barcode"
	case prefix != "":
		return KindPurchase, prefix + pe.Cause.Error()
	default:
		return KindUnknown, err.Error()
	}
}
