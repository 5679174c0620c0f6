package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyCart is returned by SubmitPurchase before any network call.
	ErrEmptyCart = errors.New("cart is empty")
)

// NotFoundError means the backend answered 404 for a product code.
type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %q not found", e.Code)
}

// ServiceError is any non-2xx answer other than a lookup 404.
type ServiceError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend returned %d %s", e.Op, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Body)
}

// TransportError covers failures where no usable answer came back: network
// errors, timeouts, undecodable bodies and an open circuit.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PurchaseError wraps every failure of SubmitPurchase after the empty check.
type PurchaseError struct {
	Cause error
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("purchase failed: %v", e.Cause)
}

func (e *PurchaseError) Unwrap() error {
	return e.Cause
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// BreakerSuccessful reports whether err should count as a healthy answer
// for the circuit breaker. Client errors mean the backend is reachable, and
// a caller giving up says nothing about the backend.
func BreakerSuccessful(err error) bool {
	if err == nil || IsNotFound(err) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Status < http.StatusInternalServerError
	}
	return false
}
