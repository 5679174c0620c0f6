package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Quote holds the figures shown on the confirmation step before a purchase.
type Quote struct {
	ItemsCount   int   `json:"items_count"`
	Total        int64 `json:"total"`
	TotalWithTax int64 `json:"total_with_tax"`
}

// Receipt is the acknowledged result of a purchase. TransactionID, ItemsCount
// and TotalAmount come from the backend; TotalWithTax is the locally computed
// figure that was confirmed.
type Receipt struct {
	TransactionID TransactionID `json:"transaction_id"`
	ItemsCount    int           `json:"items_count"`
	TotalAmount   int64         `json:"total_amount"`
	TotalWithTax  int64         `json:"total_with_tax"`
	Lines         []CartLine    `json:"-"`
	CompletedAt   time.Time     `json:"completed_at"`
}

// TransactionID is whatever identifier the backend assigned. Backends answer
// with either a JSON number or a string; both are kept verbatim.
type TransactionID string

func (id *TransactionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TransactionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("transaction_id: %w", err)
	}
	*id = TransactionID(n.String())
	return nil
}

func (id TransactionID) String() string {
	return string(id)
}
