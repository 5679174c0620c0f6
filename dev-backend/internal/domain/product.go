package domain

import "time"

// Product is a row of the product master. Field names on the wire follow the
// master table columns.
type Product struct {
	ID    int64  `json:"PRD_ID"`
	Code  string `json:"CODE"`
	Name  string `json:"NAME"`
	Price int64  `json:"PRICE"`
}

type Transaction struct {
	ID          int64
	CreatedAt   time.Time
	EmployeeCD  string
	StoreCD     string
	PosNo       string
	TotalAmount int64
	// TotalExTax is the plain sum of the detail prices.
	TotalExTax int64
	Details    []TransactionDetail
}

type TransactionDetail struct {
	TransactionID int64
	DetailID      int64
	ProductID     int64
	ProductCode   string
	ProductName   string
	ProductPrice  int64
	TaxCD         string
}
