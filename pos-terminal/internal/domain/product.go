package domain

// Product is a catalogue entry as returned by the backend lookup. Price is in
// the smallest currency unit.
type Product struct {
	ID    int64  `json:"PRD_ID"`
	Code  string `json:"CODE"`
	Name  string `json:"NAME"`
	Price int64  `json:"PRICE"`
}
