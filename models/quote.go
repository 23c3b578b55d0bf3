package models

// Quote is the intraday move of one symbol since the session open.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Open          float64 `json:"open"`
	ChangePercent float64 `json:"change_percent"`
	Change        string  `json:"change"`
}
