package models

// CompanyInfo is descriptive metadata for a ticker. Every field is optional:
// providers frequently omit some of them.
type CompanyInfo struct {
	Symbol      string   `json:"symbol"`
	Name        *string  `json:"name,omitempty"`
	Sector      *string  `json:"sector,omitempty"`
	Industry    *string  `json:"industry,omitempty"`
	Website     *string  `json:"website,omitempty"`
	Description *string  `json:"description,omitempty"`
	MarketCap   *float64 `json:"market_cap,omitempty"`
}

// StringPtr returns nil for empty strings so absent metadata stays absent.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FloatPtr returns nil for zero values.
func FloatPtr(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}
