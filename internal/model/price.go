package model

import "github.com/shopspring/decimal"

// PriceSample is a fixed-point price observed at a block timestamp.
type PriceSample struct {
	Timestamp int64
	Price     decimal.Decimal
}
