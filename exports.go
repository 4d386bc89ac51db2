package tally

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Money is re-exported so callers rarely need the types package.
type Money = types.Money

// Entity is re-exported from the types package.
type Entity = types.Entity

// ID is the identifier type of every Tally record.
type ID = id.ID

// Prefix names the record kind encoded in an ID.
type Prefix = id.Prefix

// Money constructors.
var (
	EUR       = types.EUR
	NewMoney  = types.New
	Zero      = types.Zero
	Sum       = types.Sum
	ParseEuro = func(s string) (Money, error) { return types.ParseMajor(s, "eur") }
)
