package domain

import "time"

// RowFilter narrows and orders the combined invoice table.
// Zero-valued fields do not filter. SortBy names a column; empty keeps
// upload order.
type RowFilter struct {
	Client string
	From   *time.Time
	To     *time.Time
	SortBy string
	Desc   bool
}
