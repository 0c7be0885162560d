package report

import (
	"fmt"
	"time"
)

// BucketLabel formats the UTC bucket containing ts. Labels sort lexically in time order.
func BucketLabel(ts time.Time, groupBy GroupBy) string {
	ts = ts.UTC()
	switch groupBy {
	case GroupByDay:
		return ts.Format("2006-01-02")
	case GroupByWeek:
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	default:
		return ts.Format("2006-01")
	}
}
