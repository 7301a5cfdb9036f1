package binance

import (
	"sort"
	"strings"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/models"
)

// groupWindow is how far a row's timestamp may sit from the first row of a
// bucket and still join it. A single user action on the exchange is
// frequently logged as several CSV lines with near-identical timestamps.
const groupWindow = 6 * time.Second

// groupByTime sorts the rows by timestamp and builds buckets greedily: a
// row joins the current bucket if its second-truncated timestamp is within
// the window of the bucket's first row, otherwise it starts a new bucket.
// Each finished bucket is then split by operation family.
func groupByTime(rows []models.ImportRow) [][]models.ImportRow {
	if len(rows) == 0 {
		return nil
	}

	sorted := make([]models.ImportRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Time.Equal(sorted[j].Time) {
			return sorted[i].Time.Before(sorted[j].Time)
		}
		return sorted[i].Line < sorted[j].Line
	})

	var buckets [][]models.ImportRow
	bucketStart := sorted[0].Time.Truncate(time.Second)
	current := []models.ImportRow{sorted[0]}
	for _, row := range sorted[1:] {
		if row.Time.Truncate(time.Second).Sub(bucketStart) <= groupWindow {
			current = append(current, row)
			continue
		}
		buckets = append(buckets, splitByAction(current)...)
		bucketStart = row.Time.Truncate(time.Second)
		current = []models.ImportRow{row}
	}
	return append(buckets, splitByAction(current)...)
}

// splitByAction partitions a time bucket by operation family, so that an
// unrelated row logged in the same second (a fiat Deposit next to a Buy
// Crypto With Fiat pair, say) does not get folded into the trade. The
// "Transaction *" operations form one family: a single spot trade logs
// its buy, spend and fee lines under distinct operation names.
func splitByAction(bucket []models.ImportRow) [][]models.ImportRow {
	var order []string
	byFamily := make(map[string][]models.ImportRow)
	for _, row := range bucket {
		family := row.Operation
		if strings.HasPrefix(family, "Transaction ") {
			family = "Transaction"
		}
		if _, seen := byFamily[family]; !seen {
			order = append(order, family)
		}
		byFamily[family] = append(byFamily[family], row)
	}

	groups := make([][]models.ImportRow, 0, len(order))
	for _, family := range order {
		groups = append(groups, byFamily[family])
	}
	return groups
}
