package diff

import (
	"context"
	"sort"

	"github.com/peter-fm/tabdiff/pkg/hashing"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
	"github.com/peter-fm/tabdiff/pkg/workerpool"
)

// similarityPassLimit bounds the O(n·m) similarity pass (spec.md §4.6.2
// step 6): it only runs when both candidate lists are at or below this
// size.
const similarityPassLimit = 1000

type pairResult struct {
	unchanged []UnchangedRow
	modified  []ModifiedRow
	added     []AddedRow
	removed   []RemovedRow
}

func pairRows(ctx context.Context, pool *workerpool.Pool, baseline, current Table) (pairResult, error) {
	inter := intersectionSchema(baseline.Schema, current.Schema)

	bFp := make([]string, len(baseline.Rows))
	if err := workerpool.ForEachIndexed(ctx, pool, len(baseline.Rows), func(i int) error {
		bFp[i] = hashing.RowFingerprint(inter, projectRow(baseline.Schema, baseline.Rows[i], inter))
		return nil
	}); err != nil {
		return pairResult{}, err
	}
	cFp := make([]string, len(current.Rows))
	if err := workerpool.ForEachIndexed(ctx, pool, len(current.Rows), func(i int) error {
		cFp[i] = hashing.RowFingerprint(inter, projectRow(current.Schema, current.Rows[i], inter))
		return nil
	}); err != nil {
		return pairResult{}, err
	}

	bByFp := make(map[string][]int, len(bFp))
	for i, fp := range bFp {
		bByFp[fp] = append(bByFp[fp], i)
	}
	cByFp := make(map[string][]int, len(cFp))
	for i, fp := range cFp {
		cByFp[fp] = append(cByFp[fp], i)
	}

	bConsumed := make([]bool, len(baseline.Rows))
	cConsumed := make([]bool, len(current.Rows))
	var unchanged []UnchangedRow

	for fp, bIndices := range bByFp {
		cIndices, ok := cByFp[fp]
		if !ok {
			continue
		}
		n := len(bIndices)
		if len(cIndices) < n {
			n = len(cIndices)
		}
		for i := 0; i < n; i++ {
			bConsumed[bIndices[i]] = true
			cConsumed[cIndices[i]] = true
			unchanged = append(unchanged, UnchangedRow{BIndex: bIndices[i], CIndex: cIndices[i]})
		}
	}

	var candRemoved, candAdded []int
	for i, used := range bConsumed {
		if !used {
			candRemoved = append(candRemoved, i)
		}
	}
	for i, used := range cConsumed {
		if !used {
			candAdded = append(candAdded, i)
		}
	}

	modifiedPairs := reclassifyPositional(candRemoved, candAdded)
	remainingRemoved, remainingAdded := subtractPairs(candRemoved, candAdded, modifiedPairs)

	if len(remainingRemoved) > 0 && len(remainingAdded) > 0 &&
		len(remainingRemoved) <= similarityPassLimit && len(remainingAdded) <= similarityPassLimit {
		simPairs := reclassifyBySimilarity(baseline, current, inter, remainingRemoved, remainingAdded)
		modifiedPairs = append(modifiedPairs, simPairs...)
		remainingRemoved, remainingAdded = subtractPairs(remainingRemoved, remainingAdded, simPairs)
	}

	sort.Slice(modifiedPairs, func(i, j int) bool { return modifiedPairs[i][0] < modifiedPairs[j][0] })

	var modified []ModifiedRow
	for _, pair := range modifiedPairs {
		b, c := pair[0], pair[1]
		changes := cellChanges(baseline.Schema, baseline.Rows[b], current.Schema, current.Rows[c])
		modified = append(modified, ModifiedRow{BIndex: b, CIndex: c, Changes: changes})
	}

	sort.Ints(remainingRemoved)
	sort.Ints(remainingAdded)

	var removed []RemovedRow
	for _, b := range remainingRemoved {
		removed = append(removed, RemovedRow{BIndex: b, Data: rowAsMap(baseline.Schema, baseline.Rows[b])})
	}
	var added []AddedRow
	for _, c := range remainingAdded {
		added = append(added, AddedRow{CIndex: c, Data: rowAsMap(current.Schema, current.Rows[c])})
	}

	sort.Slice(unchanged, func(i, j int) bool { return unchanged[i].BIndex < unchanged[j].BIndex })

	return pairResult{unchanged: unchanged, modified: modified, added: added, removed: removed}, nil
}

// reclassifyPositional pairs a candidate-removed and candidate-added row
// whose indices are identical (spec.md §4.6.2 step 5).
func reclassifyPositional(candRemoved, candAdded []int) [][2]int {
	addedSet := make(map[int]bool, len(candAdded))
	for _, c := range candAdded {
		addedSet[c] = true
	}
	var pairs [][2]int
	for _, b := range candRemoved {
		if addedSet[b] {
			pairs = append(pairs, [2]int{b, b})
		}
	}
	return pairs
}

func subtractPairs(removed, added []int, pairs [][2]int) ([]int, []int) {
	removedPaired := make(map[int]bool, len(pairs))
	addedPaired := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		removedPaired[p[0]] = true
		addedPaired[p[1]] = true
	}
	var outR, outA []int
	for _, b := range removed {
		if !removedPaired[b] {
			outR = append(outR, b)
		}
	}
	for _, c := range added {
		if !addedPaired[c] {
			outA = append(outA, c)
		}
	}
	return outR, outA
}

// reclassifyBySimilarity implements the O(n·m) bounded similarity pass
// (spec.md §4.6.2 step 6): each candidate-removed row pairs with the
// candidate-added row maximizing equal-cell count, provided that count
// meets the ceil(cols/2) threshold, tie-broken by |c-b| then smaller c.
func reclassifyBySimilarity(baseline, current Table, inter tablesource.Schema, candRemoved, candAdded []int) [][2]int {
	threshold := (len(inter) + 1) / 2
	addedUsed := make(map[int]bool, len(candAdded))
	var pairs [][2]int

	for _, b := range candRemoved {
		bRow := projectRow(baseline.Schema, baseline.Rows[b], inter)
		bestC := -1
		bestScore := -1
		for _, c := range candAdded {
			if addedUsed[c] {
				continue
			}
			cRow := projectRow(current.Schema, current.Rows[c], inter)
			score := equalCellCount(bRow, cRow)
			if score < threshold {
				continue
			}
			if score > bestScore || (score == bestScore && better(c, b, bestC)) {
				bestScore = score
				bestC = c
			}
		}
		if bestC >= 0 {
			addedUsed[bestC] = true
			pairs = append(pairs, [2]int{b, bestC})
		}
	}
	return pairs
}

func better(c, b, currentBest int) bool {
	if currentBest < 0 {
		return true
	}
	dNew := abs(c - b)
	dOld := abs(currentBest - b)
	if dNew != dOld {
		return dNew < dOld
	}
	return c < currentBest
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func equalCellCount(a, b tablesource.Row) int {
	n := 0
	for i := range a {
		if i < len(b) && a[i] == b[i] {
			n++
		}
	}
	return n
}

func cellChanges(bSchema tablesource.Schema, bRow tablesource.Row, cSchema tablesource.Schema, cRow tablesource.Row) map[string]CellChange {
	inter := intersectionSchema(bSchema, cSchema)
	changes := make(map[string]CellChange)
	for _, col := range inter {
		bv := projectRow(bSchema, bRow, tablesource.Schema{col})[0]
		cv := projectRow(cSchema, cRow, tablesource.Schema{col})[0]
		if bv != cv {
			changes[col.Name] = CellChange{Before: bv, After: cv}
		}
	}
	return changes
}

func rowAsMap(schema tablesource.Schema, row tablesource.Row) map[string]tablesource.Value {
	m := make(map[string]tablesource.Value, len(schema))
	for i, col := range schema {
		if i < len(row) {
			m[col.Name] = row[i]
		} else {
			m[col.Name] = tablesource.NullValue()
		}
	}
	return m
}
