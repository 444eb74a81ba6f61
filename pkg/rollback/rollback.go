package rollback

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peter-fm/tabdiff/pkg/chain"
	"github.com/peter-fm/tabdiff/pkg/diff"
	"github.com/peter-fm/tabdiff/pkg/errs"
	"github.com/peter-fm/tabdiff/pkg/store"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
	"github.com/peter-fm/tabdiff/pkg/workerpool"
)

// Options controls how Rollback applies a rollback-operation list (spec.md
// §4.7).
type Options struct {
	DryRun    bool
	Backup    bool
	Force     bool
	BatchSize int
}

// Report summarizes what Rollback did.
type Report struct {
	BaselineName string
	OpsApplied   int
	BackupPath   string
	Verified     bool
	DryRun       bool
}

// Executor is the Rollback Executor: it drives a baseline snapshot (loaded
// through the Chain Manager, reconstructing it if necessary) against a
// live Table Source and rewrites that source in place.
type Executor struct {
	Store *store.Store
	Chain *chain.Manager
	Pool  *workerpool.Pool
}

// New builds an Executor over st, using mgr to resolve/reconstruct
// baselines.
func New(st *store.Store, mgr *chain.Manager, pool *workerpool.Pool) *Executor {
	return &Executor{Store: st, Chain: mgr, Pool: pool}
}

// Rollback transforms src's current on-disk state back to baselineName's
// recorded state (spec.md §4.7). SQL sources are rejected outright: there
// is no "current file" for the Executor to rewrite, only a live query
// result the spec explicitly scopes out of rollback support.
func (e *Executor) Rollback(ctx context.Context, src tablesource.Source, baselineName string, opts Options) (*Report, error) {
	if src.Kind() == tablesource.KindSQL {
		return nil, errs.New(errs.KindUnsupportedSourceForRollback, src.Path())
	}

	baselineSchema, baselineRows, err := e.loadBaseline(baselineName)
	if err != nil {
		return nil, err
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = tablesource.DefaultBatchSize
	}
	current, err := diff.FromScan(ctx, src, batchSize)
	if err != nil {
		return nil, err
	}

	cs, err := diff.Detect(ctx, e.Pool, diff.Table{Schema: baselineSchema, Rows: baselineRows}, current)
	if err != nil {
		return nil, err
	}

	report := &Report{BaselineName: baselineName, OpsApplied: len(cs.RollbackOperations), DryRun: opts.DryRun}
	if opts.DryRun {
		return report, nil
	}

	targetPath := src.Path()
	if opts.Backup {
		backupPath, err := backupFile(targetPath, opts.Force)
		if err != nil {
			return nil, err
		}
		report.BackupPath = backupPath
	}

	newSchema, newRows, err := applyRollbackOps(current.Schema, current.Rows, cs.RollbackOperations)
	if err != nil {
		return nil, err
	}

	if err := rewrite(targetPath, newSchema, newRows); err != nil {
		return nil, err
	}

	verifyErr := e.verify(ctx, targetPath, baselineSchema, baselineRows, batchSize)
	if verifyErr != nil {
		if opts.Backup && report.BackupPath != "" {
			if restoreErr := restoreBackup(report.BackupPath, targetPath); restoreErr != nil {
				return nil, errs.Wrap(errs.KindRollbackVerificationFailed, fmt.Sprintf("rollback verification failed and restore from backup also failed: %v", restoreErr), verifyErr)
			}
		}
		return nil, errs.Wrap(errs.KindRollbackVerificationFailed, targetPath, verifyErr)
	}

	report.Verified = true
	return report, nil
}

// loadBaseline resolves baselineName to a schema and full row set,
// reconstructing through the chain if the snapshot itself is hash-only.
func (e *Executor) loadBaseline(name string) (tablesource.Schema, []tablesource.Row, error) {
	archive, err := e.Store.LoadArchive(name)
	if err != nil {
		return nil, nil, err
	}
	if archive.Metadata.HasFullData {
		return archive.Schema.ToSchema(), archive.FullRows, nil
	}
	schema, rows, err := e.Chain.Reconstruct(name)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindBaselineMissingFullData, name, err)
	}
	return schema, rows, nil
}

// verify re-scans path and confirms a fresh diff against the baseline is
// empty (spec.md §4.7 step 4's post-condition).
func (e *Executor) verify(ctx context.Context, path string, baselineSchema tablesource.Schema, baselineRows []tablesource.Row, batchSize int) error {
	src, err := tablesource.Open(path)
	if err != nil {
		return err
	}
	current, err := diff.FromScan(ctx, src, batchSize)
	if err != nil {
		return err
	}
	cs, err := diff.Detect(ctx, e.Pool, diff.Table{Schema: baselineSchema, Rows: baselineRows}, current)
	if err != nil {
		return err
	}
	if !cs.IsEmpty() {
		return fmt.Errorf("post-rollback state still differs from baseline")
	}
	return nil
}

// applyRollbackOps replays an ordered RollbackOp list against
// schema/rows: schema changes first (so row operations address the final
// column layout), then row removals (descending index), insertions
// (ascending index), then cell updates.
func applyRollbackOps(schema tablesource.Schema, rows []tablesource.Row, ops []diff.RollbackOp) (tablesource.Schema, []tablesource.Row, error) {
	const (
		opRemoveColumn   = "RemoveColumn"
		opAddColumn      = "AddColumn"
		opRenameColumn   = "RenameColumn"
		opReorderColumns = "ReorderColumns"
		opChangeType     = "ChangeType"
		opRemoveRow      = "RemoveRow"
		opInsertRow      = "InsertRow"
		opUpdateCell     = "UpdateCell"
	)

	source := append([]string(nil), schema.Names()...)
	defaults := make([]tablesource.Value, len(source))
	curSchema := append(tablesource.Schema(nil), schema...)

	isSchemaOp := func(t string) bool {
		switch t {
		case opRemoveColumn, opAddColumn, opRenameColumn, opReorderColumns, opChangeType:
			return true
		}
		return false
	}

	for _, op := range ops {
		if !isSchemaOp(op.Type) {
			continue
		}
		switch op.Type {
		case opRemoveColumn:
			name, _ := asString(op.Parameters["name"])
			idx := curSchema.IndexOf(name)
			if idx < 0 {
				continue
			}
			curSchema = append(curSchema[:idx], curSchema[idx+1:]...)
			source = append(source[:idx], source[idx+1:]...)
			defaults = append(defaults[:idx], defaults[idx+1:]...)

		case opAddColumn:
			name, _ := asString(op.Parameters["name"])
			typ, _ := asString(op.Parameters["type"])
			def := asValue(op.Parameters["default"])
			pos, ok := asInt(op.Parameters["position"])
			if !ok || pos < 0 || pos > len(curSchema) {
				pos = len(curSchema)
			}
			col := tablesource.Column{Name: name, Type: typ, Nullable: true}
			curSchema = append(curSchema, tablesource.Column{})
			copy(curSchema[pos+1:], curSchema[pos:])
			curSchema[pos] = col
			source = append(source, "")
			copy(source[pos+1:], source[pos:])
			source[pos] = ""
			defaults = append(defaults, tablesource.Value{})
			copy(defaults[pos+1:], defaults[pos:])
			defaults[pos] = def

		case opRenameColumn:
			from, _ := asString(op.Parameters["from"])
			to, _ := asString(op.Parameters["to"])
			if idx := curSchema.IndexOf(from); idx >= 0 {
				curSchema[idx].Name = to
			}

		case opReorderColumns:
			order := asStringSlice(op.Parameters["final_order"])
			newSchema := make(tablesource.Schema, 0, len(curSchema))
			newSource := make([]string, 0, len(source))
			newDefaults := make([]tablesource.Value, 0, len(defaults))
			used := make(map[string]bool, len(order))
			for _, name := range order {
				if idx := curSchema.IndexOf(name); idx >= 0 {
					newSchema = append(newSchema, curSchema[idx])
					newSource = append(newSource, source[idx])
					newDefaults = append(newDefaults, defaults[idx])
					used[name] = true
				}
			}
			for i, c := range curSchema {
				if !used[c.Name] {
					newSchema = append(newSchema, c)
					newSource = append(newSource, source[i])
					newDefaults = append(newDefaults, defaults[i])
				}
			}
			curSchema, source, defaults = newSchema, newSource, newDefaults

		case opChangeType:
			name, _ := asString(op.Parameters["name"])
			newType, _ := asString(op.Parameters["new_type"])
			if idx := curSchema.IndexOf(name); idx >= 0 {
				curSchema[idx].Type = newType
			}
		}
	}

	oldSchema := schema
	projected := make([]tablesource.Row, len(rows))
	for i, row := range rows {
		newRow := make(tablesource.Row, len(curSchema))
		for c, src := range source {
			if src == "" {
				newRow[c] = defaults[c]
				continue
			}
			if idx := oldSchema.IndexOf(src); idx >= 0 && idx < len(row) {
				newRow[c] = row[idx]
			} else {
				newRow[c] = tablesource.NullValue()
			}
		}
		projected[i] = newRow
	}

	working := projected

	type removeOp struct{ index int }
	var removes []removeOp
	type insertOp struct {
		index  int
		values map[string]tablesource.Value
	}
	var inserts []insertOp
	type updateOp struct {
		index  int
		column string
		value  tablesource.Value
	}
	var updates []updateOp

	for _, op := range ops {
		switch op.Type {
		case opRemoveRow:
			idx, _ := asInt(op.Parameters["row_index"])
			removes = append(removes, removeOp{index: idx})
		case opInsertRow:
			idx, _ := asInt(op.Parameters["row_index"])
			inserts = append(inserts, insertOp{index: idx, values: asValueMap(op.Parameters["values"])})
		case opUpdateCell:
			idx, _ := asInt(op.Parameters["row_index"])
			col, _ := asString(op.Parameters["column"])
			updates = append(updates, updateOp{index: idx, column: col, value: asValue(op.Parameters["value"])})
		}
	}

	sort.Slice(removes, func(i, j int) bool { return removes[i].index > removes[j].index })
	for _, r := range removes {
		if r.index < 0 || r.index >= len(working) {
			return nil, nil, fmt.Errorf("rollback: RemoveRow index %d out of range", r.index)
		}
		working = append(working[:r.index], working[r.index+1:]...)
	}

	sort.Slice(inserts, func(i, j int) bool { return inserts[i].index < inserts[j].index })
	for _, ins := range inserts {
		row := rowFromValues(curSchema, ins.values)
		if ins.index < 0 || ins.index > len(working) {
			working = append(working, row)
			continue
		}
		working = append(working, tablesource.Row{})
		copy(working[ins.index+1:], working[ins.index:])
		working[ins.index] = row
	}

	sort.Slice(updates, func(i, j int) bool { return updates[i].index < updates[j].index })
	for _, u := range updates {
		if u.index < 0 || u.index >= len(working) {
			return nil, nil, fmt.Errorf("rollback: UpdateCell index %d out of range", u.index)
		}
		if colIdx := curSchema.IndexOf(u.column); colIdx >= 0 {
			working[u.index][colIdx] = u.value
		}
	}

	return curSchema, working, nil
}

func rowFromValues(schema tablesource.Schema, values map[string]tablesource.Value) tablesource.Row {
	row := make(tablesource.Row, len(schema))
	for i, c := range schema {
		if v, ok := values[c.Name]; ok {
			row[i] = v
		} else {
			row[i] = tablesource.NullValue()
		}
	}
	return row
}

// rewrite re-encodes schema/rows to path in its original format, inferred
// from the file extension, using the same atomic writers the Table Source
// package exposes for each format.
func rewrite(path string, schema tablesource.Schema, rows []tablesource.Row) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return tablesource.WriteDelimited(path, schema, rows, ',')
	case ".tsv":
		return tablesource.WriteDelimited(path, schema, rows, '\t')
	case ".json":
		return tablesource.WriteJSON(path, schema, rows)
	case ".parquet":
		return tablesource.WriteParquet(path, schema, rows, "zstd")
	default:
		return fmt.Errorf("rollback: unsupported target extension %q", ext)
	}
}

// backupFile copies path to path+".backup", refusing to clobber an
// existing backup unless force is set.
func backupFile(path string, force bool) (string, error) {
	backupPath := path + ".backup"
	if !force {
		if _, err := os.Stat(backupPath); err == nil {
			return "", errs.New(errs.KindIOError, fmt.Sprintf("backup file already exists: %s (use force to overwrite)", backupPath))
		}
	}
	src, err := os.Open(path)
	if err != nil {
		return "", errs.Wrap(errs.KindIOError, path, err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", errs.Wrap(errs.KindIOError, backupPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", errs.Wrap(errs.KindIOError, backupPath, err)
	}
	return backupPath, nil
}

// restoreBackup copies backupPath back over targetPath after a failed
// verification.
func restoreBackup(backupPath, targetPath string) error {
	src, err := os.Open(backupPath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(targetPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}
