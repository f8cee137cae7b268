package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/blockyarchive/blkar/internal/fsutil"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/block"
)

// UpdateParams configures the metadata update pipeline.
type UpdateParams struct {
	InFile string

	// Field mutations. A nil pointer leaves the field alone; the Unset
	// flags remove the field entirely.
	SNM      *string
	FNM      *string
	UnsetSNM bool
	UnsetFNM bool

	DryRun bool
}

// Update edits the metadata block in place and rewrites its parity
// copies. Each rewritten metadata block yields one change set; fields
// that end up unchanged produce no entry.
func Update(ctx context.Context, p UpdateParams, rep *report.Reporter) ([]report.ChangeSet, *report.Stats, error) {
	start := time.Now()

	flags := os.O_RDWR
	if p.DryRun {
		flags = os.O_RDONLY
	}
	in, err := os.OpenFile(p.InFile, flags, 0)
	if err != nil {
		return nil, nil, err
	}
	defer in.Close()
	inInfo, err := in.Stat()
	if err != nil {
		return nil, nil, err
	}

	ref, err := findRefBlock(in, 0, nil)
	if err != nil {
		return nil, nil, err
	}
	layout, err := layoutFor(ref, inInfo.Size(), rep)
	if err != nil {
		return nil, nil, err
	}

	stats := &report.Stats{
		SBXVersion:  int(ref.Version),
		FileUID:     UIDString(ref.FileUID),
		BlockSize:   layout.BlockSize(),
		TotalBlocks: layout.TotalBlocks(),
	}

	changes := applyFieldMutations(ref.Meta, &p)
	if len(changes) == 0 {
		rep.Note("No metadata changes to apply")
		stats.TimeElapsedSecs = time.Since(start).Seconds()
		return nil, stats, nil
	}

	if err := ref.Block.SetMetadata(ref.Meta); err != nil {
		return nil, stats, err
	}
	buf := make([]byte, layout.BlockSize())
	if err := ref.Block.ToBytes(buf); err != nil {
		return nil, stats, err
	}

	var sets []report.ChangeSet
	for _, pos := range layout.MetaBlockPositions() {
		select {
		case <-ctx.Done():
			return sets, stats, fmt.Errorf("%w: update interrupted", ErrCancelled)
		default:
		}
		if !p.DryRun {
			if err := fsutil.WriteBlockAt(in, int64(pos), buf); err != nil {
				return sets, stats, err
			}
		}
		stats.BlocksWritten++
		sets = append(sets, report.ChangeSet{Changes: changes})
	}
	if !p.DryRun {
		if err := in.Sync(); err != nil {
			return sets, stats, err
		}
	}

	stats.TimeElapsedSecs = time.Since(start).Seconds()
	return sets, stats, nil
}

// applyFieldMutations mutates the metadata set and returns the list of
// effective changes.
func applyFieldMutations(meta *block.MetadataSet, p *UpdateParams) []report.FieldChange {
	var changes []report.FieldChange

	mutate := func(id block.MetadataID, newVal *string, unset bool) {
		old := ""
		if m := meta.Get(id); m != nil {
			old = m.Str
		}
		switch {
		case unset:
			if meta.Get(id) != nil {
				meta.Unset(id)
				changes = append(changes, report.FieldChange{
					Field: id.String(), From: old, To: "",
				})
			}
		case newVal != nil && *newVal != old:
			meta.Set(block.Metadata{ID: id, Str: *newVal})
			changes = append(changes, report.FieldChange{
				Field: id.String(), From: old, To: *newVal,
			})
		}
	}

	mutate(block.MetaSNM, p.SNM, p.UnsetSNM)
	mutate(block.MetaFNM, p.FNM, p.UnsetFNM)
	return changes
}
