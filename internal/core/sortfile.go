package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/blockyarchive/blkar/internal/fsutil"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/scanner"
)

// SortParams configures the sort pipeline.
type SortParams struct {
	InFile  string
	OutFile string
	Force   bool
}

// Sort re-emits a container's blocks in ascending sequence number order
// to a new file, normalizing the layout to zero burst resistance.
func Sort(ctx context.Context, p SortParams, rep *report.Reporter) (*report.Stats, error) {
	start := time.Now()

	in, err := os.Open(p.InFile)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	inInfo, err := in.Stat()
	if err != nil {
		return nil, err
	}

	ref, err := findRefBlock(in, 0, nil)
	if err != nil {
		return nil, err
	}
	layout, err := layoutFor(ref, inInfo.Size(), rep)
	if err != nil {
		return nil, err
	}

	stats := &report.Stats{
		SBXVersion:  int(ref.Version),
		FileUID:     UIDString(ref.FileUID),
		BlockSize:   layout.BlockSize(),
		FileSize:    layout.FileSize,
		TotalBlocks: layout.TotalBlocks(),
	}

	// First pass: map each sequence number to its source offset. The
	// first valid occurrence of a sequence number wins.
	seqOffset := make(map[uint32]int64)
	var metaOffset int64 = -1
	sc := scanner.New(in, inInfo.Size(), scanner.Options{
		ToByte:         -1,
		ExpectedUID:    &ref.FileUID,
		StepByRefBlock: true,
	})
	for {
		select {
		case <-ctx.Done():
			return stats, fmt.Errorf("%w: sort interrupted", ErrCancelled)
		default:
		}
		res, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.BlocksProcessed++
		seq := res.Block.Header.SeqNum
		if seq == 0 {
			if metaOffset < 0 {
				metaOffset = res.Offset
			}
			continue
		}
		if _, dup := seqOffset[seq]; !dup {
			seqOffset[seq] = res.Offset
		}
	}
	if metaOffset < 0 {
		return stats, ErrNoMetadata
	}

	out, err := fsutil.CreateOutputFile(p.OutFile, p.Force)
	if err != nil {
		return stats, err
	}
	defer out.Close()

	bs := layout.BlockSize()
	buf := make([]byte, bs)
	copyBlock := func(src, dst int64) error {
		if _, err := io.ReadFull(io.NewSectionReader(in, src, int64(bs)), buf); err != nil {
			return err
		}
		return fsutil.WriteBlockAt(out, dst, buf)
	}

	// Metadata copies at the front, then every data region block at its
	// logical position.
	for _, pos := range layout.MetaBlockPositions() {
		if err := copyBlock(metaOffset, int64(pos)); err != nil {
			return stats, err
		}
		stats.BlocksWritten++
	}
	lastSeq := layout.LastSeqNum()
	for seq := uint32(1); seq <= lastSeq; seq++ {
		select {
		case <-ctx.Done():
			return stats, fmt.Errorf("%w: sort interrupted", ErrCancelled)
		default:
		}
		src, ok := seqOffset[seq]
		if !ok {
			stats.BlocksFailedCheck++
			continue
		}
		if err := copyBlock(src, int64(layout.SeqToOffset(seq, 0))); err != nil {
			return stats, err
		}
		stats.BlocksWritten++
		rep.Progress(report.Progress{
			BytesIn:       uint64(seq) * uint64(bs),
			BytesOut:      stats.BlocksWritten * uint64(bs),
			BlocksWritten: stats.BlocksWritten,
			TotalBytes:    layout.ContainerSize(),
		})
	}
	if err := out.Sync(); err != nil {
		return stats, err
	}

	stats.TimeElapsedSecs = time.Since(start).Seconds()
	return stats, nil
}
