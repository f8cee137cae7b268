package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/block"
	"github.com/blockyarchive/blkar/internal/sbx/multihash"
	"github.com/blockyarchive/blkar/internal/scanner"
)

// ShowParams configures the show pipeline.
type ShowParams struct {
	InFile          string
	ExpectedVersion byte

	// SkipTo and To bound the scanned byte range. SkipTo is clamped to
	// zero. To only applies when ToSet is true; a negative To yields an
	// empty listing.
	SkipTo int64
	To     int64
	ToSet  bool

	// ShowAll keeps scanning past the first container's metadata and
	// additionally lists every data and parity block found. Each
	// container is reported once: byte identical metadata parity copies
	// are folded into their container's entry.
	ShowAll bool
}

// Show scans a container and lists its metadata, and with ShowAll the
// full block listing.
func Show(ctx context.Context, p ShowParams, rep *report.Reporter) ([]report.BlockInfo, *report.Stats, error) {
	start := time.Now()

	in, err := os.Open(p.InFile)
	if err != nil {
		return nil, nil, err
	}
	defer in.Close()
	inInfo, err := in.Stat()
	if err != nil {
		return nil, nil, err
	}

	from := p.SkipTo
	if from < 0 {
		from = 0
	}
	to := int64(-1)
	if p.ToSet {
		to = p.To
		if to < 0 {
			to = 0
		}
	}

	sc := scanner.New(in, inInfo.Size(), scanner.Options{
		FromByte:        from,
		ToByte:          to,
		ExpectedVersion: p.ExpectedVersion,
		StepByRefBlock:  false,
	})

	var blocks []report.BlockInfo
	stats := &report.Stats{}
	seenMeta := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return blocks, stats, fmt.Errorf("%w: show interrupted", ErrCancelled)
		default:
		}
		res, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return blocks, stats, err
		}
		stats.BlocksProcessed++

		if !res.Block.IsMeta() {
			stats.DataBlocksDecoded++
			if p.ShowAll {
				blocks = append(blocks, report.BlockInfo{
					SBXContainerVersion: int(res.Block.Header.Version),
					FileUID:             UIDString(res.Block.Header.FileUID),
					SeqNum:              res.Block.Header.SeqNum,
					Position:            res.Offset,
				})
			}
			continue
		}
		stats.MetaBlocksDecoded++

		// Metadata parity copies are byte identical to their container's
		// metadata block; fold them into one entry per container.
		key := fmt.Sprintf("%d|%s|", res.Block.Header.Version,
			UIDString(res.Block.Header.FileUID)) + string(res.Block.Payload)
		if seenMeta[key] {
			continue
		}
		seenMeta[key] = true

		blocks = append(blocks, metaBlockInfo(res))
		if !p.ShowAll {
			break
		}
	}

	stats.TimeElapsedSecs = time.Since(start).Seconds()
	return blocks, stats, nil
}

// metaBlockInfo renders a metadata block into a listing entry.
func metaBlockInfo(res scanner.Result) report.BlockInfo {
	info := report.BlockInfo{
		SBXContainerVersion: int(res.Block.Header.Version),
		FileUID:             UIDString(res.Block.Header.FileUID),
		SeqNum:              res.Block.Header.SeqNum,
		Position:            res.Offset,
	}
	meta, err := res.Block.Metadata()
	if err != nil {
		return info
	}
	if m := meta.Get(block.MetaFNM); m != nil {
		info.FileName = m.Str
	}
	if m := meta.Get(block.MetaSNM); m != nil {
		info.SBXContainerName = m.Str
	}
	if m := meta.Get(block.MetaFSZ); m != nil {
		info.FileSize = m.U64
	}
	if m := meta.Get(block.MetaHSH); m != nil {
		if d, err := multihash.Decode(m.Bytes); err == nil {
			info.Hash = fmt.Sprintf("%s - %x", multihash.FuncName(d.Code), d.Digest)
		}
	}
	return info
}
