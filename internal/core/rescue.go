package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/blockyarchive/blkar/internal/fsutil"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/scanner"
)

// RescueParams configures the rescue pipeline.
type RescueParams struct {
	InFile  string
	OutDir  string
	LogFile string // defaults to <OutDir>/rescue.log

	// FromByte and ToByte bound the scanned range. ToSet distinguishes
	// an explicit To from scanning to end of stream.
	FromByte int64
	ToByte   int64
	ToSet    bool

	ExpectedUIDHex string
}

// Rescue salvages every valid block from an arbitrary byte stream into
// per container files, bucketed by (version, uid), in the order
// encountered. Each salvaged block is recorded in a log file.
func Rescue(ctx context.Context, p RescueParams, rep *report.Reporter) (*report.Stats, error) {
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

	if err := fsutil.CreateDirIfNotExists(p.OutDir); err != nil {
		return nil, err
	}

	// Misaligned probing keeps sector shifted containers recoverable at
	// the cost of scanning every byte offset.
	opts := scanner.Options{
		FromByte:       p.FromByte,
		ToByte:         -1,
		StepByRefBlock: false,
		Misalign:       true,
	}
	if p.ToSet {
		opts.ToByte = p.ToByte
		if opts.ToByte < 0 {
			opts.ToByte = 0
		}
	}
	if p.ExpectedUIDHex != "" {
		uid, err := ParseUID(p.ExpectedUIDHex)
		if err != nil {
			return nil, err
		}
		opts.ExpectedUID = &uid
	}

	logPath := p.LogFile
	if logPath == "" {
		logPath = filepath.Join(p.OutDir, "rescue.log")
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()
	logw := bufio.NewWriter(logFile)

	stats := &report.Stats{}
	outFiles := make(map[string]*os.File)
	defer func() {
		for _, f := range outFiles {
			f.Close()
		}
	}()

	sc := scanner.New(in, inInfo.Size(), opts)
	buf := make([]byte, 0)
	for {
		select {
		case <-ctx.Done():
			logw.Flush()
			return stats, fmt.Errorf("%w: rescue interrupted", ErrCancelled)
		default:
		}
		res, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}

		blk := res.Block
		uidHex := UIDString(blk.Header.FileUID)
		bucket := fmt.Sprintf("%d_%s", blk.Header.Version, uidHex)
		out, ok := outFiles[bucket]
		if !ok {
			out, err = os.OpenFile(filepath.Join(p.OutDir, bucket),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return stats, err
			}
			outFiles[bucket] = out
		}

		bs := blk.BlockSize()
		if cap(buf) < bs {
			buf = make([]byte, bs)
		}
		buf = buf[:bs]
		if err := blk.ToBytes(buf); err != nil {
			return stats, err
		}
		if _, err := out.Write(buf); err != nil {
			return stats, err
		}

		fmt.Fprintf(logw, "%d %d %s %d\n",
			res.Offset, blk.Header.Version, uidHex, blk.Header.SeqNum)

		if blk.IsMeta() {
			stats.MetaBlocksDecoded++
		} else {
			stats.DataBlocksDecoded++
		}
		stats.BlocksProcessed++
		stats.BlocksWritten++
		rep.Progress(report.Progress{
			BytesIn:       uint64(res.Offset),
			BlocksWritten: stats.BlocksWritten,
			TotalBytes:    uint64(inInfo.Size()),
		})
	}
	if err := logw.Flush(); err != nil {
		return stats, err
	}

	stats.TimeElapsedSecs = time.Since(start).Seconds()
	return stats, nil
}
