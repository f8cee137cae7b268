// Package report renders pipeline progress and final statistics, either
// as human readable text or as the machine readable JSON contract: one
// top level JSON object per invocation, always with an "error" field.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Stats carries the per invocation counters. Fields tagged omitempty are
// left out of the JSON output when zero; blocksWritten,
// blocksFailedCheck, recordedHash, hashOfOutputFile and timeElapsedSecs
// are always present.
type Stats struct {
	SBXVersion        int     `json:"sbxVersion,omitempty"`
	FileUID           string  `json:"fileUID,omitempty"`
	BlockSize         int     `json:"blockSize,omitempty"`
	FileSize          uint64  `json:"fileSize,omitempty"`
	ContainerSize     uint64  `json:"containerSize,omitempty"`
	TotalBlocks       uint64  `json:"totalBlocks,omitempty"`
	DataShards        int     `json:"rsDataShards,omitempty"`
	ParityShards      int     `json:"rsParityShards,omitempty"`
	Burst             int     `json:"burst,omitempty"`
	BlocksWritten     uint64  `json:"blocksWritten"`
	BlocksProcessed   uint64  `json:"blocksProcessed,omitempty"`
	MetaBlocksDecoded uint64  `json:"metaBlocksDecoded,omitempty"`
	DataBlocksDecoded uint64  `json:"dataBlocksDecoded,omitempty"`
	BlocksFailedCheck uint64  `json:"blocksFailedCheck"`
	BlankBlocks       uint64  `json:"blankBlocks,omitempty"`
	BlocksRepaired    uint64  `json:"blocksRepaired,omitempty"`
	BlocksRepairFail  uint64  `json:"blocksFailedRepair,omitempty"`
	GroupsUnrecover   uint64  `json:"groupsUnrecoverable,omitempty"`
	RecordedHash      *string `json:"recordedHash"`
	HashOfOutputFile  *string `json:"hashOfOutputFile"`
	HashMatches       *bool   `json:"hashMatches,omitempty"`
	TimeElapsedSecs   float64 `json:"timeElapsedSecs"`
}

// BlockInfo is one entry of the "blocks" listing (show mode).
type BlockInfo struct {
	SBXContainerVersion int    `json:"sbxContainerVersion"`
	SBXContainerName    string `json:"sbxContainerName"`
	FileName            string `json:"fileName"`
	FileSize            uint64 `json:"fileSize"`
	FileUID             string `json:"fileUID"`
	SeqNum              uint32 `json:"seqNum"`
	Position            int64  `json:"position"`
	Hash                string `json:"hash,omitempty"`
}

// FieldChange is one metadata mutation (update mode).
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// ChangeSet groups the mutations applied to one metadata block.
type ChangeSet struct {
	Changes []FieldChange `json:"changes"`
}

// Report is the top level per invocation report object.
type Report struct {
	Error           *string     `json:"error"`
	Stats           *Stats      `json:"stats,omitempty"`
	Blocks          []BlockInfo `json:"blocks,omitempty"`
	MetadataChanges []ChangeSet `json:"metadataChanges,omitempty"`
}

// Progress is one progress event emitted by a pipeline.
type Progress struct {
	BytesIn       uint64
	BytesOut      uint64
	BlocksWritten uint64
	TotalBytes    uint64
}

// Reporter sinks progress events and renders the final report. In JSON
// mode progress is suppressed and exactly one JSON object is written to
// the output; in text mode progress goes to stderr, the report to the
// output writer.
type Reporter struct {
	JSON    bool
	Verbose bool

	out      io.Writer
	errOut   io.Writer
	interval time.Duration
	lastTick time.Time
	start    time.Time
}

// New creates a reporter writing the final report to out.
func New(out io.Writer, jsonMode, verbose bool) *Reporter {
	return &Reporter{
		JSON:     jsonMode,
		Verbose:  verbose,
		out:      out,
		errOut:   os.Stderr,
		interval: 300 * time.Millisecond,
		start:    time.Now(),
	}
}

// Elapsed returns the time since the reporter was created.
func (r *Reporter) Elapsed() float64 {
	return time.Since(r.start).Seconds()
}

// Progress emits a progress event. Events are rate limited and only
// rendered in text mode.
func (r *Reporter) Progress(p Progress) {
	if r.JSON {
		return
	}
	now := time.Now()
	if now.Sub(r.lastTick) < r.interval {
		return
	}
	r.lastTick = now
	if p.TotalBytes > 0 {
		fmt.Fprintf(r.errOut, "\rProgress: %d / %d bytes, %d blocks written",
			p.BytesIn, p.TotalBytes, p.BlocksWritten)
	} else {
		fmt.Fprintf(r.errOut, "\rProgress: %d bytes in, %d blocks written",
			p.BytesIn, p.BlocksWritten)
	}
}

// Note prints a free form informational line in text mode.
func (r *Reporter) Note(format string, args ...interface{}) {
	if r.JSON {
		return
	}
	fmt.Fprintf(r.errOut, format+"\n", args...)
}

// Finish renders the final report. err may be nil.
func (r *Reporter) Finish(rep *Report, err error) error {
	if !r.JSON {
		fmt.Fprintln(r.errOut)
	}
	if err != nil {
		msg := err.Error()
		rep.Error = &msg
	}
	if r.JSON {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return r.renderText(rep)
}

func (r *Reporter) renderText(rep *Report) error {
	w := r.out
	if rep.Error != nil {
		fmt.Fprintf(w, "Error : %s\n", *rep.Error)
	}
	if s := rep.Stats; s != nil {
		if s.SBXVersion != 0 {
			fmt.Fprintf(w, "SBX version                     : %d\n", s.SBXVersion)
		}
		if s.FileUID != "" {
			fmt.Fprintf(w, "File UID                        : %s\n", s.FileUID)
		}
		if s.BlockSize != 0 {
			fmt.Fprintf(w, "Block size                      : %d\n", s.BlockSize)
		}
		if s.FileSize != 0 {
			fmt.Fprintf(w, "File size                       : %d\n", s.FileSize)
		}
		if s.ContainerSize != 0 {
			fmt.Fprintf(w, "Container size                  : %d\n", s.ContainerSize)
		}
		if s.TotalBlocks != 0 {
			fmt.Fprintf(w, "Total number of blocks          : %d\n", s.TotalBlocks)
		}
		if s.DataShards != 0 {
			fmt.Fprintf(w, "RS data shards                  : %d\n", s.DataShards)
			fmt.Fprintf(w, "RS parity shards                : %d\n", s.ParityShards)
		}
		fmt.Fprintf(w, "Number of blocks written        : %d\n", s.BlocksWritten)
		if s.BlocksProcessed != 0 {
			fmt.Fprintf(w, "Number of blocks processed      : %d\n", s.BlocksProcessed)
		}
		if s.MetaBlocksDecoded != 0 {
			fmt.Fprintf(w, "Blocks passed check (metadata)  : %d\n", s.MetaBlocksDecoded)
		}
		if s.DataBlocksDecoded != 0 {
			fmt.Fprintf(w, "Blocks passed check (data)      : %d\n", s.DataBlocksDecoded)
		}
		fmt.Fprintf(w, "Number of blocks failed check   : %d\n", s.BlocksFailedCheck)
		if s.BlankBlocks != 0 {
			fmt.Fprintf(w, "Number of blank blocks          : %d\n", s.BlankBlocks)
		}
		if s.BlocksRepaired != 0 || s.BlocksRepairFail != 0 {
			fmt.Fprintf(w, "Number of blocks repaired       : %d\n", s.BlocksRepaired)
			fmt.Fprintf(w, "Number of blocks failed repair  : %d\n", s.BlocksRepairFail)
		}
		if s.RecordedHash != nil {
			fmt.Fprintf(w, "Recorded hash                   : %s\n", *s.RecordedHash)
		}
		if s.HashOfOutputFile != nil {
			fmt.Fprintf(w, "Hash of output file             : %s\n", *s.HashOfOutputFile)
		}
		if s.HashMatches != nil {
			if *s.HashMatches {
				fmt.Fprintf(w, "Recorded hash matches output file\n")
			} else {
				fmt.Fprintf(w, "Recorded hash does NOT match output file\n")
			}
		}
		fmt.Fprintf(w, "Time elapsed                    : %.2fs\n", s.TimeElapsedSecs)
	}
	for _, b := range rep.Blocks {
		fmt.Fprintf(w, "Block at %d: version %d, uid %s, seq %d\n",
			b.Position, b.SBXContainerVersion, b.FileUID, b.SeqNum)
		if b.SeqNum == 0 {
			if b.FileName != "" {
				fmt.Fprintf(w, "  File name          : %s\n", b.FileName)
			}
			if b.SBXContainerName != "" {
				fmt.Fprintf(w, "  Container name     : %s\n", b.SBXContainerName)
			}
			if b.FileSize != 0 {
				fmt.Fprintf(w, "  File size          : %d\n", b.FileSize)
			}
			if b.Hash != "" {
				fmt.Fprintf(w, "  Hash               : %s\n", b.Hash)
			}
		}
	}
	for _, cs := range rep.MetadataChanges {
		for _, c := range cs.Changes {
			fmt.Fprintf(w, "Metadata change: %s: %q -> %q\n", c.Field, c.From, c.To)
		}
	}
	return nil
}
