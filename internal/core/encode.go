package core

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/blockyarchive/blkar/internal/fsutil"
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/block"
	"github.com/blockyarchive/blkar/internal/sbx/multihash"
	"github.com/blockyarchive/blkar/internal/sbx/rsc"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

// EncodeParams configures the encode pipeline.
type EncodeParams struct {
	InFile  string
	OutFile string
	Version byte
	RS      *specs.RSParams // nil for plain versions
	UID     *[specs.FileUIDLen]byte
	FNM     string // original file name override
	SNM     string // stored file name override
	Hash    string // hash algorithm name, default sha256
	Force   bool
}

func (p *EncodeParams) validate() error {
	if !specs.IsKnownVersion(p.Version) {
		return fmt.Errorf("%w: %v", specs.ErrUnknownVersion, p.Version)
	}
	if specs.UsesRS(p.Version) {
		if p.RS == nil {
			return fmt.Errorf("%w: version %d requires RS data and parity shard counts",
				ErrUsage, p.Version)
		}
		if err := p.RS.Validate(); err != nil {
			return err
		}
	} else if p.RS != nil {
		return fmt.Errorf("%w: version %d does not support RS parity",
			ErrUsage, p.Version)
	}
	return nil
}

// writeReq is one block write handed to the writer stage.
type writeReq struct {
	offset int64
	buf    []byte
}

// Encode streams a source file into an SBX container.
func Encode(ctx context.Context, p EncodeParams, rep *report.Reporter) (*report.Stats, error) {
	start := time.Now()

	if err := p.validate(); err != nil {
		return nil, err
	}
	hashName := p.Hash
	if hashName == "" {
		hashName = "sha256"
	}
	hashCode, err := multihash.CodeByName(hashName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	in, err := os.Open(p.InFile)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	inInfo, err := in.Stat()
	if err != nil {
		return nil, err
	}
	fileSize := uint64(inInfo.Size())

	layout, err := rsc.NewLayout(p.Version, p.RS, fileSize)
	if err != nil {
		return nil, err
	}

	var uid [specs.FileUIDLen]byte
	if p.UID != nil {
		uid = *p.UID
	} else if _, err := rand.Read(uid[:]); err != nil {
		return nil, err
	}

	out, err := fsutil.CreateOutputFile(p.OutFile, p.Force)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	hasher, err := multihash.New(hashCode)
	if err != nil {
		return nil, err
	}

	// Metadata block with a zero digest placeholder; the HSH record is
	// patched once the full file has been hashed.
	meta := buildMetadata(&p, inInfo, fileSize, hashCode)
	metaBlock, err := block.New(p.Version, uid, 0)
	if err != nil {
		return nil, err
	}
	if err := metaBlock.SetMetadata(meta); err != nil {
		return nil, err
	}

	blockSize := layout.BlockSize()
	metaBytes := make([]byte, blockSize)
	if err := metaBlock.ToBytes(metaBytes); err != nil {
		return nil, err
	}

	// Writer stage: owns the output file, applies writes in the order
	// received. The builder only emits strictly increasing offsets.
	writes := make(chan writeReq, queueDepth)
	writerDone := make(chan error, 1)
	go func() {
		for w := range writes {
			if err := fsutil.WriteBlockAt(out, w.offset, w.buf); err != nil {
				writerDone <- err
				for range writes {
				}
				return
			}
		}
		writerDone <- nil
	}()

	stats := &report.Stats{
		SBXVersion:    int(p.Version),
		FileUID:       UIDString(uid),
		BlockSize:     blockSize,
		FileSize:      fileSize,
		ContainerSize: layout.ContainerSize(),
		TotalBlocks:   layout.TotalBlocks(),
	}
	if p.RS != nil {
		stats.DataShards = p.RS.DataShards
		stats.ParityShards = p.RS.ParityShards
		stats.Burst = p.RS.Burst
	}

	err = encodeBody(ctx, p, layout, uid, in, hasher, metaBytes, writes, stats, rep)
	close(writes)
	if werr := <-writerDone; err == nil {
		err = werr
	}
	if err != nil {
		rep.Note("Output file %s is incomplete and may be removed", p.OutFile)
		return stats, err
	}

	// Patch the HSH record with the finalized digest and rewrite the
	// metadata block and its parity copies.
	digest := hasher.Sum()
	meta.Set(block.Metadata{ID: block.MetaHSH, Bytes: digest})
	if err := metaBlock.SetMetadata(meta); err != nil {
		return stats, err
	}
	if err := metaBlock.ToBytes(metaBytes); err != nil {
		return stats, err
	}
	for _, pos := range layout.MetaBlockPositions() {
		if err := fsutil.WriteBlockAt(out, int64(pos), metaBytes); err != nil {
			return stats, err
		}
	}
	if err := out.Sync(); err != nil {
		return stats, err
	}

	dec, _ := multihash.Decode(digest)
	h := fmt.Sprintf("%x", dec.Digest)
	stats.RecordedHash = &h
	stats.TimeElapsedSecs = time.Since(start).Seconds()
	return stats, nil
}

// buildMetadata assembles the encode time metadata TLV set.
func buildMetadata(p *EncodeParams, inInfo os.FileInfo, fileSize uint64, hashCode uint64) *block.MetadataSet {
	fnm := p.FNM
	if fnm == "" {
		fnm = filepath.Base(p.InFile)
	}
	snm := p.SNM
	if snm == "" {
		snm = filepath.Base(p.OutFile)
	}
	meta := &block.MetadataSet{}
	meta.Set(block.Metadata{ID: block.MetaFNM, Str: fnm})
	meta.Set(block.Metadata{ID: block.MetaSNM, Str: snm})
	meta.Set(block.Metadata{ID: block.MetaFSZ, U64: fileSize})
	meta.Set(block.Metadata{ID: block.MetaFDT, I64: inInfo.ModTime().Unix()})
	meta.Set(block.Metadata{ID: block.MetaSDT, I64: time.Now().Unix()})
	meta.Set(block.Metadata{ID: block.MetaHSH, Bytes: multihash.Placeholder(hashCode)})
	if p.RS != nil {
		meta.Set(block.Metadata{ID: block.MetaPID,
			Bytes: []byte{byte(p.RS.DataShards), byte(p.RS.ParityShards)}})
	}
	return meta
}

// encodeBody writes the metadata region and streams the data region.
func encodeBody(ctx context.Context, p EncodeParams, layout *rsc.Layout,
	uid [specs.FileUIDLen]byte, in io.Reader, hasher *multihash.Hasher,
	metaBytes []byte, writes chan<- writeReq, stats *report.Stats,
	rep *report.Reporter) error {

	blockSize := layout.BlockSize()
	dataSize := layout.DataSize()

	// Metadata block plus parity copies. The copies are byte identical;
	// RS parity over a single shard degenerates to replication.
	for _, pos := range layout.MetaBlockPositions() {
		buf := make([]byte, blockSize)
		copy(buf, metaBytes)
		writes <- writeReq{offset: int64(pos), buf: buf}
		stats.BlocksWritten++
	}

	var coder *rsc.Coder
	burst := 0
	if p.RS != nil {
		var err error
		coder, err = rsc.New(*p.RS)
		if err != nil {
			return err
		}
		burst = p.RS.Burst
	}

	// Reader stage: bounded queue of payload chunks.
	chunks := make(chan []byte, queueDepth)
	readErr := make(chan error, 1)
	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, dataSize)
			n, err := io.ReadFull(in, buf)
			if n > 0 {
				chunks <- buf[:n]
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				readErr <- nil
				return
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var (
		seq        uint32 = 1
		bytesIn    uint64
		groupData  [][]byte // payloads of the current RS group
		batch      []writeReq
		batchLimit = 1
		cancelled  bool
	)
	if p.RS != nil && burst > 0 {
		batchLimit = p.RS.GroupSize() * burst
	}

	emit := func(payload []byte) error {
		blk, err := block.New(layout.Version, uid, seq)
		if err != nil {
			return err
		}
		copy(blk.Payload, payload)
		buf := make([]byte, blockSize)
		if err := blk.ToBytes(buf); err != nil {
			return err
		}
		off := int64(layout.SeqToOffset(seq, burst))
		batch = append(batch, writeReq{offset: off, buf: buf})
		seq++
		if len(batch) >= batchLimit {
			flushBatch(&batch, writes, stats)
			rep.Progress(report.Progress{
				BytesIn:       bytesIn,
				BytesOut:      stats.BlocksWritten * uint64(blockSize),
				BlocksWritten: stats.BlocksWritten,
				TotalBytes:    layout.FileSize,
			})
		}
		return nil
	}

	emitGroup := func() error {
		if coder == nil {
			return nil
		}
		for len(groupData) < coder.Params().DataShards {
			pad := make([]byte, dataSize)
			if err := emit(pad); err != nil {
				return err
			}
			groupData = append(groupData, pad)
		}
		parity, err := coder.Encode(groupData)
		if err != nil {
			return err
		}
		for _, par := range parity {
			if err := emit(par); err != nil {
				return err
			}
		}
		groupData = groupData[:0]
		return nil
	}

	stream := func() error {
	loop:
		for chunk := range chunks {
			select {
			case <-ctx.Done():
				cancelled = true
				break loop
			default:
			}

			bytesIn += uint64(len(chunk))
			hasher.Write(chunk)

			payload := chunk
			if len(payload) < dataSize {
				padded := make([]byte, dataSize)
				copy(padded, payload)
				payload = padded
			}
			if err := emit(payload); err != nil {
				return err
			}
			if coder != nil {
				groupData = append(groupData, payload)
				if len(groupData) == coder.Params().DataShards {
					if err := emitGroup(); err != nil {
						return err
					}
				}
			}
		}

		// Flush the trailing partial group with zero padded data blocks
		// so the container geometry stays uniform.
		if len(groupData) > 0 {
			if err := emitGroup(); err != nil {
				return err
			}
		}
		flushBatch(&batch, writes, stats)

		if cancelled {
			return fmt.Errorf("%w: encode interrupted", ErrCancelled)
		}
		return nil
	}

	err := stream()

	// Drain the reader stage on every exit so its goroutine never stays
	// blocked on a channel send, then collect its result.
	for range chunks {
	}
	if rerr := <-readErr; err == nil {
		err = rerr
	}
	return err
}

// flushBatch hands a super group of writes to the writer in ascending
// offset order. The interleave permutation only reorders blocks within
// one super group, so sorting each batch preserves the global strictly
// increasing write order.
func flushBatch(batch *[]writeReq, writes chan<- writeReq, stats *report.Stats) {
	b := *batch
	sort.Slice(b, func(i, j int) bool { return b[i].offset < b[j].offset })
	for _, w := range b {
		writes <- w
		stats.BlocksWritten++
	}
	*batch = b[:0]
}
