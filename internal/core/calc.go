package core

import (
	"github.com/blockyarchive/blkar/internal/report"
	"github.com/blockyarchive/blkar/internal/sbx/rsc"
	"github.com/blockyarchive/blkar/internal/sbx/specs"
)

// CalcParams configures the calc pipeline.
type CalcParams struct {
	Version    byte
	RS         *specs.RSParams // nil for plain versions
	InFileSize uint64
}

// Calc computes the container geometry for a hypothetical input size
// without touching any file.
func Calc(p CalcParams) (*report.Stats, error) {
	if !specs.IsKnownVersion(p.Version) {
		return nil, specs.ErrUnknownVersion
	}
	if specs.UsesRS(p.Version) {
		if p.RS == nil {
			return nil, ErrUsage
		}
		if err := p.RS.Validate(); err != nil {
			return nil, err
		}
	} else if p.RS != nil {
		return nil, ErrUsage
	}

	layout, err := rsc.NewLayout(p.Version, p.RS, p.InFileSize)
	if err != nil {
		return nil, err
	}

	stats := &report.Stats{
		SBXVersion:    int(p.Version),
		BlockSize:     layout.BlockSize(),
		FileSize:      p.InFileSize,
		ContainerSize: layout.ContainerSize(),
		TotalBlocks:   layout.TotalBlocks(),
	}
	if p.RS != nil {
		stats.DataShards = p.RS.DataShards
		stats.ParityShards = p.RS.ParityShards
		stats.Burst = p.RS.Burst
	}
	return stats, nil
}
