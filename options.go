package rtcdoc

import (
	"log/slog"

	"github.com/drpcorg/rtcdoc/rdx"
	"github.com/drpcorg/rtcdoc/utils"
	"github.com/google/uuid"
)

type Options struct {
	// Src is the replica (actor) id, 1..rdx.MaxSrc; 0 picks a random one.
	Src    uint64
	Logger utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Src == 0 {
		o.Src = NewSource()
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
}

// NewSource picks a random replica id.
func NewSource() uint64 {
	for {
		id := uuid.New()
		if src := uint64(id.ID()); src != 0 && src <= rdx.MaxSrc {
			return src
		}
	}
}
