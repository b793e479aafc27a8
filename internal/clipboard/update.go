package clipboard

import (
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

func (u Update) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("id", u.ID)
	e.Uint32("seat", uint32(u.Seat))
	e.Stringer("channel", u.Channel)
	e.Str("size", humanize.Bytes(uint64(len(u.Data))))
	e.Uint64("hash", u.Hash)
	e.Bool("password", u.Password)
}
