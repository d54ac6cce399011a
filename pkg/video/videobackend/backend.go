package videobackend

import (
	"context"

	"github.com/tauraamui/framerelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

var ErrUnsupportedBackend = xerror.New("unsupported video backend")

// Settings describe the source a Connection decodes from.
type Settings struct {
	// ID labels diagnostics coming from the decode session.
	ID       string
	URL      string
	Geometry videoframe.Geometry
}

// Connection yields raw frame chunks from one decode session.
type Connection interface {
	// Read blocks until the next chunk is decoded. io.EOF marks the end of
	// the stream. A chunk may be shorter than the geometry payload when the
	// stream ends mid frame.
	Read() (videoframe.Raw, error)
	// Close tears the session down, forcing any blocked Read to return.
	// It is safe to call more than once and concurrently with Read.
	Close() error
}

type Backend interface {
	Name() string
	Connect(context.Context, Settings) (Connection, error)
}
