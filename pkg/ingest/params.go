package ingest

import (
	"github.com/tauraamui/framerelay/pkg/video/videobackend"
)

// Params locate one camera stream.
type Params struct {
	Username string
	Password string
	IP       string
	Port     int
	Path     string
}

// Identity is the key two Params describing the same camera share.
func (p Params) Identity() string {
	return p.IP
}

func (p Params) URL() string {
	return videobackend.StreamURL(p.Username, p.Password, p.IP, p.Port, p.Path)
}
