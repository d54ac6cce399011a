package configdef

import (
	"net"
	"strconv"

	"github.com/tauraamui/framerelay/pkg/metrics"
	"github.com/tauraamui/xerror"
	"gopkg.in/dealancer/validate.v2"
)

type Source struct {
	Title         string `json:"title" validate:"empty=false"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	IP            string `json:"ip" validate:"empty=false"`
	Port          int    `json:"port" validate:"gte=1 & lte=65535"`
	Path          string `json:"path"`
	VideoWidth    int    `json:"video_width" validate:"gte=1"`
	VideoHeight   int    `json:"video_height" validate:"gte=1"`
	BytesPerPixel int    `json:"bytes_per_pixel" validate:"one_of=1,3,4"`
	Disabled      bool   `json:"disabled"`
}

// Address identifies the stream a source reads, ignoring credentials.
func (s Source) Address() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port)) + s.Path
}

type Values struct {
	Debug            bool           `json:"debug"`
	FFmpegExecutable string         `json:"ffmpeg_executable"`
	VideoBackend     string         `json:"video_backend" validate:"one_of=ffmpeg,opencv,mock"`
	ProcessFrequency int            `json:"process_frequency" validate:"gte=1 & lte=120"`
	SlotCount        int            `json:"slot_count" validate:"gte=2 & lte=1024"`
	Metrics          metrics.Config `json:"metrics"`
	Sources          []Source       `json:"sources"`
}

func (v Values) RunValidate() error {
	return validate.Validate(v)
}

func (v Values) Validate() error {
	const validationErrorHeader = "validation failed: %w"
	if HasDupSourceAddresses(v.Sources) {
		return xerror.Errorf(validationErrorHeader, xerror.New("source addresses must be unique"))
	}
	return nil
}

func HasDupSourceAddresses(sources []Source) bool {
	seen := map[string]struct{}{}
	for _, src := range sources {
		addr := src.Address()
		if _, ok := seen[addr]; ok {
			return true
		}
		seen[addr] = struct{}{}
	}
	return false
}
