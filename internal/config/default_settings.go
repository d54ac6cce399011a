package config

import "github.com/tauraamui/framerelay/pkg/configdef"

type defaultSettingKey uint

const (
	FFMPEGEXECUTABLE defaultSettingKey = 0x0
	VIDEOBACKEND     defaultSettingKey = 0x1
	PROCESSFREQUENCY defaultSettingKey = 0x2
	SLOTCOUNT        defaultSettingKey = 0x3
	METRICSPORT      defaultSettingKey = 0x4
	SOURCEPORT       defaultSettingKey = 0x5
	SOURCEPATH       defaultSettingKey = 0x6
	VIDEOWIDTH       defaultSettingKey = 0x7
	VIDEOHEIGHT      defaultSettingKey = 0x8
	BYTESPERPIXEL    defaultSettingKey = 0x9
	SOURCES          defaultSettingKey = 0xA
)

var defaultSettings = map[defaultSettingKey]interface{}{
	FFMPEGEXECUTABLE: "ffmpeg",
	VIDEOBACKEND:     "ffmpeg",
	PROCESSFREQUENCY: 30,
	SLOTCOUNT:        10,
	METRICSPORT:      9090,
	SOURCEPORT:       554,
	SOURCEPATH:       "/Streaming/Channels/102",
	VIDEOWIDTH:       640,
	VIDEOHEIGHT:      360,
	BYTESPERPIXEL:    3,
	SOURCES:          []configdef.Source{},
}
