package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tauraamui/framerelay/pkg/configdef"
	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/xerror"
)

const (
	vendorName     = "tacusci"
	appName        = "framerelay"
	configFileName = "config.json"
	configPathEnv  = "FRAMERELAY_CONFIG"
)

var fs afero.Fs = afero.NewOsFs()

func load() (configdef.Values, error) {
	var values configdef.Values

	configPath, err := resolveConfigPath()
	if err != nil {
		return configdef.Values{}, err
	}

	log.Info("Resolved config file location: %s", configPath)
	file, err := readConfigFile(configPath)
	if err != nil {
		return configdef.Values{}, err
	}

	if err := unmarshal(file, &values); err != nil {
		return configdef.Values{}, err
	}

	loadDefaults(&values)

	if err = values.RunValidate(); err != nil {
		return configdef.Values{}, err
	}

	return values, nil
}

// loadDefaults fills in every setting left out of the file.
func loadDefaults(values *configdef.Values) {
	if len(values.FFmpegExecutable) == 0 {
		values.FFmpegExecutable = defaultSettings[FFMPEGEXECUTABLE].(string)
	}
	if len(values.VideoBackend) == 0 {
		values.VideoBackend = defaultSettings[VIDEOBACKEND].(string)
	}
	if values.ProcessFrequency == 0 {
		values.ProcessFrequency = defaultSettings[PROCESSFREQUENCY].(int)
	}
	if values.SlotCount == 0 {
		values.SlotCount = defaultSettings[SLOTCOUNT].(int)
	}
	if values.Metrics.Port == 0 {
		values.Metrics.Port = defaultSettings[METRICSPORT].(int)
	}

	for i := range values.Sources {
		src := &values.Sources[i]
		if src.Port == 0 {
			src.Port = defaultSettings[SOURCEPORT].(int)
		}
		if len(src.Path) == 0 {
			src.Path = defaultSettings[SOURCEPATH].(string)
		}
		if src.VideoWidth == 0 {
			src.VideoWidth = defaultSettings[VIDEOWIDTH].(int)
		}
		if src.VideoHeight == 0 {
			src.VideoHeight = defaultSettings[VIDEOHEIGHT].(int)
		}
		if src.BytesPerPixel == 0 {
			src.BytesPerPixel = defaultSettings[BYTESPERPIXEL].(int)
		}
	}
}

var readConfigFile = func(path string) ([]byte, error) {
	return afero.ReadFile(fs, path)
}

func unmarshal(content []byte, values *configdef.Values) error {
	err := json.Unmarshal(content, values)
	if err != nil {
		return errors.Errorf("parsing configuration error: %v", err)
	}
	return nil
}

func resolveConfigPath() (string, error) {
	configPath := os.Getenv(configPathEnv)
	if len(configPath) > 0 {
		return configPath, nil
	}

	configParentDir, err := userConfigDir()
	if err != nil {
		return "", xerror.Errorf("unable to resolve %s location: %w", configFileName, err)
	}

	return filepath.Join(
		configParentDir,
		vendorName,
		appName,
		configFileName), nil
}

var userConfigDir = func() (string, error) {
	return os.UserConfigDir()
}
