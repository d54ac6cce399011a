package config

import (
	"errors"
	"os"

	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/xerror"
)

func destroy() error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	if err := fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return xerror.Errorf("no config file to remove at %s: %w", path, err)
		}
		return xerror.Errorf("unable to remove config file: %w", err)
	}

	log.Info("Removed config file: %s", path)
	return nil
}
