package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckConfigCompatibility reports whether a configuration written for
// configVersion can be run by engineVersion.
//
// Major and minor must match; patch may differ. An empty configVersion or a
// "main" build on either side skips the check.
//
//   - engine 0.3.2, config 0.3.0 -> ok
//   - engine 0.4.0, config 0.3.0 -> minor mismatch
//   - engine 1.0.0, config 0.3.0 -> major mismatch
func CheckConfigCompatibility(engineVersion, configVersion string) error {
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	configVersion = strings.TrimPrefix(configVersion, "v")

	if configVersion == "" || engineVersion == "main" || configVersion == "main" {
		return nil
	}

	engine, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("invalid engine version '%s': %w", engineVersion, err)
	}

	cfg, err := semver.NewVersion(configVersion)
	if err != nil {
		return fmt.Errorf("invalid config version '%s': %w", configVersion, err)
	}

	if engine.Major() != cfg.Major() {
		return fmt.Errorf("major version mismatch: engine is %d.x.x but config targets %d.x.x",
			engine.Major(), cfg.Major())
	}

	if engine.Minor() != cfg.Minor() {
		return fmt.Errorf("minor version mismatch: engine is %d.%d.x but config targets %d.%d.x",
			engine.Major(), engine.Minor(), cfg.Major(), cfg.Minor())
	}

	return nil
}
