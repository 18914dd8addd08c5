package target

import (
	"os"

	"gopkg.in/yaml.v3"

	"idbcore/internal/coreerr"
)

// registryEntry is one target's on-disk description in a targets.yaml
// registry file, mirroring internal/config's "plain YAML struct, missing
// file is not an error" loading convention.
type registryEntry struct {
	UDID         string   `yaml:"udid"`
	Kind         string   `yaml:"kind"`
	OSVersion    string   `yaml:"os_version"`
	Capabilities []string `yaml:"capabilities,omitempty"`
}

func parseKind(s string) Kind {
	switch s {
	case "simulator":
		return KindSimulator
	case "device":
		return KindDevice
	case "local-mac":
		return KindLocalMac
	default:
		return KindUnknown
	}
}

// LoadRegistry reads the target inventory at path: one entry per known
// simulator/device, as an operator or provisioning script maintains it.
// A missing file yields an empty inventory rather than an error, since a
// freshly installed daemon has registered nothing yet.
func LoadRegistry(path string) ([]*Target, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidArgument, "target.LoadRegistry", err, "failed to read %s", path)
	}

	var entries []registryEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidArgument, "target.LoadRegistry", err, "malformed target registry at %s", path)
	}

	targets := make([]*Target, 0, len(entries))
	for _, e := range entries {
		t := New(e.UDID, parseKind(e.Kind), e.OSVersion, e.Capabilities...)
		targets = append(targets, t)
	}
	return targets, nil
}
