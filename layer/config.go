package layer

import (
	"strconv"
	"strings"

	errgo "gopkg.in/errgo.v2/fmt/errors"

	"github.com/vkngwrapper/layers/shadow"
)

// Setting keys read from the loader's layer settings.
const (
	SettingFenceDelayType  = "fence_delay_type"
	SettingFenceDelayCount = "fence_delay_count"
	SettingMemoryPercent   = "memory_percent"
)

// Settings resolves layer settings by key. The loader-facing shim backs this
// with the layer settings file and environment; tests back it with a map.
type Settings interface {
	Setting(key string) (string, bool)
}

// MapSettings is a Settings backed by a plain map.
type MapSettings map[string]string

func (m MapSettings) Setting(key string) (string, bool) {
	value, ok := m[key]
	return value, ok
}

var fenceDelayModeValues = map[string]shadow.FenceDelayMode{
	"none":                shadow.FenceDelayNone,
	"ms_from_trigger":     shadow.FenceDelayMsFromTrigger,
	"ms_from_first_query": shadow.FenceDelayMsFromFirstQuery,
	"num_fail_waits":      shadow.FenceDelayNumFailWaits,
}

// parsePolicyConfig reads the simulation policy from settings. Absent keys
// keep their pass-through defaults. A malformed value produces an error along
// with the defaults, so a caller can log the problem and continue untouched
// rather than failing instance creation.
func parsePolicyConfig(settings Settings) (shadow.PolicyConfig, error) {
	policy := shadow.PolicyConfig{
		FenceDelayMode: shadow.FenceDelayNone,
		MemoryPercent:  100,
	}
	if settings == nil {
		return policy, nil
	}

	if value, ok := settings.Setting(SettingFenceDelayType); ok {
		mode, known := fenceDelayModeValues[strings.ToLower(strings.TrimSpace(value))]
		if !known {
			return policy, errgo.Newf("unrecognized %s value %q", SettingFenceDelayType, value)
		}
		policy.FenceDelayMode = mode
	}

	if value, ok := settings.Setting(SettingFenceDelayCount); ok {
		count, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return policy, errgo.Notef(err, nil, "parsing %s value %q", SettingFenceDelayCount, value)
		}
		if count < 0 {
			count = 0
		}
		policy.FenceDelayCount = count
	}

	if value, ok := settings.Setting(SettingMemoryPercent); ok {
		percent, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return policy, errgo.Notef(err, nil, "parsing %s value %q", SettingMemoryPercent, value)
		}
		if percent < 1 {
			percent = 1
		}
		if percent > 100 {
			percent = 100
		}
		policy.MemoryPercent = percent
	}

	return policy, nil
}

// adjustByPercent scales a byte count down to the configured percentage.
func adjustByPercent(size int, percent int) int {
	return int(float64(size) * float64(percent) / 100.0)
}
