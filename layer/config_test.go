package layer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/layers/shadow"
)

func TestParsePolicyConfigDefaults(t *testing.T) {
	policy, err := parsePolicyConfig(nil)
	require.NoError(t, err)
	require.Equal(t, shadow.PolicyConfig{
		FenceDelayMode: shadow.FenceDelayNone,
		MemoryPercent:  100,
	}, policy)
	require.False(t, policy.Active())

	policy, err = parsePolicyConfig(MapSettings{})
	require.NoError(t, err)
	require.False(t, policy.Active())
}

func TestParsePolicyConfigModes(t *testing.T) {
	cases := map[string]shadow.FenceDelayMode{
		"none":                shadow.FenceDelayNone,
		"ms_from_trigger":     shadow.FenceDelayMsFromTrigger,
		"ms_from_first_query": shadow.FenceDelayMsFromFirstQuery,
		"num_fail_waits":      shadow.FenceDelayNumFailWaits,
		" MS_FROM_TRIGGER ":   shadow.FenceDelayMsFromTrigger,
	}

	for value, mode := range cases {
		policy, err := parsePolicyConfig(MapSettings{
			SettingFenceDelayType:  value,
			SettingFenceDelayCount: "10",
		})
		require.NoError(t, err, value)
		require.Equal(t, mode, policy.FenceDelayMode, value)
		require.Equal(t, 10, policy.FenceDelayCount, value)
	}
}

func TestParsePolicyConfigUnknownMode(t *testing.T) {
	policy, err := parsePolicyConfig(MapSettings{
		SettingFenceDelayType: "sometimes",
	})
	require.Error(t, err)
	require.Equal(t, shadow.FenceDelayNone, policy.FenceDelayMode)
	require.Equal(t, 100, policy.MemoryPercent)
}

func TestParsePolicyConfigMalformedNumbers(t *testing.T) {
	policy, err := parsePolicyConfig(MapSettings{
		SettingFenceDelayCount: "several",
	})
	require.Error(t, err)
	require.Equal(t, 0, policy.FenceDelayCount)

	policy, err = parsePolicyConfig(MapSettings{
		SettingMemoryPercent: "half",
	})
	require.Error(t, err)
	require.Equal(t, 100, policy.MemoryPercent)
}

func TestParsePolicyConfigClamps(t *testing.T) {
	policy, err := parsePolicyConfig(MapSettings{
		SettingFenceDelayCount: "-5",
	})
	require.NoError(t, err)
	require.Equal(t, 0, policy.FenceDelayCount)

	policy, err = parsePolicyConfig(MapSettings{
		SettingMemoryPercent: "0",
	})
	require.NoError(t, err)
	require.Equal(t, 1, policy.MemoryPercent)
	require.True(t, policy.ShrinksMemory())

	policy, err = parsePolicyConfig(MapSettings{
		SettingMemoryPercent: "250",
	})
	require.NoError(t, err)
	require.Equal(t, 100, policy.MemoryPercent)
	require.False(t, policy.ShrinksMemory())
}

func TestAdjustByPercent(t *testing.T) {
	require.Equal(t, 500, adjustByPercent(1000, 50))
	require.Equal(t, 1000, adjustByPercent(1000, 100))
	require.Equal(t, 10, adjustByPercent(1000, 1))
	require.Equal(t, 0, adjustByPercent(0, 50))
}
