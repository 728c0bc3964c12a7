package layer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/vkngwrapper/layers/shadow"
)

// The fake driver reports a 1000-byte device-local heap, so a 50 percent
// policy admits at most 500 bytes against heap 0.

func TestAllocateMemoryRejectsOverLimit(t *testing.T) {
	rig := newTestRig(t, MapSettings{
		SettingMemoryPercent: "50",
	})

	memory, res, err := rig.layer.AllocateMemory(rig.device, MemoryAllocateInfo{
		AllocationSize:  400,
		MemoryTypeIndex: 0,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.NotZero(t, memory)
	require.Equal(t, 1, rig.driver.allocateCalls)
	require.Equal(t, int64(400), rig.layer.Graph().HeapAllocated(testPhysicalHandle, 0))

	_, res, err = rig.layer.AllocateMemory(rig.device, MemoryAllocateInfo{
		AllocationSize:  200,
		MemoryTypeIndex: 0,
	})
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)

	// The rejected allocation never reached the driver and left no
	// accounting behind.
	require.Equal(t, 1, rig.driver.allocateCalls)
	require.Equal(t, int64(400), rig.layer.Graph().HeapAllocated(testPhysicalHandle, 0))
}

func TestAllocateMemoryRollsBackOnDriverFailure(t *testing.T) {
	rig := newTestRig(t, MapSettings{
		SettingMemoryPercent: "50",
	})
	rig.driver.failAllocate = true

	_, _, err := rig.layer.AllocateMemory(rig.device, MemoryAllocateInfo{
		AllocationSize:  100,
		MemoryTypeIndex: 0,
	})
	require.Error(t, err)
	require.Equal(t, 1, rig.driver.allocateCalls)
	require.Equal(t, int64(0), rig.layer.Graph().HeapAllocated(testPhysicalHandle, 0))
}

func TestFreeMemoryReturnsBytesToHeap(t *testing.T) {
	rig := newTestRig(t, MapSettings{
		SettingMemoryPercent: "50",
	})

	memory, _, err := rig.layer.AllocateMemory(rig.device, MemoryAllocateInfo{
		AllocationSize:  400,
		MemoryTypeIndex: 0,
	})
	require.NoError(t, err)

	rig.layer.FreeMemory(rig.device, memory)
	require.Equal(t, []shadow.MemoryHandle{memory}, rig.driver.freedMemory)
	require.Equal(t, int64(0), rig.layer.Graph().HeapAllocated(testPhysicalHandle, 0))
	require.Nil(t, rig.layer.Graph().Memory(rig.device, memory))

	// The freed bytes can be allocated again.
	_, res, err := rig.layer.AllocateMemory(rig.device, MemoryAllocateInfo{
		AllocationSize:  400,
		MemoryTypeIndex: 0,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
}

func TestAllocateMemoryHeapsAreIndependent(t *testing.T) {
	rig := newTestRig(t, MapSettings{
		SettingMemoryPercent: "50",
	})

	_, _, err := rig.layer.AllocateMemory(rig.device, MemoryAllocateInfo{
		AllocationSize:  500,
		MemoryTypeIndex: 0,
	})
	require.NoError(t, err)

	// Heap 1 is 2000 bytes, 1000 after rescaling; heap 0 being full does not
	// affect it.
	_, res, err := rig.layer.AllocateMemory(rig.device, MemoryAllocateInfo{
		AllocationSize:  900,
		MemoryTypeIndex: 1,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, int64(900), rig.layer.Graph().HeapAllocated(testPhysicalHandle, 1))
}

func TestAllocateMemoryPassThroughWhenInactive(t *testing.T) {
	rig := newTestRig(t, MapSettings{})

	_, res, err := rig.layer.AllocateMemory(rig.device, MemoryAllocateInfo{
		AllocationSize:  1 << 30,
		MemoryTypeIndex: 0,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, 1, rig.driver.allocateCalls)
	require.Equal(t, int64(0), rig.layer.Graph().HeapAllocated(testPhysicalHandle, 0))
}

func TestMemoryPropertiesRescaled(t *testing.T) {
	rig := newTestRig(t, MapSettings{
		SettingMemoryPercent: "25",
	})

	properties, err := rig.layer.GetPhysicalDeviceMemoryProperties(testPhysicalHandle)
	require.NoError(t, err)
	require.Equal(t, 250, properties.MemoryHeaps[0].Size)
	require.Equal(t, 500, properties.MemoryHeaps[1].Size)

	// Inactive policies leave the driver's numbers untouched.
	inactive := newTestRig(t, MapSettings{})
	properties, err = inactive.layer.GetPhysicalDeviceMemoryProperties(testPhysicalHandle)
	require.NoError(t, err)
	require.Equal(t, 1000, properties.MemoryHeaps[0].Size)
}

func TestGetMemoryFdPropertiesTracksDescriptor(t *testing.T) {
	rig := newTestRig(t, MapSettings{})

	properties, res, err := rig.layer.GetMemoryFdProperties(rig.device, opaqueFdHandleType, 17)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, uint32(0b10), properties.MemoryTypeBits)

	record := rig.layer.Graph().Fd(17)
	require.NotNil(t, record)
	require.Equal(t, rig.device, record.Device)
	require.Equal(t, uint32(0b10), record.MemoryTypeBits)
}

func TestGetHardwareBufferPropertiesTracksBuffer(t *testing.T) {
	rig := newTestRig(t, MapSettings{})

	properties, _, err := rig.layer.GetHardwareBufferProperties(rig.device, 0x900)
	require.NoError(t, err)
	require.Equal(t, 256, properties.AllocationSize)

	record := rig.layer.Graph().HardwareBuffer(0x900)
	require.NotNil(t, record)
	require.Equal(t, 256, record.AllocationSize)
}
