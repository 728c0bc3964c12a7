package layer

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory_capabilities"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/layers/shadow"
)

// AllocateMemory admits the allocation against the shrunken heap before
// forwarding. A request that would push the heap past its budget (or its
// rescaled size, when no budget has been reported) is rejected with
// VK_ERROR_OUT_OF_DEVICE_MEMORY without ever reaching the driver, and leaves
// no accounting behind. Admission reserves atomically and rolls back if the
// driver then fails the allocation, so racing allocations cannot jointly
// exceed the limit.
func (l *Layer) AllocateMemory(device shadow.DeviceHandle, info MemoryAllocateInfo) (shadow.MemoryHandle, common.VkResult, error) {
	l.logger.Debug("Layer::AllocateMemory")

	driver := l.deviceDriver(device)
	if driver == nil {
		return 0, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	deviceRecord := l.graph.Device(device)

	reserved := false
	var physHandle shadow.PhysicalDeviceHandle
	var heapIndex int
	if deviceRecord != nil && deviceRecord.Policy.ShrinksMemory() {
		physHandle = deviceRecord.PhysicalDevice

		physRecord := l.graph.PhysicalDevice(physHandle)
		if physRecord != nil {
			var known bool
			heapIndex, known = physRecord.HeapIndexForType(info.MemoryTypeIndex)
			if known {
				if !l.graph.ReserveHeapAllocation(physHandle, heapIndex, info.AllocationSize) {
					l.logger.Debug("Layer::AllocateMemory rejected",
						slog.Int("allocationSize", info.AllocationSize),
						slog.Int("heapIndex", heapIndex),
						slog.Int64("heapAllocated", l.graph.HeapAllocated(physHandle, heapIndex)),
					)
					return 0, core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorOutOfDeviceMemory.ToError()
				}
				reserved = true
			}
		}
	}

	memory, res, err := driver.AllocateMemory(device, info)
	if err != nil {
		if reserved {
			l.graph.ReleaseHeapAllocation(physHandle, heapIndex, info.AllocationSize)
		}
		return memory, res, err
	}

	l.graph.AddMemory(device, memory, &shadow.Memory{
		AllocationSize:  info.AllocationSize,
		MemoryTypeIndex: info.MemoryTypeIndex,
		Extra:           decodeMemoryOptions(info.NextOptions),
	})
	return memory, res, nil
}

// FreeMemory forwards the free, gives the allocation's bytes back to its
// heap, and drops the shadow record along with its binding lists.
func (l *Layer) FreeMemory(device shadow.DeviceHandle, memory shadow.MemoryHandle) {
	l.logger.Debug("Layer::FreeMemory")

	driver := l.deviceDriver(device)
	if driver != nil {
		driver.FreeMemory(device, memory)
	}

	record := l.graph.RemoveMemory(device, memory)
	if record == nil {
		return
	}

	deviceRecord := l.graph.Device(device)
	if deviceRecord == nil || !deviceRecord.Policy.ShrinksMemory() {
		return
	}

	physRecord := l.graph.PhysicalDevice(deviceRecord.PhysicalDevice)
	if physRecord == nil {
		return
	}
	heapIndex, known := physRecord.HeapIndexForType(record.MemoryTypeIndex)
	if known {
		l.graph.ReleaseHeapAllocation(deviceRecord.PhysicalDevice, heapIndex, record.AllocationSize)
	}
}

// GetMemoryFdProperties forwards the query and records the memory type bits
// reported for the descriptor, keyed by the descriptor.
func (l *Layer) GetMemoryFdProperties(device shadow.DeviceHandle, handleType khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags, fd int) (MemoryFdProperties, common.VkResult, error) {
	l.logger.Debug("Layer::GetMemoryFdProperties")

	driver := l.deviceDriver(device)
	if driver == nil {
		return MemoryFdProperties{}, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	properties, res, err := driver.GetMemoryFdProperties(device, handleType, fd)
	if err != nil {
		return properties, res, err
	}

	l.graph.TrackFd(fd, &shadow.ExternalMemoryFd{
		Device:         device,
		MemoryTypeBits: properties.MemoryTypeBits,
	})
	return properties, res, nil
}

// GetHardwareBufferProperties forwards the query and records the reported
// size and memory type bits for the hardware buffer.
func (l *Layer) GetHardwareBufferProperties(device shadow.DeviceHandle, hardwareBuffer shadow.HardwareBufferHandle) (HardwareBufferProperties, common.VkResult, error) {
	l.logger.Debug("Layer::GetHardwareBufferProperties")

	driver := l.deviceDriver(device)
	if driver == nil {
		return HardwareBufferProperties{}, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	properties, res, err := driver.GetHardwareBufferProperties(device, hardwareBuffer)
	if err != nil {
		return properties, res, err
	}

	l.graph.TrackHardwareBuffer(hardwareBuffer, &shadow.HardwareBuffer{
		Device:         device,
		AllocationSize: properties.AllocationSize,
		MemoryTypeBits: properties.MemoryTypeBits,
	})
	return properties, res, nil
}
