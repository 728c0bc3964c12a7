package layer

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/ext_memory_budget"

	"github.com/vkngwrapper/layers/shadow"
)

// GetPhysicalDeviceProperties forwards the query and caches the result so
// later diagnostics do not need another downstream round trip.
func (l *Layer) GetPhysicalDeviceProperties(physicalDevice shadow.PhysicalDeviceHandle) (*core1_0.PhysicalDeviceProperties, error) {
	l.logger.Debug("Layer::GetPhysicalDeviceProperties")

	properties, err := l.next.GetPhysicalDeviceProperties(physicalDevice)
	if err != nil {
		return properties, err
	}

	physRecord := l.graph.PhysicalDevice(physicalDevice)
	if physRecord != nil && physRecord.Policy.Active() {
		physRecord.SetProperties(properties)
	}
	return properties, nil
}

// GetPhysicalDeviceMemoryProperties forwards the query, then rewrites each
// heap size to the configured percentage before the result reaches the
// application. The rescaled topology is cached as the admission model.
func (l *Layer) GetPhysicalDeviceMemoryProperties(physicalDevice shadow.PhysicalDeviceHandle) (*core1_0.PhysicalDeviceMemoryProperties, error) {
	l.logger.Debug("Layer::GetPhysicalDeviceMemoryProperties")

	properties, err := l.next.GetPhysicalDeviceMemoryProperties(physicalDevice)
	if err != nil {
		return properties, err
	}

	physRecord := l.graph.PhysicalDevice(physicalDevice)
	if physRecord == nil || !physRecord.Policy.Active() {
		return properties, nil
	}

	if physRecord.Policy.ShrinksMemory() {
		for heapIndex := range properties.MemoryHeaps {
			properties.MemoryHeaps[heapIndex].Size = adjustByPercent(
				properties.MemoryHeaps[heapIndex].Size, physRecord.Policy.MemoryPercent)
		}
	}

	l.graph.CacheMemoryProperties(physicalDevice, properties.MemoryTypes, properties.MemoryHeaps)
	return properties, nil
}

// GetPhysicalDeviceMemoryProperties2 behaves like the non-extended query, and
// additionally rescales the reported heap usage when the caller chained a
// memory budget request. The driver's budget figures are reported and cached
// as-is so allocations can be admitted against the budget instead of the raw
// heap size.
func (l *Layer) GetPhysicalDeviceMemoryProperties2(physicalDevice shadow.PhysicalDeviceHandle, out *core1_1.PhysicalDeviceMemoryProperties2) error {
	l.logger.Debug("Layer::GetPhysicalDeviceMemoryProperties2")

	err := l.next.GetPhysicalDeviceMemoryProperties2(physicalDevice, out)
	if err != nil {
		return err
	}

	physRecord := l.graph.PhysicalDevice(physicalDevice)
	if physRecord == nil || !physRecord.Policy.Active() {
		return nil
	}

	memoryProperties := &out.MemoryProperties
	if physRecord.Policy.ShrinksMemory() {
		for heapIndex := range memoryProperties.MemoryHeaps {
			memoryProperties.MemoryHeaps[heapIndex].Size = adjustByPercent(
				memoryProperties.MemoryHeaps[heapIndex].Size, physRecord.Policy.MemoryPercent)
		}
	}
	l.graph.CacheMemoryProperties(physicalDevice, memoryProperties.MemoryTypes, memoryProperties.MemoryHeaps)

	budget, ok := out.NextOutData.Next.(*ext_memory_budget.PhysicalDeviceMemoryBudgetProperties)
	if !ok {
		return nil
	}

	heapCount := len(memoryProperties.MemoryHeaps)
	budgets := make([]int, 0, heapCount)
	usages := make([]int, 0, heapCount)
	for heapIndex := 0; heapIndex < heapCount && heapIndex < len(budget.HeapBudget); heapIndex++ {
		if physRecord.Policy.ShrinksMemory() {
			budget.HeapUsage[heapIndex] = adjustByPercent(
				budget.HeapUsage[heapIndex], physRecord.Policy.MemoryPercent)
		}
		budgets = append(budgets, budget.HeapBudget[heapIndex])
		usages = append(usages, budget.HeapUsage[heapIndex])
	}
	l.graph.CacheHeapBudgets(physicalDevice, budgets, usages)

	return nil
}

// EnumerateDeviceExtensionProperties forwards the enumeration and uses the
// result to discover, once, which relevant extensions the physical device
// supports. Device creation later consults this to decide whether the memory
// budget extension can be force-enabled.
func (l *Layer) EnumerateDeviceExtensionProperties(physicalDevice shadow.PhysicalDeviceHandle) ([]core1_0.ExtensionProperties, common.VkResult, error) {
	l.logger.Debug("Layer::EnumerateDeviceExtensionProperties")

	extensions, res, err := l.next.EnumerateDeviceExtensionProperties(physicalDevice)
	if err != nil {
		return extensions, res, err
	}

	physRecord := l.graph.PhysicalDevice(physicalDevice)
	if physRecord == nil || !physRecord.Policy.Active() {
		return extensions, res, nil
	}
	if _, known := physRecord.SupportedCapabilities(); known {
		return extensions, res, nil
	}

	var instanceCaps shadow.InstanceCapabilities
	if instanceRecord := l.graph.Instance(physRecord.Instance); instanceRecord != nil {
		instanceCaps = instanceRecord.Capabilities
	}

	names := make([]string, 0, len(extensions))
	for _, extension := range extensions {
		names = append(names, extension.ExtensionName)
	}
	physRecord.SetSupported(deviceCapabilities(instanceCaps, names))

	return extensions, res, nil
}

// supportedCapabilities returns the lazily-discovered support set, running
// the enumeration itself if nothing has queried it yet.
func (l *Layer) supportedCapabilities(physicalDevice shadow.PhysicalDeviceHandle) shadow.DeviceCapabilities {
	physRecord := l.graph.PhysicalDevice(physicalDevice)
	if physRecord == nil {
		return shadow.DeviceCapabilities{}
	}
	if _, known := physRecord.SupportedCapabilities(); !known {
		_, _, err := l.EnumerateDeviceExtensionProperties(physicalDevice)
		if err != nil {
			return shadow.DeviceCapabilities{}
		}
	}
	caps, _ := physRecord.SupportedCapabilities()
	return caps
}
