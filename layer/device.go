package layer

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/extensions/v2/ext_memory_budget"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/layers/shadow"
)

// CreateDevice forwards device creation and begins tracking the new device.
// When the simulation is active and the physical device supports it, the
// memory budget extension is appended to the forwarded extension list so the
// layer can refresh budgets after binding changes even if the application
// never asked for them.
func (l *Layer) CreateDevice(physicalDevice shadow.PhysicalDeviceHandle, info DeviceCreateInfo) (shadow.DeviceHandle, common.VkResult, error) {
	l.logger.Debug("Layer::CreateDevice")

	physRecord := l.graph.PhysicalDevice(physicalDevice)

	active := physRecord != nil && physRecord.Policy.Active()
	if active {
		supported := l.supportedCapabilities(physicalDevice)
		if supported.MemoryBudget && supported.Core11 && !containsName(info.EnabledExtensionNames, ext_memory_budget.ExtensionName) {
			extended := make([]string, 0, len(info.EnabledExtensionNames)+1)
			extended = append(extended, info.EnabledExtensionNames...)
			info.EnabledExtensionNames = append(extended, ext_memory_budget.ExtensionName)

			l.logger.Debug("Layer::CreateDevice enabling extension",
				slog.String("extension", ext_memory_budget.ExtensionName),
			)
		}
	}

	device, driver, res, err := l.next.CreateDevice(physicalDevice, info)
	if err != nil {
		return device, res, err
	}

	if physRecord == nil {
		// Created from a physical device this layer never saw enumerated;
		// keep forwarding but there is nothing to attach tracking to.
		return device, res, nil
	}

	var instanceCaps shadow.InstanceCapabilities
	if instanceRecord := l.graph.Instance(physRecord.Instance); instanceRecord != nil {
		instanceCaps = instanceRecord.Capabilities
	}
	caps := deviceCapabilities(instanceCaps, info.EnabledExtensionNames)

	if active {
		l.primePhysicalDevice(physicalDevice, physRecord)
	}

	l.setDeviceDriver(device, driver)
	l.graph.AddDevice(device, physicalDevice, caps, physRecord.Policy)

	if active {
		l.dumpDeviceState(device)
	}
	return device, res, nil
}

// primePhysicalDevice makes sure properties and the memory model are cached
// before the first allocation needs them.
func (l *Layer) primePhysicalDevice(physicalDevice shadow.PhysicalDeviceHandle, physRecord *shadow.PhysicalDevice) {
	if physRecord.CachedProperties() == nil {
		_, err := l.GetPhysicalDeviceProperties(physicalDevice)
		if err != nil {
			l.logger.Warn("Layer::CreateDevice failed to prime device properties",
				slog.Any("error", err),
			)
		}
	}
	if !physRecord.HasMemoryModel() {
		_, err := l.GetPhysicalDeviceMemoryProperties(physicalDevice)
		if err != nil {
			l.logger.Warn("Layer::CreateDevice failed to prime memory properties",
				slog.Any("error", err),
			)
		}
	}
}

// DestroyDevice forwards the destroy and then removes the device record along
// with everything it owns.
func (l *Layer) DestroyDevice(device shadow.DeviceHandle) {
	l.logger.Debug("Layer::DestroyDevice")

	driver := l.deviceDriver(device)
	if driver != nil {
		driver.DestroyDevice(device)
	}

	l.graph.RemoveDevice(device)
	l.dropDeviceDriver(device)
}

// GetDeviceQueue forwards the query and records which device owns the queue,
// since queue-level commands only receive the queue handle.
func (l *Layer) GetDeviceQueue(device shadow.DeviceHandle, queueFamilyIndex, queueIndex int) shadow.QueueHandle {
	l.logger.Debug("Layer::GetDeviceQueue")

	driver := l.deviceDriver(device)
	if driver == nil {
		return 0
	}

	queue := driver.GetDeviceQueue(device, queueFamilyIndex, queueIndex)
	if queue != 0 {
		l.graph.TrackQueue(queue, device)
	}
	return queue
}

func containsName(names []string, name string) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}
	return false
}
