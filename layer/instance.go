package layer

import (
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/layers/shadow"
)

// CreateInstance forwards instance creation and, on success, begins tracking
// the instance with a freshly-parsed policy snapshot. A malformed settings
// value is logged and replaced with pass-through defaults rather than failing
// the downstream creation.
func (l *Layer) CreateInstance(info InstanceCreateInfo) (shadow.InstanceHandle, common.VkResult, error) {
	l.logger.Debug("Layer::CreateInstance")

	policy, err := parsePolicyConfig(l.settings)
	if err != nil {
		l.logger.Warn("ignoring invalid layer settings",
			slog.Any("error", err),
		)
	}

	instance, res, err := l.next.CreateInstance(info)
	if err != nil {
		return instance, res, err
	}

	caps := instanceCapabilities(info)
	l.graph.AddInstance(instance, caps, policy)

	l.logger.Debug("Layer::CreateInstance tracking",
		slog.String("policy.fenceDelayMode", policy.FenceDelayMode.String()),
		slog.Int("policy.fenceDelayCount", policy.FenceDelayCount),
		slog.Int("policy.memoryPercent", policy.MemoryPercent),
		slog.Bool("active", policy.Active()),
	)
	return instance, res, nil
}

// DestroyInstance forwards the destroy, then tears down the shadow records of
// the instance and everything reachable from it. Devices the application
// leaked are swept along with their buffers, images, memory and fences.
func (l *Layer) DestroyInstance(instance shadow.InstanceHandle) {
	l.logger.Debug("Layer::DestroyInstance")

	l.next.DestroyInstance(instance)
	l.graph.RemoveInstance(instance)
}

// EnumeratePhysicalDevices forwards the enumeration and tracks each returned
// physical device under its instance.
func (l *Layer) EnumeratePhysicalDevices(instance shadow.InstanceHandle) ([]shadow.PhysicalDeviceHandle, common.VkResult, error) {
	l.logger.Debug("Layer::EnumeratePhysicalDevices")

	physicalDevices, res, err := l.next.EnumeratePhysicalDevices(instance)
	if err != nil {
		return physicalDevices, res, err
	}

	for _, physicalDevice := range physicalDevices {
		l.graph.TrackPhysicalDevice(instance, physicalDevice)
	}
	return physicalDevices, res, nil
}

// EnumeratePhysicalDeviceGroups tracks every member of every returned group,
// since an application may only ever see a physical device through its group.
func (l *Layer) EnumeratePhysicalDeviceGroups(instance shadow.InstanceHandle) ([]PhysicalDeviceGroupProperties, common.VkResult, error) {
	l.logger.Debug("Layer::EnumeratePhysicalDeviceGroups")

	groups, res, err := l.next.EnumeratePhysicalDeviceGroups(instance)
	if err != nil {
		return groups, res, err
	}

	for _, group := range groups {
		for _, physicalDevice := range group.PhysicalDevices {
			l.graph.TrackPhysicalDevice(instance, physicalDevice)
		}
	}
	return groups, res, nil
}

// GetPhysicalDeviceToolProperties splices this layer's own entry into the
// downstream tool list when the simulation is active, so capture tools can
// see that results were shaped by it.
func (l *Layer) GetPhysicalDeviceToolProperties(physicalDevice shadow.PhysicalDeviceHandle) ([]ToolProperties, common.VkResult, error) {
	l.logger.Debug("Layer::GetPhysicalDeviceToolProperties")

	tools, res, err := l.next.GetPhysicalDeviceToolProperties(physicalDevice)
	if err != nil {
		return tools, res, err
	}

	physRecord := l.graph.PhysicalDevice(physicalDevice)
	if physRecord == nil || !physRecord.Policy.Active() {
		return tools, res, nil
	}

	tools = append(tools, ToolProperties{
		Name:        "Slow Device Simulator",
		Version:     "1",
		Purposes:    ToolPurposeModifyingFeatures,
		Description: "Simulates reduced memory budgets and delayed fence readiness",
		Layer:       LayerName,
	})
	return tools, res, nil
}
