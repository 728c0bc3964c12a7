package layer

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/extensions/v2/ext_memory_budget"
	"github.com/vkngwrapper/extensions/v2/ext_memory_priority"
	"github.com/vkngwrapper/extensions/v2/khr_bind_memory2"
	"github.com/vkngwrapper/extensions/v2/khr_buffer_device_address"
	"github.com/vkngwrapper/extensions/v2/khr_device_group_creation"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory_capabilities"
	"github.com/vkngwrapper/extensions/v2/khr_get_memory_requirements2"
	"github.com/vkngwrapper/extensions/v2/khr_get_physical_device_properties2"
	"github.com/vkngwrapper/extensions/v2/khr_image_format_list"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/vkngwrapper/layers/shadow"
)

// Extension names that have no package in the wrapper libraries yet.
const (
	extDisplayControlName                = "VK_EXT_display_control"
	extExternalMemoryHostName            = "VK_EXT_external_memory_host"
	khrExternalMemoryFdName              = "VK_KHR_external_memory_fd"
	khrSynchronization2Name              = "VK_KHR_synchronization2"
	extSwapchainMaintenance1Name         = "VK_EXT_swapchain_maintenance1"
	extImageCompressionControlName       = "VK_EXT_image_compression_control"
	extImageDrmFormatModifierName        = "VK_EXT_image_drm_format_modifier"
	extToolingInfoName                   = "VK_EXT_tooling_info"
	androidExternalMemoryHardwareBuffers = "VK_ANDROID_external_memory_android_hardware_buffer"
)

type instanceCommand struct {
	name string
	when func(caps shadow.InstanceCapabilities) bool
}

type deviceCommand struct {
	name string
	when func(caps shadow.DeviceCapabilities) bool
}

// instanceCommands is the intercept table for instance-level dispatch. A nil
// predicate means the command is always claimed; otherwise it is claimed only
// when the instance was created with the matching version or extension, since
// claiming a command the instance never negotiated would change observable
// behavior.
var instanceCommands = []instanceCommand{
	{name: "vkCreateInstance"},
	{name: "vkDestroyInstance"},
	{name: "vkEnumeratePhysicalDevices"},
	{name: "vkEnumerateDeviceExtensionProperties"},
	{name: "vkGetPhysicalDeviceProperties"},
	{name: "vkGetPhysicalDeviceMemoryProperties"},
	{name: "vkCreateDevice"},

	{name: "vkEnumeratePhysicalDeviceGroups", when: func(caps shadow.InstanceCapabilities) bool {
		return caps.Core11
	}},
	{name: "vkEnumeratePhysicalDeviceGroupsKHR", when: func(caps shadow.InstanceCapabilities) bool {
		return caps.DeviceGroupCreation
	}},
	{name: "vkGetPhysicalDeviceMemoryProperties2", when: func(caps shadow.InstanceCapabilities) bool {
		return caps.Core11
	}},
	{name: "vkGetPhysicalDeviceMemoryProperties2KHR", when: func(caps shadow.InstanceCapabilities) bool {
		return caps.GetPhysicalDeviceProperties2
	}},
	{name: "vkGetPhysicalDeviceToolProperties", when: func(caps shadow.InstanceCapabilities) bool {
		return caps.Core13
	}},
	{name: "vkGetPhysicalDeviceToolPropertiesEXT"},
}

var deviceCommands = []deviceCommand{
	{name: "vkDestroyDevice"},
	{name: "vkGetDeviceQueue"},
	{name: "vkCreateBuffer"},
	{name: "vkDestroyBuffer"},
	{name: "vkCreateImage"},
	{name: "vkDestroyImage"},
	{name: "vkGetBufferMemoryRequirements"},
	{name: "vkGetImageMemoryRequirements"},
	{name: "vkAllocateMemory"},
	{name: "vkFreeMemory"},
	{name: "vkBindBufferMemory"},
	{name: "vkBindImageMemory"},
	{name: "vkCreateFence"},
	{name: "vkDestroyFence"},
	{name: "vkResetFences"},
	{name: "vkGetFenceStatus"},
	{name: "vkWaitForFences"},
	{name: "vkQueueSubmit"},
	{name: "vkQueueBindSparse"},

	{name: "vkBindBufferMemory2", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.Core11
	}},
	{name: "vkBindBufferMemory2KHR", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.BindMemory2
	}},
	{name: "vkGetBufferMemoryRequirements2", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.Core11
	}},
	{name: "vkGetBufferMemoryRequirements2KHR", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.GetMemoryRequirements2
	}},
	{name: "vkGetImageMemoryRequirements2", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.Core11
	}},
	{name: "vkGetImageMemoryRequirements2KHR", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.GetMemoryRequirements2
	}},
	{name: "vkBindImageMemory2", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.Core11
	}},
	{name: "vkBindImageMemory2KHR", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.BindMemory2
	}},
	{name: "vkQueueSubmit2", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.Core13
	}},
	{name: "vkQueueSubmit2KHR", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.Synchronization2
	}},
	{name: "vkGetMemoryFdPropertiesKHR", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.ExternalMemoryFd
	}},
	{name: "vkGetAndroidHardwareBufferPropertiesANDROID", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.ExternalMemoryHardwareBuffer
	}},
	{name: "vkQueuePresentKHR", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.Swapchain
	}},
	{name: "vkAcquireNextImageKHR", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.Swapchain
	}},
	{name: "vkAcquireNextImage2KHR", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.Swapchain && caps.Core11
	}},
	{name: "vkRegisterDeviceEventEXT", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.DisplayControl
	}},
	{name: "vkRegisterDisplayEventEXT", when: func(caps shadow.DeviceCapabilities) bool {
		return caps.DisplayControl
	}},
}

// InterceptsInstanceCommand reports whether dispatch should route name
// through this layer for an instance with the given capabilities.
func InterceptsInstanceCommand(caps shadow.InstanceCapabilities, name string) bool {
	for _, command := range instanceCommands {
		if command.name != name {
			continue
		}
		return command.when == nil || command.when(caps)
	}
	return false
}

// InterceptsDeviceCommand reports whether dispatch should route name through
// this layer for a device with the given capabilities.
func InterceptsDeviceCommand(caps shadow.DeviceCapabilities, name string) bool {
	for _, command := range deviceCommands {
		if command.name != name {
			continue
		}
		return command.when == nil || command.when(caps)
	}
	return false
}

// InterceptedInstanceCommands lists every command the layer claims for an
// instance with the given capabilities.
func InterceptedInstanceCommands(caps shadow.InstanceCapabilities) []string {
	var names []string
	for _, command := range instanceCommands {
		if command.when == nil || command.when(caps) {
			names = append(names, command.name)
		}
	}
	return names
}

func InterceptedDeviceCommands(caps shadow.DeviceCapabilities) []string {
	var names []string
	for _, command := range deviceCommands {
		if command.when == nil || command.when(caps) {
			names = append(names, command.name)
		}
	}
	return names
}

// instanceCapabilities derives the capability set from the requested API
// version and instance extension list.
func instanceCapabilities(info InstanceCreateInfo) shadow.InstanceCapabilities {
	caps := shadow.InstanceCapabilities{
		Core11: info.APIVersion >= common.Vulkan1_1,
		Core12: info.APIVersion >= common.Vulkan1_2,
		Core13: info.APIVersion >= vulkan13,
	}

	for _, name := range info.EnabledExtensionNames {
		switch name {
		case khr_device_group_creation.ExtensionName:
			caps.DeviceGroupCreation = true
		case khr_external_memory_capabilities.ExtensionName:
			caps.ExternalMemoryCapabilities = true
		case khr_get_physical_device_properties2.ExtensionName:
			caps.GetPhysicalDeviceProperties2 = true
		}
	}
	return caps
}

// deviceCapabilities derives the capability set from a device extension list
// and the version tier of its physical device's instance.
func deviceCapabilities(instanceCaps shadow.InstanceCapabilities, extensionNames []string) shadow.DeviceCapabilities {
	caps := shadow.DeviceCapabilities{
		Core11: instanceCaps.Core11,
		Core12: instanceCaps.Core12,
		Core13: instanceCaps.Core13,
	}

	for _, name := range extensionNames {
		applyDeviceExtension(&caps, name)
	}
	return caps
}

func applyDeviceExtension(caps *shadow.DeviceCapabilities, name string) {
	switch name {
	case khr_external_memory.ExtensionName:
		caps.ExternalMemory = true
	case khr_bind_memory2.ExtensionName:
		caps.BindMemory2 = true
	case khr_get_memory_requirements2.ExtensionName:
		caps.GetMemoryRequirements2 = true
	case khr_image_format_list.ExtensionName:
		caps.ImageFormatList = true
	case khrExternalMemoryFdName:
		caps.ExternalMemoryFd = true
	case extExternalMemoryHostName:
		caps.ExternalMemoryHost = true
	case androidExternalMemoryHardwareBuffers:
		caps.ExternalMemoryHardwareBuffer = true
	case khr_swapchain.ExtensionName:
		caps.Swapchain = true
	case extSwapchainMaintenance1Name:
		caps.SwapchainMaintenance1 = true
	case khrSynchronization2Name:
		caps.Synchronization2 = true
	case extDisplayControlName:
		caps.DisplayControl = true
	case ext_memory_budget.ExtensionName:
		caps.MemoryBudget = true
	case ext_memory_priority.ExtensionName:
		caps.MemoryPriority = true
	case extImageDrmFormatModifierName:
		caps.ImageDrmFormatModifier = true
	case extImageCompressionControlName:
		caps.ImageCompressionControl = true
	case khr_buffer_device_address.ExtensionName:
		caps.BufferDeviceAddress = true
	}
}
