package layer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/extensions/v2/ext_memory_budget"
	"github.com/vkngwrapper/extensions/v2/khr_bind_memory2"
	"github.com/vkngwrapper/extensions/v2/khr_device_group_creation"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/vkngwrapper/layers/shadow"
)

func TestInterceptsInstanceCommand(t *testing.T) {
	var none shadow.InstanceCapabilities

	require.True(t, InterceptsInstanceCommand(none, "vkCreateInstance"))
	require.True(t, InterceptsInstanceCommand(none, "vkGetPhysicalDeviceMemoryProperties"))
	require.False(t, InterceptsInstanceCommand(none, "vkGetPhysicalDeviceFeatures"))

	require.False(t, InterceptsInstanceCommand(none, "vkEnumeratePhysicalDeviceGroups"))
	require.True(t, InterceptsInstanceCommand(shadow.InstanceCapabilities{Core11: true}, "vkEnumeratePhysicalDeviceGroups"))

	require.False(t, InterceptsInstanceCommand(none, "vkEnumeratePhysicalDeviceGroupsKHR"))
	require.True(t, InterceptsInstanceCommand(shadow.InstanceCapabilities{DeviceGroupCreation: true}, "vkEnumeratePhysicalDeviceGroupsKHR"))

	require.False(t, InterceptsInstanceCommand(none, "vkGetPhysicalDeviceMemoryProperties2KHR"))
	require.True(t, InterceptsInstanceCommand(shadow.InstanceCapabilities{GetPhysicalDeviceProperties2: true}, "vkGetPhysicalDeviceMemoryProperties2KHR"))

	require.False(t, InterceptsInstanceCommand(none, "vkGetPhysicalDeviceToolProperties"))
	require.True(t, InterceptsInstanceCommand(shadow.InstanceCapabilities{Core13: true}, "vkGetPhysicalDeviceToolProperties"))
	require.True(t, InterceptsInstanceCommand(none, "vkGetPhysicalDeviceToolPropertiesEXT"))
}

func TestInterceptsDeviceCommand(t *testing.T) {
	var none shadow.DeviceCapabilities

	require.True(t, InterceptsDeviceCommand(none, "vkAllocateMemory"))
	require.True(t, InterceptsDeviceCommand(none, "vkWaitForFences"))
	require.False(t, InterceptsDeviceCommand(none, "vkCmdDraw"))

	require.False(t, InterceptsDeviceCommand(none, "vkQueueSubmit2"))
	require.True(t, InterceptsDeviceCommand(shadow.DeviceCapabilities{Core13: true}, "vkQueueSubmit2"))
	require.False(t, InterceptsDeviceCommand(none, "vkQueueSubmit2KHR"))
	require.True(t, InterceptsDeviceCommand(shadow.DeviceCapabilities{Synchronization2: true}, "vkQueueSubmit2KHR"))

	require.False(t, InterceptsDeviceCommand(none, "vkBindBufferMemory2KHR"))
	require.True(t, InterceptsDeviceCommand(shadow.DeviceCapabilities{BindMemory2: true}, "vkBindBufferMemory2KHR"))

	require.False(t, InterceptsDeviceCommand(none, "vkGetBufferMemoryRequirements2KHR"))
	require.True(t, InterceptsDeviceCommand(shadow.DeviceCapabilities{GetMemoryRequirements2: true}, "vkGetBufferMemoryRequirements2KHR"))
	require.True(t, InterceptsDeviceCommand(shadow.DeviceCapabilities{Core11: true}, "vkGetImageMemoryRequirements2"))

	require.False(t, InterceptsDeviceCommand(none, "vkGetMemoryFdPropertiesKHR"))
	require.True(t, InterceptsDeviceCommand(shadow.DeviceCapabilities{ExternalMemoryFd: true}, "vkGetMemoryFdPropertiesKHR"))

	require.False(t, InterceptsDeviceCommand(shadow.DeviceCapabilities{Swapchain: true}, "vkAcquireNextImage2KHR"))
	require.True(t, InterceptsDeviceCommand(shadow.DeviceCapabilities{Swapchain: true, Core11: true}, "vkAcquireNextImage2KHR"))

	require.False(t, InterceptsDeviceCommand(none, "vkRegisterDeviceEventEXT"))
	require.True(t, InterceptsDeviceCommand(shadow.DeviceCapabilities{DisplayControl: true}, "vkRegisterDeviceEventEXT"))
}

func TestInterceptedDeviceCommands(t *testing.T) {
	baseline := InterceptedDeviceCommands(shadow.DeviceCapabilities{})
	require.Contains(t, baseline, "vkQueueSubmit")
	require.Contains(t, baseline, "vkGetFenceStatus")
	require.NotContains(t, baseline, "vkQueuePresentKHR")

	withSwapchain := InterceptedDeviceCommands(shadow.DeviceCapabilities{Swapchain: true})
	require.Contains(t, withSwapchain, "vkQueuePresentKHR")
	require.Contains(t, withSwapchain, "vkAcquireNextImageKHR")
}

func TestInstanceCapabilities(t *testing.T) {
	caps := instanceCapabilities(InstanceCreateInfo{
		APIVersion: common.Vulkan1_0,
	})
	require.Equal(t, shadow.InstanceCapabilities{}, caps)

	caps = instanceCapabilities(InstanceCreateInfo{
		APIVersion: common.Vulkan1_2,
		EnabledExtensionNames: []string{
			khr_device_group_creation.ExtensionName,
		},
	})
	require.True(t, caps.Core11)
	require.True(t, caps.Core12)
	require.False(t, caps.Core13)
	require.True(t, caps.DeviceGroupCreation)

	caps = instanceCapabilities(InstanceCreateInfo{
		APIVersion: vulkan13,
	})
	require.True(t, caps.Core13)
}

func TestDeviceCapabilities(t *testing.T) {
	caps := deviceCapabilities(shadow.InstanceCapabilities{Core11: true}, []string{
		khr_swapchain.ExtensionName,
		khrSynchronization2Name,
		khr_bind_memory2.ExtensionName,
		khrExternalMemoryFdName,
		ext_memory_budget.ExtensionName,
	})

	require.True(t, caps.Core11)
	require.False(t, caps.Core12)
	require.True(t, caps.Swapchain)
	require.True(t, caps.Synchronization2)
	require.True(t, caps.BindMemory2)
	require.True(t, caps.ExternalMemoryFd)
	require.True(t, caps.MemoryBudget)
	require.False(t, caps.DisplayControl)
}
