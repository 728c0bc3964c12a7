package layer

import (
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory_capabilities"

	"github.com/vkngwrapper/layers/shadow"
)

// Option is one link in the extension chain attached to a create or bind
// call. Chains are decoded into shadow side records; links the layer does not
// recognize are skipped without being recorded, and the full chain is always
// forwarded downstream untouched.
type Option interface {
	NextOption() Option
}

// ChainOption is embedded by every concrete option to provide the chain link.
type ChainOption struct {
	Next Option
}

func (o ChainOption) NextOption() Option {
	return o.Next
}

// BufferOpaqueCaptureAddressOption mirrors VkBufferOpaqueCaptureAddressCreateInfo.
type BufferOpaqueCaptureAddressOption struct {
	ChainOption

	OpaqueCaptureAddress uint64
}

// ExternalMemoryBufferOption mirrors VkExternalMemoryBufferCreateInfo.
type ExternalMemoryBufferOption struct {
	ChainOption

	HandleTypes khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
}

// BufferDeviceAddressOption mirrors VkBufferDeviceAddressCreateInfoEXT.
type BufferDeviceAddressOption struct {
	ChainOption

	DeviceAddress uint64
}

// ExternalMemoryImageOption mirrors VkExternalMemoryImageCreateInfo.
type ExternalMemoryImageOption struct {
	ChainOption

	HandleTypes khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
}

// ImageFormatListOption mirrors VkImageFormatListCreateInfo.
type ImageFormatListOption struct {
	ChainOption

	ViewFormats []core1_0.Format
}

// ImageStencilUsageOption mirrors VkImageStencilUsageCreateInfo.
type ImageStencilUsageOption struct {
	ChainOption

	StencilUsage core1_0.ImageUsageFlags
}

// ImageSwapchainOption mirrors VkImageSwapchainCreateInfoKHR.
type ImageSwapchainOption struct {
	ChainOption

	Swapchain shadow.SwapchainHandle
}

// ImageCompressionControlOption mirrors VkImageCompressionControlEXT.
type ImageCompressionControlOption struct {
	ChainOption

	Flags          shadow.ImageCompressionFlags
	FixedRateFlags []shadow.ImageCompressionFlags
}

// ImageDrmFormatModifierExplicitOption mirrors
// VkImageDrmFormatModifierExplicitCreateInfoEXT.
type ImageDrmFormatModifierExplicitOption struct {
	ChainOption

	DrmFormatModifier uint64
	PlaneLayouts      []core1_0.SubresourceLayout
}

// ImageDrmFormatModifierListOption mirrors
// VkImageDrmFormatModifierListCreateInfoEXT.
type ImageDrmFormatModifierListOption struct {
	ChainOption

	DrmFormatModifiers []uint64
}

// ExternalFormatOption mirrors VkExternalFormatANDROID.
type ExternalFormatOption struct {
	ChainOption

	ExternalFormat uint64
}

// ExportMemoryOption mirrors VkExportMemoryAllocateInfo.
type ExportMemoryOption struct {
	ChainOption

	HandleTypes khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
}

// DedicatedAllocationOption mirrors VkMemoryDedicatedAllocateInfo.
type DedicatedAllocationOption struct {
	ChainOption

	Buffer shadow.BufferHandle
	Image  shadow.ImageHandle
}

// MemoryAllocateFlagsOption mirrors VkMemoryAllocateFlagsInfo.
type MemoryAllocateFlagsOption struct {
	ChainOption

	Flags      core1_1.MemoryAllocateFlags
	DeviceMask uint32
}

// MemoryOpaqueCaptureAddressOption mirrors VkMemoryOpaqueCaptureAddressAllocateInfo.
type MemoryOpaqueCaptureAddressOption struct {
	ChainOption

	OpaqueCaptureAddress uint64
}

// ImportMemoryFdOption mirrors VkImportMemoryFdInfoKHR.
type ImportMemoryFdOption struct {
	ChainOption

	HandleType khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
	Fd         int
}

// ImportMemoryHostPointerOption mirrors VkImportMemoryHostPointerInfoEXT.
type ImportMemoryHostPointerOption struct {
	ChainOption

	HandleType  khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
	HostPointer uintptr
}

// MemoryPriorityOption mirrors VkMemoryPriorityAllocateInfoEXT.
type MemoryPriorityOption struct {
	ChainOption

	Priority float32
}

// ImportHardwareBufferOption mirrors VkImportAndroidHardwareBufferInfoANDROID.
type ImportHardwareBufferOption struct {
	ChainOption

	Buffer shadow.HardwareBufferHandle
}

// BindImagePlaneOption mirrors VkBindImagePlaneMemoryInfo.
type BindImagePlaneOption struct {
	ChainOption

	PlaneAspect core1_0.ImageAspectFlags
}

// BindImageSwapchainOption mirrors VkBindImageMemorySwapchainInfoKHR.
type BindImageSwapchainOption struct {
	ChainOption

	Swapchain  shadow.SwapchainHandle
	ImageIndex int
}

// PresentFenceOption mirrors VkSwapchainPresentFenceInfoEXT: one fence per
// swapchain in the present, signalled when that presentation completes.
type PresentFenceOption struct {
	ChainOption

	Fences []shadow.FenceHandle
}
