package layer

import (
	"github.com/vkngwrapper/layers/shadow"
)

// decodeBufferOptions folds the recognized links of a buffer creation chain
// into a side record. Later duplicates of a link overwrite earlier ones, so
// decoding is a pure function of the chain.
func decodeBufferOptions(chain Option) shadow.BufferExtras {
	var extras shadow.BufferExtras

	for link := chain; link != nil; link = link.NextOption() {
		switch option := link.(type) {
		case *BufferOpaqueCaptureAddressOption:
			extras.Flags |= shadow.BufferExtraOpaqueCaptureAddress
			extras.OpaqueCaptureAddress = option.OpaqueCaptureAddress
		case *ExternalMemoryBufferOption:
			extras.Flags |= shadow.BufferExtraExternalMemory
			extras.ExternalMemoryHandleTypes = option.HandleTypes
		case *BufferDeviceAddressOption:
			extras.Flags |= shadow.BufferExtraDeviceAddress
			extras.DeviceAddress = option.DeviceAddress
		}
	}

	return extras
}

func decodeImageOptions(chain Option) shadow.ImageExtras {
	var extras shadow.ImageExtras

	for link := chain; link != nil; link = link.NextOption() {
		switch option := link.(type) {
		case *ExternalMemoryImageOption:
			extras.Flags |= shadow.ImageExtraExternalMemory
			extras.ExternalMemoryHandleTypes = option.HandleTypes
		case *ImageFormatListOption:
			extras.Flags |= shadow.ImageExtraFormatList
			extras.ViewFormats = append(extras.ViewFormats[:0], option.ViewFormats...)
		case *ImageStencilUsageOption:
			extras.Flags |= shadow.ImageExtraStencilUsage
			extras.StencilUsage = option.StencilUsage
		case *ImageSwapchainOption:
			extras.Flags |= shadow.ImageExtraSwapchain
			extras.Swapchain = option.Swapchain
		case *ImageCompressionControlOption:
			extras.Flags |= shadow.ImageExtraCompressionControl
			extras.CompressionFlags = option.Flags
			extras.CompressionFixedRateFlags = append(extras.CompressionFixedRateFlags[:0], option.FixedRateFlags...)
		case *ImageDrmFormatModifierExplicitOption:
			extras.Flags |= shadow.ImageExtraDrmModifierExplicit
			extras.DrmFormatModifier = option.DrmFormatModifier
			extras.DrmPlaneLayouts = append(extras.DrmPlaneLayouts[:0], option.PlaneLayouts...)
		case *ImageDrmFormatModifierListOption:
			extras.Flags |= shadow.ImageExtraDrmModifierList
			extras.DrmFormatModifiers = append(extras.DrmFormatModifiers[:0], option.DrmFormatModifiers...)
		case *ExternalFormatOption:
			if option.ExternalFormat != 0 {
				extras.Flags |= shadow.ImageExtraExternalFormat
				extras.ExternalFormat = option.ExternalFormat
			}
		}
	}

	return extras
}

func decodeMemoryOptions(chain Option) shadow.MemoryExtras {
	var extras shadow.MemoryExtras

	for link := chain; link != nil; link = link.NextOption() {
		switch option := link.(type) {
		case *ExportMemoryOption:
			extras.Flags |= shadow.MemoryExtraExport
			extras.ExportHandleTypes = option.HandleTypes
		case *DedicatedAllocationOption:
			if option.Buffer != 0 {
				extras.Flags |= shadow.MemoryExtraDedicatedBuffer
				extras.DedicatedBuffer = option.Buffer
			}
			if option.Image != 0 {
				extras.Flags |= shadow.MemoryExtraDedicatedImage
				extras.DedicatedImage = option.Image
			}
		case *MemoryAllocateFlagsOption:
			extras.Flags |= shadow.MemoryExtraAllocateFlags
			extras.AllocateFlags = option.Flags
			extras.DeviceMask = option.DeviceMask
		case *MemoryOpaqueCaptureAddressOption:
			extras.Flags |= shadow.MemoryExtraOpaqueCaptureAddress
			extras.OpaqueCaptureAddress = option.OpaqueCaptureAddress
		case *ImportMemoryFdOption:
			extras.Flags |= shadow.MemoryExtraImportFd
			extras.ImportFdHandleType = option.HandleType
			extras.ImportFd = option.Fd
		case *ImportMemoryHostPointerOption:
			extras.Flags |= shadow.MemoryExtraImportHostPointer
			extras.ImportHostPointerType = option.HandleType
			extras.ImportHostPointer = option.HostPointer
		case *MemoryPriorityOption:
			extras.Flags |= shadow.MemoryExtraPriority
			extras.Priority = option.Priority
		case *ImportHardwareBufferOption:
			extras.Flags |= shadow.MemoryExtraImportHardwareBuffer
			extras.ImportedHardwareBuffer = option.Buffer
		}
	}

	return extras
}

func decodeBindImageOptions(chain Option) shadow.ImageBindExtras {
	var extras shadow.ImageBindExtras

	for link := chain; link != nil; link = link.NextOption() {
		switch option := link.(type) {
		case *BindImagePlaneOption:
			extras.Flags |= shadow.ImageBindExtraPlane
			extras.PlaneAspect = option.PlaneAspect
		case *BindImageSwapchainOption:
			extras.Flags |= shadow.ImageBindExtraSwapchain
			extras.Swapchain = option.Swapchain
			extras.SwapchainImageIndex = option.ImageIndex
		}
	}

	return extras
}

// presentFences pulls the per-swapchain fence list out of a present chain, or
// nil when the chain has none.
func presentFences(chain Option) []shadow.FenceHandle {
	for link := chain; link != nil; link = link.NextOption() {
		if option, ok := link.(*PresentFenceOption); ok {
			return option.Fences
		}
	}
	return nil
}
