package layer

import (
	"time"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory_capabilities"

	"github.com/vkngwrapper/layers/shadow"
)

// InstanceCreateInfo carries the instance-creation parameters the layer
// inspects: the requested API version, the enabled instance extensions, and
// the extension chain.
type InstanceCreateInfo struct {
	ApplicationName    string
	ApplicationVersion common.Version
	EngineName         string
	EngineVersion      common.Version
	APIVersion         common.APIVersion

	EnabledExtensionNames []string

	NextOptions Option
}

type DeviceCreateInfo struct {
	EnabledExtensionNames []string

	NextOptions Option
}

type BufferCreateInfo struct {
	Flags              core1_0.BufferCreateFlags
	Size               int
	Usage              core1_0.BufferUsageFlags
	SharingMode        core1_0.SharingMode
	QueueFamilyIndices []int

	NextOptions Option
}

type ImageCreateInfo struct {
	Flags              core1_0.ImageCreateFlags
	ImageType          core1_0.ImageType
	Format             core1_0.Format
	Extent             core1_0.Extent3D
	MipLevels          int
	ArrayLayers        int
	Samples            core1_0.SampleCountFlags
	Tiling             core1_0.ImageTiling
	Usage              core1_0.ImageUsageFlags
	SharingMode        core1_0.SharingMode
	QueueFamilyIndices []int
	InitialLayout      core1_0.ImageLayout

	NextOptions Option
}

// BufferMemoryRequirementsInfo mirrors VkBufferMemoryRequirementsInfo2.
type BufferMemoryRequirementsInfo struct {
	Buffer shadow.BufferHandle
}

// ImageMemoryRequirementsInfo mirrors VkImageMemoryRequirementsInfo2.
type ImageMemoryRequirementsInfo struct {
	Image shadow.ImageHandle
}

type MemoryAllocateInfo struct {
	AllocationSize  int
	MemoryTypeIndex int

	NextOptions Option
}

type BindBufferMemoryInfo struct {
	Buffer shadow.BufferHandle
	Memory shadow.MemoryHandle
	Offset int

	NextOptions Option
}

type BindImageMemoryInfo struct {
	Image  shadow.ImageHandle
	Memory shadow.MemoryHandle
	Offset int

	NextOptions Option
}

type FenceCreateInfo struct {
	Flags core1_0.FenceCreateFlags

	NextOptions Option
}

// SubmitInfo is forwarded untouched: the layer only cares about the fence
// argument that accompanies the submission.
type SubmitInfo struct {
	WaitSemaphores   []shadow.SemaphoreHandle
	CommandBuffers   []uintptr
	SignalSemaphores []shadow.SemaphoreHandle
}

type SparseBindInfo struct {
	WaitSemaphores   []shadow.SemaphoreHandle
	SignalSemaphores []shadow.SemaphoreHandle
}

type PresentInfo struct {
	WaitSemaphores []shadow.SemaphoreHandle
	Swapchains     []shadow.SwapchainHandle
	ImageIndices   []int

	NextOptions Option
}

type AcquireNextImageInfo struct {
	Swapchain  shadow.SwapchainHandle
	Timeout    time.Duration
	Semaphore  shadow.SemaphoreHandle
	Fence      shadow.FenceHandle
	DeviceMask uint32
}

// DeviceEventType mirrors VkDeviceEventTypeEXT.
type DeviceEventType int32

const DeviceEventTypeDisplayHotplug DeviceEventType = 0

// DisplayEventType mirrors VkDisplayEventTypeEXT.
type DisplayEventType int32

const DisplayEventTypeFirstPixelOut DisplayEventType = 0

type DeviceEventInfo struct {
	DeviceEvent DeviceEventType
}

type DisplayEventInfo struct {
	DisplayEvent DisplayEventType
}

type PhysicalDeviceGroupProperties struct {
	PhysicalDevices  []shadow.PhysicalDeviceHandle
	SubsetAllocation bool
}

type MemoryFdProperties struct {
	MemoryTypeBits uint32
}

type HardwareBufferProperties struct {
	AllocationSize int
	MemoryTypeBits uint32
}

// ToolProperties mirrors VkPhysicalDeviceToolProperties.
type ToolProperties struct {
	Name        string
	Version     string
	Purposes    ToolPurposeFlags
	Description string
	Layer       string
}

type ToolPurposeFlags int32

var toolPurposeFlagsMapping = common.NewFlagStringMapping[ToolPurposeFlags]()

func (f ToolPurposeFlags) Register(str string) {
	toolPurposeFlagsMapping.Register(f, str)
}
func (f ToolPurposeFlags) String() string {
	return toolPurposeFlagsMapping.FlagsToString(f)
}

const (
	ToolPurposeValidation ToolPurposeFlags = 1 << iota
	ToolPurposeProfiling
	ToolPurposeTracing
	ToolPurposeAdditionalFeatures
	ToolPurposeModifyingFeatures
)

func init() {
	ToolPurposeValidation.Register("Validation")
	ToolPurposeProfiling.Register("Profiling")
	ToolPurposeTracing.Register("Tracing")
	ToolPurposeAdditionalFeatures.Register("AdditionalFeatures")
	ToolPurposeModifyingFeatures.Register("ModifyingFeatures")
}

// InstanceDriver is the next element in the dispatch chain for instance-level
// commands. Every intercepted command forwards through one of these methods
// before (or after, depending on the command) the layer updates its own state.
type InstanceDriver interface {
	CreateInstance(info InstanceCreateInfo) (shadow.InstanceHandle, common.VkResult, error)
	DestroyInstance(instance shadow.InstanceHandle)

	EnumeratePhysicalDevices(instance shadow.InstanceHandle) ([]shadow.PhysicalDeviceHandle, common.VkResult, error)
	EnumeratePhysicalDeviceGroups(instance shadow.InstanceHandle) ([]PhysicalDeviceGroupProperties, common.VkResult, error)

	GetPhysicalDeviceProperties(physicalDevice shadow.PhysicalDeviceHandle) (*core1_0.PhysicalDeviceProperties, error)
	GetPhysicalDeviceMemoryProperties(physicalDevice shadow.PhysicalDeviceHandle) (*core1_0.PhysicalDeviceMemoryProperties, error)
	GetPhysicalDeviceMemoryProperties2(physicalDevice shadow.PhysicalDeviceHandle, out *core1_1.PhysicalDeviceMemoryProperties2) error
	EnumerateDeviceExtensionProperties(physicalDevice shadow.PhysicalDeviceHandle) ([]core1_0.ExtensionProperties, common.VkResult, error)
	GetPhysicalDeviceToolProperties(physicalDevice shadow.PhysicalDeviceHandle) ([]ToolProperties, common.VkResult, error)

	// CreateDevice returns the dispatch interface for the new device along
	// with its handle, the way a layer's device dispatch table is built from
	// the next layer's GetDeviceProcAddr at device-creation time.
	CreateDevice(physicalDevice shadow.PhysicalDeviceHandle, info DeviceCreateInfo) (shadow.DeviceHandle, DeviceDriver, common.VkResult, error)
}

// DeviceDriver is the next element in the dispatch chain for device-level
// commands.
type DeviceDriver interface {
	DestroyDevice(device shadow.DeviceHandle)
	GetDeviceQueue(device shadow.DeviceHandle, queueFamilyIndex, queueIndex int) shadow.QueueHandle

	CreateBuffer(device shadow.DeviceHandle, info BufferCreateInfo) (shadow.BufferHandle, common.VkResult, error)
	DestroyBuffer(device shadow.DeviceHandle, buffer shadow.BufferHandle)
	CreateImage(device shadow.DeviceHandle, info ImageCreateInfo) (shadow.ImageHandle, common.VkResult, error)
	DestroyImage(device shadow.DeviceHandle, image shadow.ImageHandle)

	GetBufferMemoryRequirements(device shadow.DeviceHandle, buffer shadow.BufferHandle) core1_0.MemoryRequirements
	GetImageMemoryRequirements(device shadow.DeviceHandle, image shadow.ImageHandle) core1_0.MemoryRequirements
	GetBufferMemoryRequirements2(device shadow.DeviceHandle, info BufferMemoryRequirementsInfo, out *core1_1.MemoryRequirements2) error
	GetImageMemoryRequirements2(device shadow.DeviceHandle, info ImageMemoryRequirementsInfo, out *core1_1.MemoryRequirements2) error

	AllocateMemory(device shadow.DeviceHandle, info MemoryAllocateInfo) (shadow.MemoryHandle, common.VkResult, error)
	FreeMemory(device shadow.DeviceHandle, memory shadow.MemoryHandle)

	BindBufferMemory(device shadow.DeviceHandle, buffer shadow.BufferHandle, memory shadow.MemoryHandle, offset int) (common.VkResult, error)
	BindBufferMemory2(device shadow.DeviceHandle, binds []BindBufferMemoryInfo) (common.VkResult, error)
	BindImageMemory(device shadow.DeviceHandle, image shadow.ImageHandle, memory shadow.MemoryHandle, offset int) (common.VkResult, error)
	BindImageMemory2(device shadow.DeviceHandle, binds []BindImageMemoryInfo) (common.VkResult, error)

	GetMemoryFdProperties(device shadow.DeviceHandle, handleType khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags, fd int) (MemoryFdProperties, common.VkResult, error)
	GetHardwareBufferProperties(device shadow.DeviceHandle, hardwareBuffer shadow.HardwareBufferHandle) (HardwareBufferProperties, common.VkResult, error)

	CreateFence(device shadow.DeviceHandle, info FenceCreateInfo) (shadow.FenceHandle, common.VkResult, error)
	DestroyFence(device shadow.DeviceHandle, fence shadow.FenceHandle)
	ResetFences(device shadow.DeviceHandle, fences []shadow.FenceHandle) (common.VkResult, error)
	GetFenceStatus(device shadow.DeviceHandle, fence shadow.FenceHandle) (common.VkResult, error)
	WaitForFences(device shadow.DeviceHandle, fences []shadow.FenceHandle, waitAll bool, timeout time.Duration) (common.VkResult, error)

	RegisterDeviceEvent(device shadow.DeviceHandle, info DeviceEventInfo) (shadow.FenceHandle, common.VkResult, error)
	RegisterDisplayEvent(device shadow.DeviceHandle, display shadow.DisplayHandle, info DisplayEventInfo) (shadow.FenceHandle, common.VkResult, error)

	QueueSubmit(queue shadow.QueueHandle, submits []SubmitInfo, fence shadow.FenceHandle) (common.VkResult, error)
	QueueSubmit2(queue shadow.QueueHandle, submits []SubmitInfo, fence shadow.FenceHandle) (common.VkResult, error)
	QueueBindSparse(queue shadow.QueueHandle, binds []SparseBindInfo, fence shadow.FenceHandle) (common.VkResult, error)
	QueuePresent(queue shadow.QueueHandle, info PresentInfo) (common.VkResult, error)

	AcquireNextImage(device shadow.DeviceHandle, swapchain shadow.SwapchainHandle, timeout time.Duration, semaphore shadow.SemaphoreHandle, fence shadow.FenceHandle) (int, common.VkResult, error)
	AcquireNextImage2(device shadow.DeviceHandle, info AcquireNextImageInfo) (int, common.VkResult, error)
}
