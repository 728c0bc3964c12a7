package shadow

import (
	"time"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory_capabilities"

	"github.com/vkngwrapper/layers/internal/utils"
)

// FenceDelayMode selects how fence readiness is deferred after the fence is
// signalled downstream.
type FenceDelayMode int32

const (
	// FenceDelayNone leaves fence operations untouched.
	FenceDelayNone FenceDelayMode = iota
	// FenceDelayMsFromTrigger holds a fence unready until a wall-clock delay
	// measured from the call that armed it has elapsed.
	FenceDelayMsFromTrigger
	// FenceDelayMsFromFirstQuery holds a fence unready until a wall-clock delay
	// measured from the first status query has elapsed.
	FenceDelayMsFromFirstQuery
	// FenceDelayNumFailWaits holds a fence unready until its status has been
	// queried an additional number of times.
	FenceDelayNumFailWaits
)

var fenceDelayModeNames = map[FenceDelayMode]string{
	FenceDelayNone:             "none",
	FenceDelayMsFromTrigger:    "ms_from_trigger",
	FenceDelayMsFromFirstQuery: "ms_from_first_query",
	FenceDelayNumFailWaits:     "num_fail_waits",
}

func (m FenceDelayMode) String() string {
	name, ok := fenceDelayModeNames[m]
	if !ok {
		return "unknown"
	}
	return name
}

// PolicyConfig is the parsed simulation policy. It is captured once per
// instance and copied down to physical devices and devices so that later
// queries do not depend on the instance still existing.
type PolicyConfig struct {
	FenceDelayMode  FenceDelayMode
	FenceDelayCount int
	MemoryPercent   int
}

// Active indicates whether any policy diverges from pass-through behavior.
// When it is false the layer forwards every call untouched.
func (p PolicyConfig) Active() bool {
	return p.FenceDelayMode != FenceDelayNone || p.MemoryPercent != 100
}

// ShrinksMemory indicates whether heap sizes and budgets are being scaled down.
func (p PolicyConfig) ShrinksMemory() bool {
	return p.MemoryPercent < 100
}

// InstanceCapabilities records the version tier and the instance extensions
// that were actually enabled at instance creation, since interception of
// several commands is only legal when the matching capability was requested.
type InstanceCapabilities struct {
	Core11 bool
	Core12 bool
	Core13 bool

	DeviceGroupCreation          bool
	ExternalMemoryCapabilities   bool
	GetPhysicalDeviceProperties2 bool
	SurfaceCapabilities2         bool
}

// DeviceCapabilities records the device-level extensions in play. For a
// physical device it holds what the driver reports as supported; for a device
// it holds what creation actually enabled.
type DeviceCapabilities struct {
	Core11 bool
	Core12 bool
	Core13 bool

	ExternalMemory               bool
	ExternalMemoryFd             bool
	ExternalMemoryHost           bool
	ExternalMemoryHardwareBuffer bool
	BindMemory2                  bool
	GetMemoryRequirements2       bool
	ImageFormatList              bool
	Swapchain                    bool
	SwapchainMaintenance1        bool
	Synchronization2             bool
	DisplayControl               bool
	MemoryBudget                 bool
	MemoryPriority               bool
	ImageDrmFormatModifier       bool
	ImageCompressionControl      bool
	BufferDeviceAddress          bool
}

// HeapBudget is the layer's view of one memory heap: the (possibly rescaled)
// size and budget, the driver-reported usage, and the bytes this layer has
// admitted against the heap.
type HeapBudget struct {
	Size      int
	Budget    int
	Usage     int
	Allocated int64
	Flags     core1_0.MemoryHeapFlags
}

// Limit returns the byte count that admission checks run against: the budget
// when the driver reported one, otherwise the heap size.
func (h *HeapBudget) Limit() int {
	if h.Budget > 0 {
		return h.Budget
	}
	return h.Size
}

// MemoryModel is the cached memory topology of one physical device.
type MemoryModel struct {
	TypeCount int
	Types     [common.MaxMemoryTypes]core1_0.MemoryType
	HeapCount int
	Heaps     [common.MaxMemoryHeaps]HeapBudget
}

// HeapIndexForType maps a memory type index to its heap index. The second
// return is false when the index is out of range for the cached topology.
func (m *MemoryModel) HeapIndexForType(typeIndex int) (int, bool) {
	if typeIndex < 0 || typeIndex >= m.TypeCount {
		return 0, false
	}
	return m.Types[typeIndex].HeapIndex, true
}

type Instance struct {
	Capabilities InstanceCapabilities
	Policy       PolicyConfig
}

type PhysicalDevice struct {
	Instance InstanceHandle
	Policy   PolicyConfig

	// Properties is populated on first query and reused afterwards.
	Properties *core1_0.PhysicalDeviceProperties
	Memory     MemoryModel
	// BudgetFresh is cleared whenever a binding changes and set again when a
	// budget query has refreshed the heap usage numbers.
	BudgetFresh bool
	// Supported is filled lazily from device extension enumeration.
	Supported      DeviceCapabilities
	SupportedKnown bool

	// DeviceMutex serializes device creation and destruction against teardown
	// iteration over this physical device's devices.
	DeviceMutex utils.OptionalMutex

	// StateMutex guards Properties, the Memory topology, BudgetFresh,
	// Supported and SupportedKnown. It is a leaf lock: nothing else is
	// acquired while it is held. The per-heap Allocated counters are atomic
	// and stay readable without it.
	StateMutex utils.OptionalMutex
}

// SetProperties caches the driver-reported device properties.
func (p *PhysicalDevice) SetProperties(properties *core1_0.PhysicalDeviceProperties) {
	p.StateMutex.Lock()
	defer p.StateMutex.Unlock()

	p.Properties = properties
}

// CachedProperties returns the properties cached by the last query, or nil.
func (p *PhysicalDevice) CachedProperties() *core1_0.PhysicalDeviceProperties {
	p.StateMutex.Lock()
	defer p.StateMutex.Unlock()

	return p.Properties
}

// HasMemoryModel reports whether a memory topology has been cached yet.
func (p *PhysicalDevice) HasMemoryModel() bool {
	return p.heapCount() > 0
}

func (p *PhysicalDevice) heapCount() int {
	p.StateMutex.Lock()
	defer p.StateMutex.Unlock()

	return p.Memory.HeapCount
}

// HeapIndexForType resolves a memory type index against the cached topology.
func (p *PhysicalDevice) HeapIndexForType(typeIndex int) (int, bool) {
	p.StateMutex.Lock()
	defer p.StateMutex.Unlock()

	return p.Memory.HeapIndexForType(typeIndex)
}

// SetSupported records the lazily-discovered device extension support set.
func (p *PhysicalDevice) SetSupported(caps DeviceCapabilities) {
	p.StateMutex.Lock()
	defer p.StateMutex.Unlock()

	p.Supported = caps
	p.SupportedKnown = true
}

// SupportedCapabilities returns the discovered support set and whether
// discovery has run.
func (p *PhysicalDevice) SupportedCapabilities() (DeviceCapabilities, bool) {
	p.StateMutex.Lock()
	defer p.StateMutex.Unlock()

	return p.Supported, p.SupportedKnown
}

// NeedsBudgetRefresh reports whether the budget snapshot has been invalidated
// by a binding change since the last budget query.
func (p *PhysicalDevice) NeedsBudgetRefresh() bool {
	p.StateMutex.Lock()
	defer p.StateMutex.Unlock()

	return !p.BudgetFresh
}

type Device struct {
	PhysicalDevice PhysicalDeviceHandle
	Capabilities   DeviceCapabilities
	Policy         PolicyConfig

	// BindingsChanged is set when a buffer or image binding on this device
	// changes and cleared once a submit has refreshed the budget snapshot.
	BindingsChanged bool

	// buffers, images and memory share memoryMutex; fences have their own
	// lock so fence polling never contends with binding traffic.
	buffers *Registry[BufferHandle, Buffer]
	images  *Registry[ImageHandle, Image]
	memory  *Registry[MemoryHandle, Memory]
	fences  *Registry[FenceHandle, Fence]

	memoryMutex utils.OptionalMutex
	fenceMutex  utils.OptionalMutex
}

// BufferExtraFlags marks which recognized extension records accompanied buffer
// creation.
type BufferExtraFlags int32

var bufferExtraFlagsMapping = common.NewFlagStringMapping[BufferExtraFlags]()

func (f BufferExtraFlags) Register(str string) {
	bufferExtraFlagsMapping.Register(f, str)
}
func (f BufferExtraFlags) String() string {
	return bufferExtraFlagsMapping.FlagsToString(f)
}

const (
	BufferExtraOpaqueCaptureAddress BufferExtraFlags = 1 << iota
	BufferExtraExternalMemory
	BufferExtraDeviceAddress
)

func init() {
	BufferExtraOpaqueCaptureAddress.Register("OpaqueCaptureAddress")
	BufferExtraExternalMemory.Register("ExternalMemory")
	BufferExtraDeviceAddress.Register("DeviceAddress")
}

// BufferExtras is the decoded side record for a buffer. Fields are only
// meaningful when the matching flag bit is set.
type BufferExtras struct {
	Flags BufferExtraFlags

	OpaqueCaptureAddress      uint64
	ExternalMemoryHandleTypes khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
	DeviceAddress             uint64
}

type ImageExtraFlags int32

var imageExtraFlagsMapping = common.NewFlagStringMapping[ImageExtraFlags]()

func (f ImageExtraFlags) Register(str string) {
	imageExtraFlagsMapping.Register(f, str)
}
func (f ImageExtraFlags) String() string {
	return imageExtraFlagsMapping.FlagsToString(f)
}

const (
	ImageExtraExternalMemory ImageExtraFlags = 1 << iota
	ImageExtraFormatList
	ImageExtraStencilUsage
	ImageExtraSwapchain
	ImageExtraCompressionControl
	ImageExtraDrmModifierExplicit
	ImageExtraDrmModifierList
	ImageExtraExternalFormat
)

func init() {
	ImageExtraExternalMemory.Register("ExternalMemory")
	ImageExtraFormatList.Register("FormatList")
	ImageExtraStencilUsage.Register("StencilUsage")
	ImageExtraSwapchain.Register("Swapchain")
	ImageExtraCompressionControl.Register("CompressionControl")
	ImageExtraDrmModifierExplicit.Register("DrmModifierExplicit")
	ImageExtraDrmModifierList.Register("DrmModifierList")
	ImageExtraExternalFormat.Register("ExternalFormat")
}

// ImageCompressionFlags is carried opaquely: the layer records it for
// diagnostics but never interprets individual bits.
type ImageCompressionFlags int32

// ImageExtras is the decoded side record for an image.
type ImageExtras struct {
	Flags ImageExtraFlags

	ExternalMemoryHandleTypes khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
	ViewFormats               []core1_0.Format
	StencilUsage              core1_0.ImageUsageFlags
	Swapchain                 SwapchainHandle
	CompressionFlags          ImageCompressionFlags
	CompressionFixedRateFlags []ImageCompressionFlags
	DrmFormatModifier         uint64
	DrmPlaneLayouts           []core1_0.SubresourceLayout
	DrmFormatModifiers        []uint64
	ExternalFormat            uint64
}

type MemoryExtraFlags int32

var memoryExtraFlagsMapping = common.NewFlagStringMapping[MemoryExtraFlags]()

func (f MemoryExtraFlags) Register(str string) {
	memoryExtraFlagsMapping.Register(f, str)
}
func (f MemoryExtraFlags) String() string {
	return memoryExtraFlagsMapping.FlagsToString(f)
}

const (
	MemoryExtraExport MemoryExtraFlags = 1 << iota
	MemoryExtraDedicatedBuffer
	MemoryExtraDedicatedImage
	MemoryExtraAllocateFlags
	MemoryExtraOpaqueCaptureAddress
	MemoryExtraImportFd
	MemoryExtraImportHostPointer
	MemoryExtraPriority
	MemoryExtraImportHardwareBuffer
)

func init() {
	MemoryExtraExport.Register("Export")
	MemoryExtraDedicatedBuffer.Register("DedicatedBuffer")
	MemoryExtraDedicatedImage.Register("DedicatedImage")
	MemoryExtraAllocateFlags.Register("AllocateFlags")
	MemoryExtraOpaqueCaptureAddress.Register("OpaqueCaptureAddress")
	MemoryExtraImportFd.Register("ImportFd")
	MemoryExtraImportHostPointer.Register("ImportHostPointer")
	MemoryExtraPriority.Register("Priority")
	MemoryExtraImportHardwareBuffer.Register("ImportHardwareBuffer")
}

// MemoryExtras is the decoded side record for a memory allocation.
type MemoryExtras struct {
	Flags MemoryExtraFlags

	ExportHandleTypes      khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
	DedicatedBuffer        BufferHandle
	DedicatedImage         ImageHandle
	AllocateFlags          core1_1.MemoryAllocateFlags
	DeviceMask             uint32
	OpaqueCaptureAddress   uint64
	ImportFdHandleType     khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
	ImportFd               int
	ImportHostPointerType  khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags
	ImportHostPointer      uintptr
	Priority               float32
	ImportedHardwareBuffer HardwareBufferHandle
}

type ImageBindExtraFlags int32

var imageBindExtraFlagsMapping = common.NewFlagStringMapping[ImageBindExtraFlags]()

func (f ImageBindExtraFlags) Register(str string) {
	imageBindExtraFlagsMapping.Register(f, str)
}
func (f ImageBindExtraFlags) String() string {
	return imageBindExtraFlagsMapping.FlagsToString(f)
}

const (
	ImageBindExtraPlane ImageBindExtraFlags = 1 << iota
	ImageBindExtraSwapchain
)

func init() {
	ImageBindExtraPlane.Register("Plane")
	ImageBindExtraSwapchain.Register("Swapchain")
}

// ImageBindExtras is the decoded side record for one image binding.
type ImageBindExtras struct {
	Flags ImageBindExtraFlags

	PlaneAspect         core1_0.ImageAspectFlags
	Swapchain           SwapchainHandle
	SwapchainImageIndex int
}

type Buffer struct {
	Size  int
	Usage core1_0.BufferUsageFlags
	Extra BufferExtras

	// Requirements is cached on first query; RequirementsKnown distinguishes a
	// zero-valued cache from an unqueried one.
	Requirements      core1_0.MemoryRequirements
	RequirementsKnown bool
}

type Image struct {
	ImageType core1_0.ImageType
	Format    core1_0.Format
	Extent    core1_0.Extent3D
	Usage     core1_0.ImageUsageFlags
	Extra     ImageExtras

	Requirements      core1_0.MemoryRequirements
	RequirementsKnown bool
}

// BufferBinding records one buffer bound into a memory allocation.
type BufferBinding struct {
	Buffer BufferHandle
	Offset int
}

// ImageBinding records one image bound into a memory allocation.
type ImageBinding struct {
	Image  ImageHandle
	Offset int
	Extra  ImageBindExtras
}

type Memory struct {
	AllocationSize  int
	MemoryTypeIndex int
	Extra           MemoryExtras

	Buffers []BufferBinding
	Images  []ImageBinding
}

type Fence struct {
	Signalled     bool
	WaitStarted   bool
	WaitCompleted bool

	DelayMode  FenceDelayMode
	DelayCount int
	// Elapsed counts milliseconds for the wall-clock modes and failed queries
	// for FenceDelayNumFailWaits.
	Elapsed   int
	StartTime time.Time
}

// ExternalMemoryFd records the memory type bits reported for an imported file
// descriptor, keyed by the descriptor itself.
type ExternalMemoryFd struct {
	Device         DeviceHandle
	MemoryTypeBits uint32
}

// HardwareBuffer records properties reported for a platform hardware buffer.
type HardwareBuffer struct {
	Device         DeviceHandle
	AllocationSize int
	MemoryTypeBits uint32
}
