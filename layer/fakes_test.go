package layer

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/ext_memory_budget"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory_capabilities"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/layers/shadow"
)

const (
	testInstanceHandle shadow.InstanceHandle       = 0x100
	testPhysicalHandle shadow.PhysicalDeviceHandle = 0x200
	testDeviceHandle   shadow.DeviceHandle         = 0x300
	testQueueHandle    shadow.QueueHandle          = 0x400
)

type fakeInstanceDriver struct {
	deviceDriver *fakeDeviceDriver

	deviceName          string
	memoryTypes         []core1_0.MemoryType
	memoryHeaps         []core1_0.MemoryHeap
	heapBudgets         []int
	heapUsages          []int
	supportedExtensions []string
	tools               []ToolProperties

	memoryProperties2Calls int
	createDeviceInfo       DeviceCreateInfo
}

func newFakeInstanceDriver(deviceDriver *fakeDeviceDriver) *fakeInstanceDriver {
	return &fakeInstanceDriver{
		deviceDriver: deviceDriver,

		deviceName: "fake device",
		memoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
		},
		memoryHeaps: []core1_0.MemoryHeap{
			{Size: 1000, Flags: core1_0.MemoryHeapDeviceLocal},
			{Size: 2000},
		},
		supportedExtensions: []string{ext_memory_budget.ExtensionName},
	}
}

func (d *fakeInstanceDriver) CreateInstance(info InstanceCreateInfo) (shadow.InstanceHandle, common.VkResult, error) {
	return testInstanceHandle, core1_0.VKSuccess, nil
}

func (d *fakeInstanceDriver) DestroyInstance(instance shadow.InstanceHandle) {}

func (d *fakeInstanceDriver) EnumeratePhysicalDevices(instance shadow.InstanceHandle) ([]shadow.PhysicalDeviceHandle, common.VkResult, error) {
	return []shadow.PhysicalDeviceHandle{testPhysicalHandle}, core1_0.VKSuccess, nil
}

func (d *fakeInstanceDriver) EnumeratePhysicalDeviceGroups(instance shadow.InstanceHandle) ([]PhysicalDeviceGroupProperties, common.VkResult, error) {
	return []PhysicalDeviceGroupProperties{
		{PhysicalDevices: []shadow.PhysicalDeviceHandle{testPhysicalHandle}},
	}, core1_0.VKSuccess, nil
}

func (d *fakeInstanceDriver) GetPhysicalDeviceProperties(physicalDevice shadow.PhysicalDeviceHandle) (*core1_0.PhysicalDeviceProperties, error) {
	return &core1_0.PhysicalDeviceProperties{
		DriverName: d.deviceName,
	}, nil
}

func (d *fakeInstanceDriver) GetPhysicalDeviceMemoryProperties(physicalDevice shadow.PhysicalDeviceHandle) (*core1_0.PhysicalDeviceMemoryProperties, error) {
	return &core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: append([]core1_0.MemoryType(nil), d.memoryTypes...),
		MemoryHeaps: append([]core1_0.MemoryHeap(nil), d.memoryHeaps...),
	}, nil
}

func (d *fakeInstanceDriver) GetPhysicalDeviceMemoryProperties2(physicalDevice shadow.PhysicalDeviceHandle, out *core1_1.PhysicalDeviceMemoryProperties2) error {
	d.memoryProperties2Calls++

	out.MemoryProperties = core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: append([]core1_0.MemoryType(nil), d.memoryTypes...),
		MemoryHeaps: append([]core1_0.MemoryHeap(nil), d.memoryHeaps...),
	}

	budget, ok := out.Next.(*ext_memory_budget.PhysicalDeviceMemoryBudgetProperties)
	if ok {
		for heapIndex := range d.heapBudgets {
			budget.HeapBudget[heapIndex] = d.heapBudgets[heapIndex]
		}
		for heapIndex := range d.heapUsages {
			budget.HeapUsage[heapIndex] = d.heapUsages[heapIndex]
		}
	}
	return nil
}

func (d *fakeInstanceDriver) EnumerateDeviceExtensionProperties(physicalDevice shadow.PhysicalDeviceHandle) ([]core1_0.ExtensionProperties, common.VkResult, error) {
	extensions := make([]core1_0.ExtensionProperties, 0, len(d.supportedExtensions))
	for _, name := range d.supportedExtensions {
		extensions = append(extensions, core1_0.ExtensionProperties{
			ExtensionName: name,
			SpecVersion:   1,
		})
	}
	return extensions, core1_0.VKSuccess, nil
}

func (d *fakeInstanceDriver) GetPhysicalDeviceToolProperties(physicalDevice shadow.PhysicalDeviceHandle) ([]ToolProperties, common.VkResult, error) {
	return append([]ToolProperties(nil), d.tools...), core1_0.VKSuccess, nil
}

func (d *fakeInstanceDriver) CreateDevice(physicalDevice shadow.PhysicalDeviceHandle, info DeviceCreateInfo) (shadow.DeviceHandle, DeviceDriver, common.VkResult, error) {
	d.createDeviceInfo = info
	return testDeviceHandle, d.deviceDriver, core1_0.VKSuccess, nil
}

type fakeDeviceDriver struct {
	failAllocate bool

	nextBuffer shadow.BufferHandle
	nextImage  shadow.ImageHandle
	nextMemory shadow.MemoryHandle
	nextFence  shadow.FenceHandle

	requirements core1_0.MemoryRequirements

	allocateCalls    int
	freedMemory      []shadow.MemoryHandle
	submitCalls      int
	resetFences      []shadow.FenceHandle
	fenceStatus      common.VkResult
	fenceStatusCalls int
	waitCalls        int
	waitedFences     []shadow.FenceHandle
	waitedAll        bool
	waitedTimeout    time.Duration
}

func newFakeDeviceDriver() *fakeDeviceDriver {
	return &fakeDeviceDriver{
		nextBuffer: 0x1000,
		nextImage:  0x2000,
		nextMemory: 0x3000,
		nextFence:  0x4000,

		requirements: core1_0.MemoryRequirements{
			Size:           128,
			Alignment:      64,
			MemoryTypeBits: 0b11,
		},
		fenceStatus: core1_0.VKSuccess,
	}
}

func (d *fakeDeviceDriver) DestroyDevice(device shadow.DeviceHandle) {}

func (d *fakeDeviceDriver) GetDeviceQueue(device shadow.DeviceHandle, queueFamilyIndex, queueIndex int) shadow.QueueHandle {
	return testQueueHandle
}

func (d *fakeDeviceDriver) CreateBuffer(device shadow.DeviceHandle, info BufferCreateInfo) (shadow.BufferHandle, common.VkResult, error) {
	d.nextBuffer++
	return d.nextBuffer, core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) DestroyBuffer(device shadow.DeviceHandle, buffer shadow.BufferHandle) {}

func (d *fakeDeviceDriver) CreateImage(device shadow.DeviceHandle, info ImageCreateInfo) (shadow.ImageHandle, common.VkResult, error) {
	d.nextImage++
	return d.nextImage, core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) DestroyImage(device shadow.DeviceHandle, image shadow.ImageHandle) {}

func (d *fakeDeviceDriver) GetBufferMemoryRequirements(device shadow.DeviceHandle, buffer shadow.BufferHandle) core1_0.MemoryRequirements {
	return d.requirements
}

func (d *fakeDeviceDriver) GetImageMemoryRequirements(device shadow.DeviceHandle, image shadow.ImageHandle) core1_0.MemoryRequirements {
	return d.requirements
}

func (d *fakeDeviceDriver) GetBufferMemoryRequirements2(device shadow.DeviceHandle, info BufferMemoryRequirementsInfo, out *core1_1.MemoryRequirements2) error {
	out.MemoryRequirements = d.requirements
	return nil
}

func (d *fakeDeviceDriver) GetImageMemoryRequirements2(device shadow.DeviceHandle, info ImageMemoryRequirementsInfo, out *core1_1.MemoryRequirements2) error {
	out.MemoryRequirements = d.requirements
	return nil
}

func (d *fakeDeviceDriver) AllocateMemory(device shadow.DeviceHandle, info MemoryAllocateInfo) (shadow.MemoryHandle, common.VkResult, error) {
	d.allocateCalls++
	if d.failAllocate {
		return 0, core1_0.VKErrorOutOfHostMemory, core1_0.VKErrorOutOfHostMemory.ToError()
	}

	d.nextMemory++
	return d.nextMemory, core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) FreeMemory(device shadow.DeviceHandle, memory shadow.MemoryHandle) {
	d.freedMemory = append(d.freedMemory, memory)
}

func (d *fakeDeviceDriver) BindBufferMemory(device shadow.DeviceHandle, buffer shadow.BufferHandle, memory shadow.MemoryHandle, offset int) (common.VkResult, error) {
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) BindBufferMemory2(device shadow.DeviceHandle, binds []BindBufferMemoryInfo) (common.VkResult, error) {
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) BindImageMemory(device shadow.DeviceHandle, image shadow.ImageHandle, memory shadow.MemoryHandle, offset int) (common.VkResult, error) {
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) BindImageMemory2(device shadow.DeviceHandle, binds []BindImageMemoryInfo) (common.VkResult, error) {
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) GetMemoryFdProperties(device shadow.DeviceHandle, handleType khr_external_memory_capabilities.ExternalMemoryHandleTypeFlags, fd int) (MemoryFdProperties, common.VkResult, error) {
	return MemoryFdProperties{MemoryTypeBits: 0b10}, core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) GetHardwareBufferProperties(device shadow.DeviceHandle, hardwareBuffer shadow.HardwareBufferHandle) (HardwareBufferProperties, common.VkResult, error) {
	return HardwareBufferProperties{AllocationSize: 256, MemoryTypeBits: 0b01}, core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) CreateFence(device shadow.DeviceHandle, info FenceCreateInfo) (shadow.FenceHandle, common.VkResult, error) {
	d.nextFence++
	return d.nextFence, core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) DestroyFence(device shadow.DeviceHandle, fence shadow.FenceHandle) {}

func (d *fakeDeviceDriver) ResetFences(device shadow.DeviceHandle, fences []shadow.FenceHandle) (common.VkResult, error) {
	d.resetFences = append(d.resetFences, fences...)
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) GetFenceStatus(device shadow.DeviceHandle, fence shadow.FenceHandle) (common.VkResult, error) {
	d.fenceStatusCalls++
	return d.fenceStatus, nil
}

func (d *fakeDeviceDriver) WaitForFences(device shadow.DeviceHandle, fences []shadow.FenceHandle, waitAll bool, timeout time.Duration) (common.VkResult, error) {
	d.waitCalls++
	d.waitedFences = append([]shadow.FenceHandle(nil), fences...)
	d.waitedAll = waitAll
	d.waitedTimeout = timeout
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) RegisterDeviceEvent(device shadow.DeviceHandle, info DeviceEventInfo) (shadow.FenceHandle, common.VkResult, error) {
	d.nextFence++
	return d.nextFence, core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) RegisterDisplayEvent(device shadow.DeviceHandle, display shadow.DisplayHandle, info DisplayEventInfo) (shadow.FenceHandle, common.VkResult, error) {
	d.nextFence++
	return d.nextFence, core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) QueueSubmit(queue shadow.QueueHandle, submits []SubmitInfo, fence shadow.FenceHandle) (common.VkResult, error) {
	d.submitCalls++
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) QueueSubmit2(queue shadow.QueueHandle, submits []SubmitInfo, fence shadow.FenceHandle) (common.VkResult, error) {
	d.submitCalls++
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) QueueBindSparse(queue shadow.QueueHandle, binds []SparseBindInfo, fence shadow.FenceHandle) (common.VkResult, error) {
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) QueuePresent(queue shadow.QueueHandle, info PresentInfo) (common.VkResult, error) {
	return core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) AcquireNextImage(device shadow.DeviceHandle, swapchain shadow.SwapchainHandle, timeout time.Duration, semaphore shadow.SemaphoreHandle, fence shadow.FenceHandle) (int, common.VkResult, error) {
	return 0, core1_0.VKSuccess, nil
}

func (d *fakeDeviceDriver) AcquireNextImage2(device shadow.DeviceHandle, info AcquireNextImageInfo) (int, common.VkResult, error) {
	return 0, core1_0.VKSuccess, nil
}

// testRig wires a Layer to fake drivers with a controllable clock, then walks
// the usual startup sequence so tests start from a tracked instance, physical
// device, device, and queue.
type testRig struct {
	layer    *Layer
	instance *fakeInstanceDriver
	driver   *fakeDeviceDriver

	now   time.Time
	slept []time.Duration

	device shadow.DeviceHandle
	queue  shadow.QueueHandle
	dump   *bytes.Buffer
}

func (r *testRig) advance(d time.Duration) {
	r.now = r.now.Add(d)
}

func newTestRig(t *testing.T, settings MapSettings, deviceExtensions ...string) *testRig {
	driver := newFakeDeviceDriver()
	rig := &testRig{
		instance: newFakeInstanceDriver(driver),
		driver:   driver,

		now:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		dump: &bytes.Buffer{},
	}

	layer, err := New(slog.New(slog.NewTextHandler(os.Stdout)), rig.instance, settings, CreateOptions{
		DumpSink: rig.dump,
		Clock:    func() time.Time { return rig.now },
		Sleep: func(d time.Duration) {
			rig.slept = append(rig.slept, d)
			rig.advance(d)
		},
	})
	require.NoError(t, err)
	rig.layer = layer

	_, _, err = layer.CreateInstance(InstanceCreateInfo{
		APIVersion: common.Vulkan1_1,
	})
	require.NoError(t, err)

	_, _, err = layer.EnumeratePhysicalDevices(testInstanceHandle)
	require.NoError(t, err)

	rig.device, _, err = layer.CreateDevice(testPhysicalHandle, DeviceCreateInfo{
		EnabledExtensionNames: deviceExtensions,
	})
	require.NoError(t, err)

	rig.queue = layer.GetDeviceQueue(rig.device, 0, 0)
	require.Equal(t, testQueueHandle, rig.queue)

	return rig
}

// createFence makes an unsignalled fence through the layer and returns its
// handle.
func (r *testRig) createFence(t *testing.T) shadow.FenceHandle {
	fence, _, err := r.layer.CreateFence(r.device, FenceCreateInfo{})
	require.NoError(t, err)
	return fence
}

// submitWithFence runs an empty submission that hands the fence to the queue.
func (r *testRig) submitWithFence(t *testing.T, fence shadow.FenceHandle) {
	_, err := r.layer.QueueSubmit(r.queue, nil, fence)
	require.NoError(t, err)
}
