package shadow

import (
	"fmt"
	"sync/atomic"

	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/vkngwrapper/layers/internal/utils"
)

// GraphOptions controls construction of a Graph.
type GraphOptions struct {
	// ExternallySynchronized disables the graph's internal locking for callers
	// that guarantee single-threaded access, such as tests and trace replay.
	ExternallySynchronized bool
}

// Graph is the shadow object graph: every object the layers below have
// successfully created, linked by ownership. Entries are only ever added
// after a downstream call succeeds, so the graph never describes objects the
// driver refused to create.
//
// Lock order, outermost first: instance mutex, physical-device mutex, device
// table mutex, then the per-device memory or fence mutex, then the queue and
// descriptor tables. The physical-device state mutex is a leaf and may be
// taken under any of them. Heap accounting is atomic; admission takes the
// state mutex only to read the topology it admits against.
type Graph struct {
	useMutex bool

	// instanceMutex guards the instance and physical-device tables and
	// serializes diagnostic dumps against instance teardown.
	instanceMutex   utils.OptionalMutex
	instances       *Registry[InstanceHandle, Instance]
	physicalDevices *Registry[PhysicalDeviceHandle, PhysicalDevice]

	devicesMutex utils.OptionalRWMutex
	devices      *Registry[DeviceHandle, Device]

	queuesMutex utils.OptionalMutex
	queues      map[QueueHandle]DeviceHandle

	fdMutex utils.OptionalMutex
	fds     map[int]*ExternalMemoryFd

	hardwareBufferMutex utils.OptionalMutex
	hardwareBuffers     *Registry[HardwareBufferHandle, HardwareBuffer]
}

func NewGraph(options GraphOptions) *Graph {
	useMutex := !options.ExternallySynchronized

	return &Graph{
		useMutex: useMutex,

		instanceMutex:   utils.OptionalMutex{UseMutex: useMutex},
		instances:       NewRegistry[InstanceHandle, Instance](),
		physicalDevices: NewRegistry[PhysicalDeviceHandle, PhysicalDevice](),

		devicesMutex: utils.OptionalRWMutex{UseMutex: useMutex},
		devices:      NewRegistry[DeviceHandle, Device](),

		queuesMutex: utils.OptionalMutex{UseMutex: useMutex},
		queues:      make(map[QueueHandle]DeviceHandle),

		fdMutex: utils.OptionalMutex{UseMutex: useMutex},
		fds:     make(map[int]*ExternalMemoryFd),

		hardwareBufferMutex: utils.OptionalMutex{UseMutex: useMutex},
		hardwareBuffers:     NewRegistry[HardwareBufferHandle, HardwareBuffer](),
	}
}

func (g *Graph) AddInstance(handle InstanceHandle, caps InstanceCapabilities, policy PolicyConfig) {
	g.instanceMutex.Lock()
	defer g.instanceMutex.Unlock()

	g.instances.Put(handle, &Instance{
		Capabilities: caps,
		Policy:       policy,
	})
}

func (g *Graph) Instance(handle InstanceHandle) *Instance {
	g.instanceMutex.Lock()
	defer g.instanceMutex.Unlock()

	return g.instances.Get(handle)
}

// RemoveInstance tears down the instance record and cascades: every physical
// device enumerated from it is removed, and every device created from those
// physical devices is removed along with all of its owned objects.
func (g *Graph) RemoveInstance(handle InstanceHandle) {
	g.instanceMutex.Lock()
	defer g.instanceMutex.Unlock()

	if g.instances.Get(handle) == nil {
		return
	}

	var physHandles []PhysicalDeviceHandle
	g.physicalDevices.Range(func(physHandle PhysicalDeviceHandle, record *PhysicalDevice) bool {
		if record.Instance == handle {
			physHandles = append(physHandles, physHandle)
		}
		return true
	})
	for _, physHandle := range physHandles {
		physRecord := g.physicalDevices.Get(physHandle)

		physRecord.DeviceMutex.Lock()
		g.removeDevicesOf(physHandle)
		physRecord.DeviceMutex.Unlock()

		g.physicalDevices.Delete(physHandle)
	}

	g.instances.Delete(handle)
}

func (g *Graph) removeDevicesOf(physHandle PhysicalDeviceHandle) {
	g.devicesMutex.Lock()
	defer g.devicesMutex.Unlock()

	deviceHandles := g.devices.DeleteWhere(func(_ DeviceHandle, record *Device) bool {
		return record.PhysicalDevice == physHandle
	})
	for _, deviceHandle := range deviceHandles {
		g.scrubDeviceTables(deviceHandle)
	}
}

// scrubDeviceTables drops the cross-device table entries owned by a device
// whose record has already been deleted.
func (g *Graph) scrubDeviceTables(handle DeviceHandle) {
	g.queuesMutex.Lock()
	for queue, owner := range g.queues {
		if owner == handle {
			delete(g.queues, queue)
		}
	}
	g.queuesMutex.Unlock()

	g.fdMutex.Lock()
	for fd, record := range g.fds {
		if record.Device == handle {
			delete(g.fds, fd)
		}
	}
	g.fdMutex.Unlock()

	g.hardwareBufferMutex.Lock()
	g.hardwareBuffers.DeleteWhere(func(_ HardwareBufferHandle, record *HardwareBuffer) bool {
		return record.Device == handle
	})
	g.hardwareBufferMutex.Unlock()
}

// TrackPhysicalDevice inserts a physical-device record on first sight. The
// policy snapshot is copied from the owning instance so that later queries on
// the physical device do not have to look the instance up again.
func (g *Graph) TrackPhysicalDevice(instance InstanceHandle, handle PhysicalDeviceHandle) {
	g.instanceMutex.Lock()
	defer g.instanceMutex.Unlock()

	instanceRecord := g.instances.Get(instance)
	if instanceRecord == nil {
		return
	}
	if g.physicalDevices.Get(handle) != nil {
		return
	}

	g.physicalDevices.Put(handle, &PhysicalDevice{
		Instance:    instance,
		Policy:      instanceRecord.Policy,
		DeviceMutex: utils.OptionalMutex{UseMutex: g.useMutex},
		StateMutex:  utils.OptionalMutex{UseMutex: g.useMutex},
	})
}

func (g *Graph) PhysicalDevice(handle PhysicalDeviceHandle) *PhysicalDevice {
	g.instanceMutex.Lock()
	defer g.instanceMutex.Unlock()

	return g.physicalDevices.Get(handle)
}

// CacheMemoryProperties copies the memory topology into the physical device's
// model. Heap sizes and flags are overwritten; the allocated counters survive
// so that repeated property queries do not erase admission state.
func (g *Graph) CacheMemoryProperties(handle PhysicalDeviceHandle, types []core1_0.MemoryType, heaps []core1_0.MemoryHeap) {
	record := g.PhysicalDevice(handle)
	if record == nil {
		return
	}

	record.StateMutex.Lock()
	defer record.StateMutex.Unlock()

	model := &record.Memory
	model.TypeCount = copy(model.Types[:], types)
	model.HeapCount = len(heaps)
	for heapIndex, heap := range heaps {
		if heapIndex >= len(model.Heaps) {
			break
		}
		model.Heaps[heapIndex].Size = heap.Size
		model.Heaps[heapIndex].Flags = heap.Flags
	}
}

// CacheHeapBudgets copies per-heap budget and usage numbers and marks the
// snapshot fresh.
func (g *Graph) CacheHeapBudgets(handle PhysicalDeviceHandle, budgets []int, usages []int) {
	record := g.PhysicalDevice(handle)
	if record == nil {
		return
	}

	record.StateMutex.Lock()
	defer record.StateMutex.Unlock()

	model := &record.Memory
	for heapIndex := 0; heapIndex < model.HeapCount && heapIndex < len(budgets); heapIndex++ {
		model.Heaps[heapIndex].Budget = budgets[heapIndex]
	}
	for heapIndex := 0; heapIndex < model.HeapCount && heapIndex < len(usages); heapIndex++ {
		model.Heaps[heapIndex].Usage = usages[heapIndex]
	}
	record.BudgetFresh = true
}

// ReserveHeapAllocation attempts to admit an allocation of size bytes against
// the heap's limit. It reserves atomically, so two racing allocations can
// never jointly exceed the limit; a reservation that the downstream driver
// subsequently fails must be returned with ReleaseHeapAllocation. The state
// mutex is held so the limit cannot shift mid-admission under a concurrent
// property query.
func (g *Graph) ReserveHeapAllocation(handle PhysicalDeviceHandle, heapIndex int, size int) bool {
	record := g.PhysicalDevice(handle)
	if record == nil {
		return false
	}

	record.StateMutex.Lock()
	defer record.StateMutex.Unlock()

	if heapIndex < 0 || heapIndex >= record.Memory.HeapCount {
		return false
	}

	heap := &record.Memory.Heaps[heapIndex]
	limit := int64(heap.Limit())
	for {
		currentVal := atomic.LoadInt64(&heap.Allocated)
		targetVal := currentVal + int64(size)

		if targetVal > limit {
			return false
		}
		if atomic.CompareAndSwapInt64(&heap.Allocated, currentVal, targetVal) {
			return true
		}
	}
}

func (g *Graph) ReleaseHeapAllocation(handle PhysicalDeviceHandle, heapIndex int, size int) {
	record := g.PhysicalDevice(handle)
	if record == nil || heapIndex < 0 || heapIndex >= record.heapCount() {
		return
	}

	newVal := atomic.AddInt64(&record.Memory.Heaps[heapIndex].Allocated, int64(-size))
	if newVal < 0 {
		panic(fmt.Sprintf("allocated bytes for heapIndex %d went negative", heapIndex))
	}
}

// HeapAllocated reports the bytes currently admitted against a heap.
func (g *Graph) HeapAllocated(handle PhysicalDeviceHandle, heapIndex int) int64 {
	record := g.PhysicalDevice(handle)
	if record == nil || heapIndex < 0 || heapIndex >= record.heapCount() {
		return 0
	}
	return atomic.LoadInt64(&record.Memory.Heaps[heapIndex].Allocated)
}

func (g *Graph) AddDevice(handle DeviceHandle, physHandle PhysicalDeviceHandle, caps DeviceCapabilities, policy PolicyConfig) {
	physRecord := g.PhysicalDevice(physHandle)
	if physRecord != nil {
		physRecord.DeviceMutex.Lock()
		defer physRecord.DeviceMutex.Unlock()
	}

	g.devicesMutex.Lock()
	defer g.devicesMutex.Unlock()

	g.devices.Put(handle, &Device{
		PhysicalDevice: physHandle,
		Capabilities:   caps,
		Policy:         policy,

		buffers: NewRegistry[BufferHandle, Buffer](),
		images:  NewRegistry[ImageHandle, Image](),
		memory:  NewRegistry[MemoryHandle, Memory](),
		fences:  NewRegistry[FenceHandle, Fence](),

		memoryMutex: utils.OptionalMutex{UseMutex: g.useMutex},
		fenceMutex:  utils.OptionalMutex{UseMutex: g.useMutex},
	})
}

func (g *Graph) Device(handle DeviceHandle) *Device {
	g.devicesMutex.RLock()
	defer g.devicesMutex.RUnlock()

	return g.devices.Get(handle)
}

// RemoveDevice tears down a device record and everything it owns. The
// physical-device mutex is held across the removal so that it cannot race an
// instance-teardown sweep over the same physical device.
func (g *Graph) RemoveDevice(handle DeviceHandle) {
	record := g.Device(handle)
	if record == nil {
		return
	}

	physRecord := g.PhysicalDevice(record.PhysicalDevice)
	if physRecord != nil {
		physRecord.DeviceMutex.Lock()
		defer physRecord.DeviceMutex.Unlock()
	}

	g.devicesMutex.Lock()
	g.devices.Delete(handle)
	g.devicesMutex.Unlock()

	g.scrubDeviceTables(handle)
}

func (g *Graph) AddBuffer(device DeviceHandle, handle BufferHandle, record *Buffer) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	deviceRecord.buffers.Put(handle, record)
}

func (g *Graph) Buffer(device DeviceHandle, handle BufferHandle) *Buffer {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return nil
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	return deviceRecord.buffers.Get(handle)
}

// RemoveBuffer deletes the buffer record and scrubs the buffer from every
// memory binding list on the device.
func (g *Graph) RemoveBuffer(device DeviceHandle, handle BufferHandle) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	scrubBufferBindings(deviceRecord, handle)
	deviceRecord.buffers.Delete(handle)
}

func (g *Graph) SetBufferRequirements(device DeviceHandle, handle BufferHandle, requirements core1_0.MemoryRequirements) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	record := deviceRecord.buffers.Get(handle)
	if record == nil {
		return
	}
	record.Requirements = requirements
	record.RequirementsKnown = true
}

func (g *Graph) AddImage(device DeviceHandle, handle ImageHandle, record *Image) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	deviceRecord.images.Put(handle, record)
}

func (g *Graph) Image(device DeviceHandle, handle ImageHandle) *Image {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return nil
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	return deviceRecord.images.Get(handle)
}

func (g *Graph) RemoveImage(device DeviceHandle, handle ImageHandle) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	scrubImageBindings(deviceRecord, handle)
	deviceRecord.images.Delete(handle)
}

func (g *Graph) SetImageRequirements(device DeviceHandle, handle ImageHandle, requirements core1_0.MemoryRequirements) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	record := deviceRecord.images.Get(handle)
	if record == nil {
		return
	}
	record.Requirements = requirements
	record.RequirementsKnown = true
}

func (g *Graph) AddMemory(device DeviceHandle, handle MemoryHandle, record *Memory) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	deviceRecord.memory.Put(handle, record)
}

func (g *Graph) Memory(device DeviceHandle, handle MemoryHandle) *Memory {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return nil
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	return deviceRecord.memory.Get(handle)
}

// RemoveMemory deletes the memory record and returns it so the caller can
// release any heap accounting attributed to it.
func (g *Graph) RemoveMemory(device DeviceHandle, handle MemoryHandle) *Memory {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return nil
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	return deviceRecord.memory.Delete(handle)
}

// BindBuffer records a buffer-to-memory binding. The buffer is scrubbed from
// every binding list on the device first, so rebinding moves the buffer to the
// new allocation rather than duplicating it.
func (g *Graph) BindBuffer(device DeviceHandle, buffer BufferHandle, memory MemoryHandle, offset int) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}
	physRecord := g.PhysicalDevice(deviceRecord.PhysicalDevice)

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	scrubBufferBindings(deviceRecord, buffer)

	memoryRecord := deviceRecord.memory.Get(memory)
	if memoryRecord == nil {
		return
	}
	memoryRecord.Buffers = append(memoryRecord.Buffers, BufferBinding{
		Buffer: buffer,
		Offset: offset,
	})

	markBindingsChanged(deviceRecord, physRecord)
}

// BindImage records an image-to-memory binding, including any decoded
// per-binding side data.
func (g *Graph) BindImage(device DeviceHandle, image ImageHandle, memory MemoryHandle, offset int, extra ImageBindExtras) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}
	physRecord := g.PhysicalDevice(deviceRecord.PhysicalDevice)

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	scrubImageBindings(deviceRecord, image)

	memoryRecord := deviceRecord.memory.Get(memory)
	if memoryRecord == nil {
		return
	}
	memoryRecord.Images = append(memoryRecord.Images, ImageBinding{
		Image:  image,
		Offset: offset,
		Extra:  extra,
	})

	markBindingsChanged(deviceRecord, physRecord)
}

// markBindingsChanged flags the device for a budget refresh on the next
// submit and invalidates the physical device's budget snapshot. The physical
// device is resolved by the caller before the memory mutex is taken: looking
// it up here would invert the lock order against the stats dump.
func markBindingsChanged(deviceRecord *Device, physRecord *PhysicalDevice) {
	deviceRecord.BindingsChanged = true

	if physRecord != nil {
		physRecord.StateMutex.Lock()
		physRecord.BudgetFresh = false
		physRecord.StateMutex.Unlock()
	}
}

// ConsumeBindingsChanged reports whether bindings changed since the last call
// and clears the flag.
func (g *Graph) ConsumeBindingsChanged(device DeviceHandle) bool {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return false
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	changed := deviceRecord.BindingsChanged
	deviceRecord.BindingsChanged = false
	return changed
}

func scrubBufferBindings(deviceRecord *Device, buffer BufferHandle) {
	deviceRecord.memory.Range(func(_ MemoryHandle, memoryRecord *Memory) bool {
		for bindIndex := 0; bindIndex < len(memoryRecord.Buffers); {
			if memoryRecord.Buffers[bindIndex].Buffer == buffer {
				memoryRecord.Buffers = append(memoryRecord.Buffers[:bindIndex], memoryRecord.Buffers[bindIndex+1:]...)
				continue
			}
			bindIndex++
		}
		return true
	})
}

func scrubImageBindings(deviceRecord *Device, image ImageHandle) {
	deviceRecord.memory.Range(func(_ MemoryHandle, memoryRecord *Memory) bool {
		for bindIndex := 0; bindIndex < len(memoryRecord.Images); {
			if memoryRecord.Images[bindIndex].Image == image {
				memoryRecord.Images = append(memoryRecord.Images[:bindIndex], memoryRecord.Images[bindIndex+1:]...)
				continue
			}
			bindIndex++
		}
		return true
	})
}

func (g *Graph) AddFence(device DeviceHandle, handle FenceHandle, record *Fence) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}

	deviceRecord.fenceMutex.Lock()
	defer deviceRecord.fenceMutex.Unlock()

	deviceRecord.fences.Put(handle, record)
}

func (g *Graph) RemoveFence(device DeviceHandle, handle FenceHandle) {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return
	}

	deviceRecord.fenceMutex.Lock()
	defer deviceRecord.fenceMutex.Unlock()

	deviceRecord.fences.Delete(handle)
}

// UpdateFence runs update on the fence record under the device's fence lock.
// It reports false when the fence is untracked, in which case update never
// runs.
func (g *Graph) UpdateFence(device DeviceHandle, handle FenceHandle, update func(fence *Fence)) bool {
	deviceRecord := g.Device(device)
	if deviceRecord == nil {
		return false
	}

	deviceRecord.fenceMutex.Lock()
	defer deviceRecord.fenceMutex.Unlock()

	record := deviceRecord.fences.Get(handle)
	if record == nil {
		return false
	}
	update(record)
	return true
}

func (g *Graph) TrackQueue(queue QueueHandle, device DeviceHandle) {
	g.queuesMutex.Lock()
	defer g.queuesMutex.Unlock()

	g.queues[queue] = device
}

func (g *Graph) DeviceForQueue(queue QueueHandle) (DeviceHandle, bool) {
	g.queuesMutex.Lock()
	defer g.queuesMutex.Unlock()

	device, ok := g.queues[queue]
	return device, ok
}

func (g *Graph) TrackFd(fd int, record *ExternalMemoryFd) {
	g.fdMutex.Lock()
	defer g.fdMutex.Unlock()

	g.fds[fd] = record
}

func (g *Graph) Fd(fd int) *ExternalMemoryFd {
	g.fdMutex.Lock()
	defer g.fdMutex.Unlock()

	return g.fds[fd]
}

func (g *Graph) TrackHardwareBuffer(handle HardwareBufferHandle, record *HardwareBuffer) {
	g.hardwareBufferMutex.Lock()
	defer g.hardwareBufferMutex.Unlock()

	g.hardwareBuffers.Put(handle, record)
}

func (g *Graph) HardwareBuffer(handle HardwareBufferHandle) *HardwareBuffer {
	g.hardwareBufferMutex.Lock()
	defer g.hardwareBufferMutex.Unlock()

	return g.hardwareBuffers.Get(handle)
}
