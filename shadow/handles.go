package shadow

import "fmt"

// Handles in this package are opaque identifiers for objects owned by the
// layers below this one. They are never dereferenced, only used as map keys
// and passed back down the chain.
type (
	InstanceHandle       uintptr
	PhysicalDeviceHandle uintptr
	DeviceHandle         uintptr
	QueueHandle          uintptr
	BufferHandle         uintptr
	ImageHandle          uintptr
	MemoryHandle         uintptr
	FenceHandle          uintptr
	SemaphoreHandle      uintptr
	SwapchainHandle      uintptr
	DisplayHandle        uintptr

	// HardwareBufferHandle identifies an imported platform hardware buffer.
	HardwareBufferHandle uintptr
)

func (h InstanceHandle) String() string       { return fmt.Sprintf("VkInstance(%#x)", uintptr(h)) }
func (h PhysicalDeviceHandle) String() string { return fmt.Sprintf("VkPhysicalDevice(%#x)", uintptr(h)) }
func (h DeviceHandle) String() string         { return fmt.Sprintf("VkDevice(%#x)", uintptr(h)) }
func (h QueueHandle) String() string          { return fmt.Sprintf("VkQueue(%#x)", uintptr(h)) }
func (h BufferHandle) String() string         { return fmt.Sprintf("VkBuffer(%#x)", uintptr(h)) }
func (h ImageHandle) String() string          { return fmt.Sprintf("VkImage(%#x)", uintptr(h)) }
func (h MemoryHandle) String() string         { return fmt.Sprintf("VkDeviceMemory(%#x)", uintptr(h)) }
func (h FenceHandle) String() string          { return fmt.Sprintf("VkFence(%#x)", uintptr(h)) }
func (h SwapchainHandle) String() string      { return fmt.Sprintf("VkSwapchainKHR(%#x)", uintptr(h)) }
