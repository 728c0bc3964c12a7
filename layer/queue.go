package layer

import (
	"time"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/ext_memory_budget"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/layers/shadow"
)

func (l *Layer) queueDevice(queue shadow.QueueHandle) (shadow.DeviceHandle, DeviceDriver) {
	device, ok := l.graph.DeviceForQueue(queue)
	if !ok {
		return 0, nil
	}
	return device, l.deviceDriver(device)
}

// QueueSubmit forwards the submission and, on success, arms the fence that
// accompanied it and refreshes the budget snapshot if bindings changed since
// the last one.
func (l *Layer) QueueSubmit(queue shadow.QueueHandle, submits []SubmitInfo, fence shadow.FenceHandle) (common.VkResult, error) {
	l.logger.Debug("Layer::QueueSubmit")

	device, driver := l.queueDevice(queue)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	res, err := driver.QueueSubmit(queue, submits, fence)
	if err != nil {
		return res, err
	}

	l.armFence(device, fence)
	l.afterSubmit(device)
	return res, nil
}

func (l *Layer) QueueSubmit2(queue shadow.QueueHandle, submits []SubmitInfo, fence shadow.FenceHandle) (common.VkResult, error) {
	l.logger.Debug("Layer::QueueSubmit2")

	device, driver := l.queueDevice(queue)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	res, err := driver.QueueSubmit2(queue, submits, fence)
	if err != nil {
		return res, err
	}

	l.armFence(device, fence)
	l.afterSubmit(device)
	return res, nil
}

// QueueBindSparse arms its fence before forwarding: a sparse bind may
// complete, and signal, on the device timeline before the call even returns.
func (l *Layer) QueueBindSparse(queue shadow.QueueHandle, binds []SparseBindInfo, fence shadow.FenceHandle) (common.VkResult, error) {
	l.logger.Debug("Layer::QueueBindSparse")

	device, driver := l.queueDevice(queue)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	l.armFence(device, fence)
	return driver.QueueBindSparse(queue, binds, fence)
}

// QueuePresent arms any per-swapchain present fences chained onto the
// present, provided the device enabled the extension that defines them.
func (l *Layer) QueuePresent(queue shadow.QueueHandle, info PresentInfo) (common.VkResult, error) {
	l.logger.Debug("Layer::QueuePresent")

	device, driver := l.queueDevice(queue)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	deviceRecord := l.graph.Device(device)
	if deviceRecord != nil && deviceRecord.Capabilities.SwapchainMaintenance1 {
		for _, fence := range presentFences(info.NextOptions) {
			l.armFence(device, fence)
		}
	}

	return driver.QueuePresent(queue, info)
}

// AcquireNextImage arms the acquire fence before forwarding, for the same
// reason as sparse binds: the signal can beat the return.
func (l *Layer) AcquireNextImage(device shadow.DeviceHandle, swapchain shadow.SwapchainHandle, timeout time.Duration, semaphore shadow.SemaphoreHandle, fence shadow.FenceHandle) (int, common.VkResult, error) {
	l.logger.Debug("Layer::AcquireNextImage")

	driver := l.deviceDriver(device)
	if driver == nil {
		return -1, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	l.armFence(device, fence)
	return driver.AcquireNextImage(device, swapchain, timeout, semaphore, fence)
}

func (l *Layer) AcquireNextImage2(device shadow.DeviceHandle, info AcquireNextImageInfo) (int, common.VkResult, error) {
	l.logger.Debug("Layer::AcquireNextImage2")

	driver := l.deviceDriver(device)
	if driver == nil {
		return -1, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	l.armFence(device, info.Fence)
	return driver.AcquireNextImage2(device, info)
}

// afterSubmit refreshes the heap budget snapshot when bindings changed since
// the last submit and the snapshot has not been refreshed by another path,
// then emits a state dump if a sink is configured.
func (l *Layer) afterSubmit(device shadow.DeviceHandle) {
	deviceRecord := l.graph.Device(device)
	if deviceRecord == nil || !deviceRecord.Policy.Active() {
		return
	}

	if !l.graph.ConsumeBindingsChanged(device) {
		return
	}

	physRecord := l.graph.PhysicalDevice(deviceRecord.PhysicalDevice)
	if physRecord != nil && physRecord.NeedsBudgetRefresh() && deviceRecord.Capabilities.MemoryBudget {
		budgetProperties := ext_memory_budget.PhysicalDeviceMemoryBudgetProperties{}
		memoryProperties := core1_1.PhysicalDeviceMemoryProperties2{
			NextOutData: common.NextOutData{
				Next: &budgetProperties,
			},
		}

		err := l.GetPhysicalDeviceMemoryProperties2(deviceRecord.PhysicalDevice, &memoryProperties)
		if err != nil {
			l.logger.Warn("Layer::QueueSubmit failed to refresh heap budgets",
				slog.Any("error", err),
			)
		}
	}

	l.dumpDeviceState(device)
}
