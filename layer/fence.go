package layer

import (
	"time"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/vkngwrapper/layers/shadow"
)

// CreateFence forwards creation and shadows the fence with the device's delay
// policy snapshotted in, so later policy-free lookups never race a teardown
// of the instance that configured them.
func (l *Layer) CreateFence(device shadow.DeviceHandle, info FenceCreateInfo) (shadow.FenceHandle, common.VkResult, error) {
	l.logger.Debug("Layer::CreateFence")

	driver := l.deviceDriver(device)
	if driver == nil {
		return 0, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	fence, res, err := driver.CreateFence(device, info)
	if err != nil {
		return fence, res, err
	}

	l.trackFence(device, fence, info.Flags&core1_0.FenceCreateSignaled != 0)
	return fence, res, nil
}

func (l *Layer) trackFence(device shadow.DeviceHandle, fence shadow.FenceHandle, signalled bool) {
	deviceRecord := l.graph.Device(device)
	if deviceRecord == nil || deviceRecord.Policy.FenceDelayMode == shadow.FenceDelayNone {
		return
	}

	record := &shadow.Fence{
		Signalled:  signalled,
		DelayMode:  deviceRecord.Policy.FenceDelayMode,
		DelayCount: deviceRecord.Policy.FenceDelayCount,
	}
	if signalled {
		record.StartTime = l.clock()
	}
	l.graph.AddFence(device, fence, record)
}

func (l *Layer) DestroyFence(device shadow.DeviceHandle, fence shadow.FenceHandle) {
	l.logger.Debug("Layer::DestroyFence")

	driver := l.deviceDriver(device)
	if driver != nil {
		driver.DestroyFence(device, fence)
	}
	l.graph.RemoveFence(device, fence)
}

// ResetFences returns each tracked fence to its unsignalled rest state before
// forwarding, so a reused fence starts a fresh delay cycle.
func (l *Layer) ResetFences(device shadow.DeviceHandle, fences []shadow.FenceHandle) (common.VkResult, error) {
	l.logger.Debug("Layer::ResetFences")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	for _, fence := range fences {
		l.graph.UpdateFence(device, fence, func(record *shadow.Fence) {
			record.Signalled = false
			record.WaitStarted = false
			record.WaitCompleted = false
			record.Elapsed = 0
			record.StartTime = time.Time{}
		})
	}

	return driver.ResetFences(device, fences)
}

// armFence marks a fence as handed to a signalling operation. For the
// trigger-relative mode this is the moment the delay clock starts.
func (l *Layer) armFence(device shadow.DeviceHandle, fence shadow.FenceHandle) {
	if fence == 0 {
		return
	}

	now := l.clock()
	l.graph.UpdateFence(device, fence, func(record *shadow.Fence) {
		record.Signalled = true
		record.WaitCompleted = false
		if record.DelayMode == shadow.FenceDelayMsFromTrigger {
			record.StartTime = now
			record.Elapsed = 0
		}
	})
}

// advanceFence moves the fence's elapsed measure per its mode: wall-clock
// milliseconds for the two timed modes (the first-query mode latches its
// start on the first status observation), one failed query for the count
// mode. Elapsed never moves backwards, so repeated queries converge on ready
// rather than oscillating.
func (l *Layer) advanceFence(record *shadow.Fence, now time.Time) {
	switch record.DelayMode {
	case shadow.FenceDelayMsFromTrigger:
		elapsed := int(now.Sub(record.StartTime) / time.Millisecond)
		if elapsed > record.Elapsed {
			record.Elapsed = elapsed
		}
	case shadow.FenceDelayMsFromFirstQuery:
		if !record.WaitStarted {
			record.StartTime = now
		} else {
			elapsed := int(now.Sub(record.StartTime) / time.Millisecond)
			if elapsed > record.Elapsed {
				record.Elapsed = elapsed
			}
		}
	case shadow.FenceDelayNumFailWaits:
		record.Elapsed++
	}
	record.WaitStarted = true
}

// GetFenceStatus reports VK_NOT_READY, without consulting the driver, until
// the fence has both been armed and served out its configured delay. Once the
// delay is spent the query falls through to the real status, so the layer
// can only ever delay readiness, never invent it.
func (l *Layer) GetFenceStatus(device shadow.DeviceHandle, fence shadow.FenceHandle) (common.VkResult, error) {
	l.logger.Debug("Layer::GetFenceStatus")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	now := l.clock()
	delayed := false
	tracked := l.graph.UpdateFence(device, fence, func(record *shadow.Fence) {
		if record.DelayMode == shadow.FenceDelayNone {
			return
		}

		l.advanceFence(record, now)
		if !record.Signalled || record.DelayCount > record.Elapsed {
			delayed = true
			return
		}
		record.WaitCompleted = true
	})

	if tracked && delayed {
		return core1_0.VKNotReady, nil
	}
	return driver.GetFenceStatus(device, fence)
}

// WaitForFences simulates the delay for each tracked fence, then forwards
// the wait for whatever remains.
//
// An armed fence whose remaining delay cannot fit in the caller's timeout
// produces VK_TIMEOUT up front when waiting for all fences; when waiting for
// any, it is simply withheld from the forwarded wait. Fences whose delay does
// fit are slept out here so the downstream wait observes them already
// serviceable. A tracked fence no submit has armed yet is forwarded
// untouched, because the driver may see a racing submit signal it within the
// caller's timeout. If simulation consumes every fence the call returns
// VK_TIMEOUT without forwarding, since a downstream wait on zero fences is
// invalid.
func (l *Layer) WaitForFences(device shadow.DeviceHandle, fences []shadow.FenceHandle, waitAll bool, timeout time.Duration) (common.VkResult, error) {
	l.logger.Debug("Layer::WaitForFences")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	msTillTimeout := int(timeout / time.Millisecond)

	forwarded := make([]shadow.FenceHandle, 0, len(fences))
	timedOut := false

	for _, fence := range fences {
		include := true
		var sleepTime time.Duration
		l.graph.UpdateFence(device, fence, func(record *shadow.Fence) {
			if record.DelayMode == shadow.FenceDelayNone || !record.Signalled {
				return
			}

			canTimeout := true

			l.advanceFence(record, l.clock())
			remaining := record.DelayCount - record.Elapsed

			switch record.DelayMode {
			case shadow.FenceDelayMsFromTrigger, shadow.FenceDelayMsFromFirstQuery:
				if msTillTimeout > 0 && remaining > 0 {
					sleepTime = time.Duration(remaining) * time.Millisecond
				}
			case shadow.FenceDelayNumFailWaits:
				// A wait this long is treated as effectively unbounded: the
				// count is served out by sleeping instead of failing the wait.
				if timeout >= time.Second {
					canTimeout = false
					if remaining > 0 {
						sleepTime = time.Duration(remaining) * 10 * time.Millisecond
					}
				}
			}

			totalMax := record.Elapsed
			if sleepTime > 0 {
				totalMax += msTillTimeout
			}

			if canTimeout && record.DelayCount > totalMax {
				timedOut = true
				include = false
				sleepTime = 0
				return
			}

			if sleepTime == 0 {
				record.WaitCompleted = true
			}
		})

		if sleepTime > 0 {
			// The artificial delay is served with no fence lock held, so
			// unrelated fence queries on the device do not stall behind it.
			l.sleep(sleepTime)
			l.graph.UpdateFence(device, fence, func(record *shadow.Fence) {
				if record.Elapsed < record.DelayCount {
					record.Elapsed = record.DelayCount
				}
				record.WaitCompleted = true
			})
		}

		if timedOut && waitAll {
			return core1_0.VKTimeout, nil
		}
		if include {
			forwarded = append(forwarded, fence)
		}
	}

	if len(fences) > 0 && len(forwarded) == 0 {
		return core1_0.VKTimeout, nil
	}
	return driver.WaitForFences(device, forwarded, waitAll, timeout)
}

// RegisterDeviceEvent forwards the registration and shadows the returned
// fence, armed: the event is the trigger for its delay.
func (l *Layer) RegisterDeviceEvent(device shadow.DeviceHandle, info DeviceEventInfo) (shadow.FenceHandle, common.VkResult, error) {
	l.logger.Debug("Layer::RegisterDeviceEvent")

	driver := l.deviceDriver(device)
	if driver == nil {
		return 0, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	fence, res, err := driver.RegisterDeviceEvent(device, info)
	if err != nil {
		return fence, res, err
	}

	l.trackFence(device, fence, false)
	l.armFence(device, fence)
	return fence, res, nil
}

func (l *Layer) RegisterDisplayEvent(device shadow.DeviceHandle, display shadow.DisplayHandle, info DisplayEventInfo) (shadow.FenceHandle, common.VkResult, error) {
	l.logger.Debug("Layer::RegisterDisplayEvent")

	driver := l.deviceDriver(device)
	if driver == nil {
		return 0, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	fence, res, err := driver.RegisterDisplayEvent(device, display, info)
	if err != nil {
		return fence, res, err
	}

	l.trackFence(device, fence, false)
	l.armFence(device, fence)
	return fence, res, nil
}
