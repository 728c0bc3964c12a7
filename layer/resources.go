package layer

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"

	"github.com/vkngwrapper/layers/shadow"
)

// CreateBuffer forwards creation and shadows the new buffer along with the
// decoded extension records from its creation chain.
func (l *Layer) CreateBuffer(device shadow.DeviceHandle, info BufferCreateInfo) (shadow.BufferHandle, common.VkResult, error) {
	l.logger.Debug("Layer::CreateBuffer")

	driver := l.deviceDriver(device)
	if driver == nil {
		return 0, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	buffer, res, err := driver.CreateBuffer(device, info)
	if err != nil {
		return buffer, res, err
	}

	l.graph.AddBuffer(device, buffer, &shadow.Buffer{
		Size:  info.Size,
		Usage: info.Usage,
		Extra: decodeBufferOptions(info.NextOptions),
	})
	return buffer, res, nil
}

// DestroyBuffer forwards the destroy, removes the shadow record, and scrubs
// the buffer from any memory binding it appears in.
func (l *Layer) DestroyBuffer(device shadow.DeviceHandle, buffer shadow.BufferHandle) {
	l.logger.Debug("Layer::DestroyBuffer")

	driver := l.deviceDriver(device)
	if driver != nil {
		driver.DestroyBuffer(device, buffer)
	}
	l.graph.RemoveBuffer(device, buffer)
}

func (l *Layer) CreateImage(device shadow.DeviceHandle, info ImageCreateInfo) (shadow.ImageHandle, common.VkResult, error) {
	l.logger.Debug("Layer::CreateImage")

	driver := l.deviceDriver(device)
	if driver == nil {
		return 0, core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	image, res, err := driver.CreateImage(device, info)
	if err != nil {
		return image, res, err
	}

	l.graph.AddImage(device, image, &shadow.Image{
		ImageType: info.ImageType,
		Format:    info.Format,
		Extent:    info.Extent,
		Usage:     info.Usage,
		Extra:     decodeImageOptions(info.NextOptions),
	})
	return image, res, nil
}

func (l *Layer) DestroyImage(device shadow.DeviceHandle, image shadow.ImageHandle) {
	l.logger.Debug("Layer::DestroyImage")

	driver := l.deviceDriver(device)
	if driver != nil {
		driver.DestroyImage(device, image)
	}
	l.graph.RemoveImage(device, image)
}

// GetBufferMemoryRequirements forwards the query and caches the result on the
// shadow record for diagnostics.
func (l *Layer) GetBufferMemoryRequirements(device shadow.DeviceHandle, buffer shadow.BufferHandle) core1_0.MemoryRequirements {
	l.logger.Debug("Layer::GetBufferMemoryRequirements")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.MemoryRequirements{}
	}

	requirements := driver.GetBufferMemoryRequirements(device, buffer)
	l.graph.SetBufferRequirements(device, buffer, requirements)
	return requirements
}

func (l *Layer) GetImageMemoryRequirements(device shadow.DeviceHandle, image shadow.ImageHandle) core1_0.MemoryRequirements {
	l.logger.Debug("Layer::GetImageMemoryRequirements")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.MemoryRequirements{}
	}

	requirements := driver.GetImageMemoryRequirements(device, image)
	l.graph.SetImageRequirements(device, image, requirements)
	return requirements
}

// GetBufferMemoryRequirements2 forwards the extended query, chained outputs
// included, and caches the base requirements the same as the core query.
func (l *Layer) GetBufferMemoryRequirements2(device shadow.DeviceHandle, info BufferMemoryRequirementsInfo, out *core1_1.MemoryRequirements2) error {
	l.logger.Debug("Layer::GetBufferMemoryRequirements2")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.VKErrorUnknown.ToError()
	}

	err := driver.GetBufferMemoryRequirements2(device, info, out)
	if err != nil {
		return err
	}

	l.graph.SetBufferRequirements(device, info.Buffer, out.MemoryRequirements)
	return nil
}

func (l *Layer) GetImageMemoryRequirements2(device shadow.DeviceHandle, info ImageMemoryRequirementsInfo, out *core1_1.MemoryRequirements2) error {
	l.logger.Debug("Layer::GetImageMemoryRequirements2")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.VKErrorUnknown.ToError()
	}

	err := driver.GetImageMemoryRequirements2(device, info, out)
	if err != nil {
		return err
	}

	l.graph.SetImageRequirements(device, info.Image, out.MemoryRequirements)
	return nil
}

// BindBufferMemory forwards the bind and, on success, records the binding.
// Rebinding (legal for sparse-capable implementations and replay tooling)
// moves the shadow binding rather than duplicating it.
func (l *Layer) BindBufferMemory(device shadow.DeviceHandle, buffer shadow.BufferHandle, memory shadow.MemoryHandle, offset int) (common.VkResult, error) {
	l.logger.Debug("Layer::BindBufferMemory")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	res, err := driver.BindBufferMemory(device, buffer, memory, offset)
	if err != nil {
		return res, err
	}

	l.graph.BindBuffer(device, buffer, memory, offset)
	return res, nil
}

// BindBufferMemory2 forwards the batched bind and records every binding on
// success. The downstream call either binds the whole batch or none of it, so
// per-element rollback is not needed.
func (l *Layer) BindBufferMemory2(device shadow.DeviceHandle, binds []BindBufferMemoryInfo) (common.VkResult, error) {
	l.logger.Debug("Layer::BindBufferMemory2")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	res, err := driver.BindBufferMemory2(device, binds)
	if err != nil {
		return res, err
	}

	for _, bind := range binds {
		l.graph.BindBuffer(device, bind.Buffer, bind.Memory, bind.Offset)
	}
	return res, nil
}

func (l *Layer) BindImageMemory(device shadow.DeviceHandle, image shadow.ImageHandle, memory shadow.MemoryHandle, offset int) (common.VkResult, error) {
	l.logger.Debug("Layer::BindImageMemory")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	res, err := driver.BindImageMemory(device, image, memory, offset)
	if err != nil {
		return res, err
	}

	l.graph.BindImage(device, image, memory, offset, shadow.ImageBindExtras{})
	return res, nil
}

func (l *Layer) BindImageMemory2(device shadow.DeviceHandle, binds []BindImageMemoryInfo) (common.VkResult, error) {
	l.logger.Debug("Layer::BindImageMemory2")

	driver := l.deviceDriver(device)
	if driver == nil {
		return core1_0.VKErrorUnknown, core1_0.VKErrorUnknown.ToError()
	}

	res, err := driver.BindImageMemory2(device, binds)
	if err != nil {
		return res, err
	}

	for _, bind := range binds {
		l.graph.BindImage(device, bind.Image, bind.Memory, bind.Offset, decodeBindImageOptions(bind.NextOptions))
	}
	return res, nil
}
