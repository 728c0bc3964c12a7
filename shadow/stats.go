package shadow

import (
	"strconv"
	"sync/atomic"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// DeviceStatsJSON renders BuildDeviceStats into one JSON document.
func (g *Graph) DeviceStatsJSON(deviceName string, device DeviceHandle) ([]byte, error) {
	writer := jwriter.NewWriter()
	g.BuildDeviceStats(&writer, deviceName, device)
	if err := writer.Error(); err != nil {
		return nil, errors.Wrap(err, "building device stats")
	}
	return writer.Bytes(), nil
}

// BuildDeviceStats writes a JSON description of one device's shadow state:
// the heap topology with admission counters, the memory type table, and every
// live allocation with its bound buffers and images. The dump is serialized
// against instance teardown, so a handle captured before the call may already
// be gone by the time the dump runs; that produces an empty document rather
// than an error.
func (g *Graph) BuildDeviceStats(writer *jwriter.Writer, deviceName string, device DeviceHandle) {
	g.instanceMutex.Lock()
	defer g.instanceMutex.Unlock()

	rootObj := writer.Object()
	defer rootObj.End()

	g.devicesMutex.RLock()
	deviceRecord := g.devices.Get(device)
	g.devicesMutex.RUnlock()
	if deviceRecord == nil {
		return
	}

	rootObj.Name("DeviceName").String(deviceName)

	physRecord := g.physicalDevices.Get(deviceRecord.PhysicalDevice)
	if physRecord != nil {
		physRecord.StateMutex.Lock()
		printMemoryModel(&rootObj, &physRecord.Memory)
		physRecord.StateMutex.Unlock()
	}

	deviceRecord.memoryMutex.Lock()
	defer deviceRecord.memoryMutex.Unlock()

	printAllocations(&rootObj, deviceRecord)
}

func printMemoryModel(rootObj *jwriter.ObjectState, model *MemoryModel) {
	heapArr := rootObj.Name("Heaps").Array()
	for heapIndex := 0; heapIndex < model.HeapCount; heapIndex++ {
		heap := &model.Heaps[heapIndex]

		heapObj := heapArr.Object()
		heapObj.Name("Index").Int(heapIndex)
		heapObj.Name("Size").Int(heap.Size)
		heapObj.Name("Budget").Int(heap.Budget)
		heapObj.Name("Usage").Int(heap.Usage)
		heapObj.Name("Allocated").Int(int(atomic.LoadInt64(&heap.Allocated)))
		heapObj.Name("Flags").String(heap.Flags.String())
		heapObj.End()
	}
	heapArr.End()

	typeArr := rootObj.Name("MemoryTypes").Array()
	for typeIndex := 0; typeIndex < model.TypeCount; typeIndex++ {
		memoryType := model.Types[typeIndex]

		typeObj := typeArr.Object()
		typeObj.Name("Index").Int(typeIndex)
		typeObj.Name("HeapIndex").Int(memoryType.HeapIndex)
		typeObj.Name("PropertyFlags").String(memoryType.PropertyFlags.String())
		typeObj.End()
	}
	typeArr.End()
}

func printAllocations(rootObj *jwriter.ObjectState, deviceRecord *Device) {
	memoryHandles := deviceRecord.memory.Handles()
	slices.Sort(memoryHandles)

	allocArr := rootObj.Name("Allocations").Array()
	defer allocArr.End()

	for _, memoryHandle := range memoryHandles {
		memoryRecord := deviceRecord.memory.Get(memoryHandle)

		allocObj := allocArr.Object()
		allocObj.Name("Handle").String(memoryHandle.String())
		allocObj.Name("Size").Int(memoryRecord.AllocationSize)
		allocObj.Name("MemoryTypeIndex").Int(memoryRecord.MemoryTypeIndex)
		if memoryRecord.Extra.Flags != 0 {
			allocObj.Name("Extras").String(memoryRecord.Extra.Flags.String())
		}

		bufferArr := allocObj.Name("Buffers").Array()
		for _, binding := range memoryRecord.Buffers {
			printBufferBinding(&bufferArr, deviceRecord, binding)
		}
		bufferArr.End()

		imageArr := allocObj.Name("Images").Array()
		for _, binding := range memoryRecord.Images {
			printImageBinding(&imageArr, deviceRecord, binding)
		}
		imageArr.End()

		allocObj.End()
	}
}

func printBufferBinding(bufferArr *jwriter.ArrayState, deviceRecord *Device, binding BufferBinding) {
	bindObj := bufferArr.Object()
	defer bindObj.End()

	bindObj.Name("Handle").String(binding.Buffer.String())
	bindObj.Name("Offset").Int(binding.Offset)

	bufferRecord := deviceRecord.buffers.Get(binding.Buffer)
	if bufferRecord == nil {
		return
	}
	bindObj.Name("Size").Int(bufferRecord.Size)
	if bufferRecord.RequirementsKnown {
		bindObj.Name("RequiredSize").Int(bufferRecord.Requirements.Size)
		bindObj.Name("Alignment").Int(bufferRecord.Requirements.Alignment)
	}
	if bufferRecord.Extra.Flags != 0 {
		bindObj.Name("Extras").String(bufferRecord.Extra.Flags.String())
	}
}

func printImageBinding(imageArr *jwriter.ArrayState, deviceRecord *Device, binding ImageBinding) {
	bindObj := imageArr.Object()
	defer bindObj.End()

	bindObj.Name("Handle").String(binding.Image.String())
	bindObj.Name("Offset").Int(binding.Offset)
	if binding.Extra.Flags != 0 {
		bindObj.Name("BindExtras").String(binding.Extra.Flags.String())
	}

	imageRecord := deviceRecord.images.Get(binding.Image)
	if imageRecord == nil {
		return
	}
	bindObj.Name("Format").String(strconv.Itoa(int(imageRecord.Format)))
	bindObj.Name("Extent").String(
		strconv.Itoa(imageRecord.Extent.Width) + "x" +
			strconv.Itoa(imageRecord.Extent.Height) + "x" +
			strconv.Itoa(imageRecord.Extent.Depth))
	if imageRecord.RequirementsKnown {
		bindObj.Name("RequiredSize").Int(imageRecord.Requirements.Size)
		bindObj.Name("Alignment").Int(imageRecord.Requirements.Alignment)
	}
	if imageRecord.Extra.Flags != 0 {
		bindObj.Name("Extras").String(imageRecord.Extra.Flags.String())
	}
}
