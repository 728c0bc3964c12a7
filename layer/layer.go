package layer

import (
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/layers/shadow"
)

// LayerName identifies this layer in tool queries and log output.
const LayerName = "VK_LAYER_LUNARG_slow_device_simulator"

// vulkan13 is the packed version number for Vulkan 1.3: the minor version
// lives at bit 12.
const vulkan13 = common.Vulkan1_2 + (1 << 12)

// CreateFlags exposes options for layer behavior that can be applied at setup.
type CreateFlags int32

var layerCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	layerCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return layerCreateFlagsMapping.FlagsToString(f)
}

const (
	// LayerCreateExternallySynchronized disables internal locking for hosts
	// that guarantee single-threaded dispatch, such as trace replay.
	LayerCreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	LayerCreateExternallySynchronized.Register("LayerCreateExternallySynchronized")
}

// CreateOptions configures a Layer beyond its dispatch chain.
type CreateOptions struct {
	Flags CreateFlags

	// DumpSink receives a JSON line describing device memory state after
	// device creation and after submits that follow binding changes. A nil
	// sink disables dumps.
	DumpSink io.Writer

	// Clock and Sleep replace the wall clock used by fence delay simulation.
	// Nil means time.Now and time.Sleep.
	Clock func() time.Time
	Sleep func(time.Duration)
}

// Layer intercepts a subset of commands on their way to the next element of
// the dispatch chain, simulating a slower device: fences that take longer to
// signal and memory heaps that are smaller than the hardware's. Every call is
// forwarded downstream; shadow state is only updated for calls that succeed,
// so the layer's view never disagrees with the driver about what exists.
type Layer struct {
	logger *slog.Logger
	next   InstanceDriver
	graph  *shadow.Graph

	settings Settings
	dumpSink io.Writer
	dumpLock sync.Mutex

	driverLock    sync.RWMutex
	deviceDrivers map[shadow.DeviceHandle]DeviceDriver

	clock func() time.Time
	sleep func(time.Duration)
}

// New builds a Layer dispatching to next. Settings are re-read at each
// instance creation, so one Layer can serve several instances with different
// policies over its lifetime.
func New(logger *slog.Logger, next InstanceDriver, settings Settings, options CreateOptions) (*Layer, error) {
	if next == nil {
		return nil, errors.New("next cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	layer := &Layer{
		logger: logger,
		next:   next,
		graph: shadow.NewGraph(shadow.GraphOptions{
			ExternallySynchronized: options.Flags&LayerCreateExternallySynchronized != 0,
		}),

		settings: settings,
		dumpSink: options.DumpSink,

		deviceDrivers: make(map[shadow.DeviceHandle]DeviceDriver),

		clock: options.Clock,
		sleep: options.Sleep,
	}
	if layer.clock == nil {
		layer.clock = time.Now
	}
	if layer.sleep == nil {
		layer.sleep = time.Sleep
	}

	return layer, nil
}

// Graph exposes the shadow object graph, primarily for diagnostics.
func (l *Layer) Graph() *shadow.Graph {
	return l.graph
}

func (l *Layer) deviceDriver(device shadow.DeviceHandle) DeviceDriver {
	l.driverLock.RLock()
	defer l.driverLock.RUnlock()

	return l.deviceDrivers[device]
}

func (l *Layer) setDeviceDriver(device shadow.DeviceHandle, driver DeviceDriver) {
	l.driverLock.Lock()
	defer l.driverLock.Unlock()

	l.deviceDrivers[device] = driver
}

func (l *Layer) dropDeviceDriver(device shadow.DeviceHandle) {
	l.driverLock.Lock()
	defer l.driverLock.Unlock()

	delete(l.deviceDrivers, device)
}
