package layer

import (
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/layers/shadow"
)

// dumpDeviceState writes one JSON line describing the device's shadow state
// to the configured sink. Dumps from concurrent submits are serialized so
// lines never interleave.
func (l *Layer) dumpDeviceState(device shadow.DeviceHandle) {
	if l.dumpSink == nil {
		return
	}

	deviceName := ""
	if deviceRecord := l.graph.Device(device); deviceRecord != nil {
		if physRecord := l.graph.PhysicalDevice(deviceRecord.PhysicalDevice); physRecord != nil {
			if properties := physRecord.CachedProperties(); properties != nil {
				deviceName = properties.DriverName
			}
		}
	}

	dump, err := l.graph.DeviceStatsJSON(deviceName, device)
	if err != nil {
		l.logger.Warn("failed to build state dump",
			slog.Any("error", err),
		)
		return
	}

	l.dumpLock.Lock()
	defer l.dumpLock.Unlock()

	if _, err := l.dumpSink.Write(append(dump, '\n')); err != nil {
		l.logger.Warn("failed to write state dump",
			slog.Any("error", err),
		)
	}
}
