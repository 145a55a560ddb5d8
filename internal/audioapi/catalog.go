package audioapi

import (
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/delaymonitor/pkg/audiodevice"
	"github.com/google/uuid"
)

// A Catalog answers "what devices are there right now" for callers that
// must not fail. Every query goes to the underlying API; nothing is cached
// beyond the call.
//
// If the API is transiently unavailable the Catalog returns an empty list and
// logs the cause.
type Catalog struct {
	logger *slog.Logger
	api    AudioIODeviceAPI
}

// Create a new Catalog over the given API.
// If logger is nil, slog.Default() is used.
func NewCatalog(api AudioIODeviceAPI, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		logger: logger.With("catalog uuid", uuid.New()),
		api:    api,
	}
}

func (c *Catalog) ListInputs() []audiodevice.DeviceDescriptor {
	return descriptors(c.Inputs())
}

func (c *Catalog) ListOutputs() []audiodevice.DeviceDescriptor {
	return descriptors(c.Outputs())
}

// The full input device records, including native properties.
// Never nil.
func (c *Catalog) Inputs() []AudioIODevice {
	if c.api == nil {
		return []AudioIODevice{}
	}
	devices, err := c.api.InputDevices()
	if err != nil {
		c.logger.Warn("could not enumerate input devices", "err", err)
		return []AudioIODevice{}
	}
	return nonNil(devices)
}

// The full output device records, including native properties.
// Never nil.
func (c *Catalog) Outputs() []AudioIODevice {
	if c.api == nil {
		return []AudioIODevice{}
	}
	devices, err := c.api.OutputDevices()
	if err != nil {
		c.logger.Warn("could not enumerate output devices", "err", err)
		return []AudioIODevice{}
	}
	return nonNil(devices)
}

func (c *Catalog) FindInput(id string) (AudioIODevice, bool) {
	d, err := FindByID(c.Inputs(), id)
	return d, err == nil
}

func (c *Catalog) FindOutput(id string) (AudioIODevice, bool) {
	d, err := FindByID(c.Outputs(), id)
	return d, err == nil
}

func descriptors(devices []AudioIODevice) []audiodevice.DeviceDescriptor {
	out := make([]audiodevice.DeviceDescriptor, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Descriptor())
	}
	return out
}

func nonNil(devices []AudioIODevice) []AudioIODevice {
	if devices == nil {
		return []AudioIODevice{}
	}
	return devices
}
