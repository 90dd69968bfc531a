package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/voicetrigger/internal/errors"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// ListDevices returns the available capture devices.
func ListDevices(backend string) ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(backends(backend), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodeID(infos[i].ID.String()),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// selectDevice picks the device matching source by decoded ID or name
// substring. An empty source, "default" or "sysdefault" picks the system
// default, falling back to the first device.
func selectDevice(infos []malgo.DeviceInfo, source string) (*malgo.DeviceInfo, error) {
	if len(infos) == 0 {
		return nil, errors.Newf("no capture devices found").
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Build()
	}

	if source == "" || source == "default" || source == "sysdefault" {
		for i := range infos {
			if infos[i].IsDefault == 1 {
				return &infos[i], nil
			}
		}
		return &infos[0], nil
	}

	for i := range infos {
		if matchesDevice(decodeID(infos[i].ID.String()), infos[i].Name(), source) {
			return &infos[i], nil
		}
	}

	return nil, errors.Newf("no capture device matches %q", source).
		Component("audiocore").
		Category(errors.CategoryNotFound).
		Context("device", source).
		Build()
}

func matchesDevice(decodedID, name, source string) bool {
	return decodedID == source || strings.Contains(name, source)
}

// decodeID turns the hex encoded device ID into text. IDs that are not valid
// hex are returned unchanged.
func decodeID(hexID string) string {
	b, err := hex.DecodeString(hexID)
	if err != nil {
		return hexID
	}
	return strings.TrimRight(string(b), "\x00")
}

// backends maps a configured backend name to the malgo backend list. Unknown
// or empty names select the platform default.
func backends(name string) []malgo.Backend {
	switch strings.ToLower(name) {
	case "alsa":
		return []malgo.Backend{malgo.BackendAlsa}
	case "pulseaudio", "pulse":
		return []malgo.Backend{malgo.BackendPulseaudio}
	case "jack":
		return []malgo.Backend{malgo.BackendJack}
	case "wasapi":
		return []malgo.Backend{malgo.BackendWasapi}
	case "coreaudio":
		return []malgo.Backend{malgo.BackendCoreaudio}
	case "null":
		return []malgo.Backend{malgo.BackendNull}
	}

	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}
