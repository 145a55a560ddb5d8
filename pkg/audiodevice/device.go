package audiodevice

import "fmt"

// The negotiated format of an audio endpoint.
//
// Only mono and stereo endpoints are processed; anything wider is treated
// as stereo by the graph.
type DeviceProperties struct {
	SampleRate  int
	NumChannels int
}

func (p DeviceProperties) String() string {
	return fmt.Sprintf("%dHz/%dch", p.SampleRate, p.NumChannels)
}

// Valid reports whether the properties describe something a stream can be opened with.
func (p DeviceProperties) Valid() bool {
	return p.SampleRate > 0 && p.NumChannels > 0
}

// --------------------------------------------------------------------------------

// The kind of hardware port behind a device.
type DeviceKind int

const (
	KindOther DeviceKind = iota
	KindMicrophone
	KindHeadsetMic
	KindBluetoothHFP
	KindUSB
	KindBluetoothA2DP
	KindBuiltInSpeaker
	KindWiredHeadphones
	KindBluetoothLE
	KindAirPlay
)

func (k DeviceKind) String() string {
	switch k {
	case KindMicrophone:
		return "Microphone"
	case KindHeadsetMic:
		return "HeadsetMic"
	case KindBluetoothHFP:
		return "BluetoothHFP"
	case KindUSB:
		return "USB"
	case KindBluetoothA2DP:
		return "BluetoothA2DP"
	case KindBuiltInSpeaker:
		return "BuiltInSpeaker"
	case KindWiredHeadphones:
		return "WiredHeadphones"
	case KindBluetoothLE:
		return "BluetoothLE"
	case KindAirPlay:
		return "AirPlay"
	default:
		return "Other"
	}
}

// An immutable snapshot of one endpoint, as returned by a single enumeration.
//
// ID is the canonical way to refer to the endpoint when selecting it as a
// preferred input or output. DisplayName is for humans only.
type DeviceDescriptor struct {
	ID          string
	DisplayName string
	Kind        DeviceKind
}

func (d DeviceDescriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.DisplayName, d.Kind, d.ID)
}
