package audiodevice

import "strings"

type kindRule struct {
	keywords []string
	input    DeviceKind
	output   DeviceKind
}

// Checked in order, first match wins. More specific names come first so that
// "Bluetooth LE Headset" is not caught by the generic bluetooth rule.
var kindRules = []kindRule{
	{[]string{"airplay"}, KindOther, KindAirPlay},
	{[]string{"bluetooth le", " le audio"}, KindBluetoothLE, KindBluetoothLE},
	{[]string{"hands-free", "handsfree", "hfp", "headset (bluetooth"}, KindBluetoothHFP, KindBluetoothHFP},
	{[]string{"bluetooth", "airpods", "a2dp", "bluez"}, KindBluetoothHFP, KindBluetoothA2DP},
	{[]string{"usb"}, KindUSB, KindUSB},
	{[]string{"headset"}, KindHeadsetMic, KindWiredHeadphones},
	{[]string{"headphone"}, KindHeadsetMic, KindWiredHeadphones},
	{[]string{"speaker"}, KindOther, KindBuiltInSpeaker},
	{[]string{"microphone", "mic", "capture", "line in"}, KindMicrophone, KindOther},
}

// Guess the port kind of a device from its human-readable name.
//
// Host APIs like PortAudio only expose names, so this is a best effort.
// Bluetooth inputs are always hands-free profile, since A2DP is output only.
func KindFromName(name string, input bool) DeviceKind {
	lower := strings.ToLower(name)
	for _, rule := range kindRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				if input {
					return rule.input
				}
				return rule.output
			}
		}
	}
	if input {
		return KindMicrophone
	}
	return KindOther
}
