package domain

// Built-in type identifiers. They are stable strings shared with saved
// patches and must never change.
const (
	TypeAudioRouter         = "patchbay.audio-router"
	TypeMidiChannelSplitter = "patchbay.midi-channel-splitter"
	TypeMidiProgramMap      = "patchbay.midi-program-map"
	TypeMidiRouter          = "patchbay.midi-router"
	TypeMidiMonitor         = "patchbay.midi-monitor"
	TypeOSCSender           = "patchbay.osc-sender"
	TypeOSCReceiver         = "patchbay.osc-receiver"
	TypeScript              = "patchbay.script"
	TypeMissing             = "patchbay.missing"

	TypeGraph       = "patchbay.graph"
	TypeAudioInput  = "patchbay.audio-input"
	TypeAudioOutput = "patchbay.audio-output"
	TypeMidiInput   = "patchbay.midi-input"
	TypeMidiOutput  = "patchbay.midi-output"
)
