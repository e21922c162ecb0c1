package main

import "time"

// Linux input event types (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultStatusPath = "/proc/tristatekey/tri_state"
	defaultInputDev   = "/dev/input/event3"

	// The platform's audio subsystem ignores a ringer write that lands while
	// zen is still NoInterruptions; the ringer is re-asserted after this delay.
	defaultRecheckDelay = 200 * time.Millisecond

	defaultPlatformWsURL     = "ws://127.0.0.1:8765"
	defaultPlatformTimeoutMS = 500

	defaultIPCSocket = "/tmp/alertslider.sock"
	defaultHTTPPort  = 3002

	defaultMQTTTopic = "alertslider/events"

	// Tag sent with zen writes so the platform can attribute them.
	zenTag = "alertslider"
)

// defaultSliderSources lists kernel input device names known to carry the
// alert slider key.
var defaultSliderSources = []string{
	"oplus,hall_tri_state_key",
	"oplus,tri-state-key",
	"oneplus,hall_tri_state_key",
	"tri-state-key",
}
