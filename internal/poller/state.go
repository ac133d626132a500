package poller

type State int

const (
	StateStart State = iota
	StateNavigated
	StateAuthenticated
	StateResourceLocated
	StateConfigured
	StateScanned
	StateSelected
	StateBooking
	StateTerminal
)

var stateNames = [...]string{
	StateStart:           "start",
	StateNavigated:       "navigated",
	StateAuthenticated:   "authenticated",
	StateResourceLocated: "resource_located",
	StateConfigured:      "configured",
	StateScanned:         "scanned",
	StateSelected:        "selected",
	StateBooking:         "booking",
	StateTerminal:        "terminal",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
