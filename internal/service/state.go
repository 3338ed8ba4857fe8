package service

// State is the position of a service in its enable/disable sequence.
type State int

const (
	Idle State = iota
	Discovering
	CheckingVersion
	SettingPeriod
	Subscribing
	Enabled
	Disabling
	Failed
)

var stateNames = [...]string{
	Idle:            "idle",
	Discovering:     "discovering",
	CheckingVersion: "checking-version",
	SettingPeriod:   "setting-period",
	Subscribing:     "subscribing",
	Enabled:         "enabled",
	Disabling:       "disabling",
	Failed:          "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
