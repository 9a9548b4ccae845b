package matrix

// State summarizes one action across the pages of a module
type State int

const (
	StateNone State = iota
	StateSome
	StateAll
)

func (s State) String() string {
	switch s {
	case StateAll:
		return "all"
	case StateSome:
		return "some"
	default:
		return "none"
	}
}
