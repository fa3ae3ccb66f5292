package camera

import "github.com/weiawesome/wes-io-stage/internal/domain"

// Event drives a session's state machine.
type Event int

const (
	EvEnable Event = iota
	EvDisable
	EvOffer
	EvICEChecking
	EvICEConnected
	EvICEFailed
	EvRemove
)

func (e Event) String() string {
	switch e {
	case EvEnable:
		return "enable"
	case EvDisable:
		return "disable"
	case EvOffer:
		return "offer"
	case EvICEChecking:
		return "ice_checking"
	case EvICEConnected:
		return "ice_connected"
	case EvICEFailed:
		return "ice_failed"
	case EvRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// phase is the internal state. Several phases share one externally
// visible ConnectionState.
type phase int

const (
	phaseIdle        phase = iota // not wanted; offers are buffered
	phaseWaiting                  // wanted, waiting for an offer
	phaseNegotiating              // answered, ICE in progress
	phaseLive                     // ICE connected
	phaseFailed                   // wanted, last connection failed
	phaseClosed                   // removed; terminal
)

func (p phase) String() string {
	return [...]string{"idle", "waiting", "negotiating", "live", "failed", "closed"}[p]
}

func (p phase) visible() domain.ConnectionState {
	switch p {
	case phaseWaiting, phaseNegotiating:
		return domain.StateConnecting
	case phaseLive:
		return domain.StateConnected
	default:
		return domain.StateDisconnected
	}
}

// action is the side effect attached to a transition.
type action int

const (
	actNone     action = iota
	actBuffer          // remember the offer, latest wins
	actConsume         // answer a buffered offer if there is one
	actAnswer          // close any prior peer, answer this offer
	actTeardown        // close the peer, drop the stream
	actFail            // teardown, then blank if program
	actClose           // teardown and stop the session
)

type step struct {
	to  phase
	act action
}

// transitions is the complete table. Pairs that are absent are ignored.
var transitions = map[phase]map[Event]step{
	phaseIdle: {
		EvEnable:  {phaseWaiting, actConsume},
		EvOffer:   {phaseIdle, actBuffer},
		EvDisable: {phaseIdle, actNone},
		EvRemove:  {phaseClosed, actClose},
	},
	phaseWaiting: {
		EvEnable:  {phaseWaiting, actNone},
		EvOffer:   {phaseNegotiating, actAnswer},
		EvDisable: {phaseIdle, actTeardown},
		EvRemove:  {phaseClosed, actClose},
	},
	phaseNegotiating: {
		EvEnable:       {phaseNegotiating, actNone},
		EvOffer:        {phaseNegotiating, actAnswer},
		EvICEChecking:  {phaseNegotiating, actNone},
		EvICEConnected: {phaseLive, actNone},
		EvICEFailed:    {phaseFailed, actFail},
		EvDisable:      {phaseIdle, actTeardown},
		EvRemove:       {phaseClosed, actClose},
	},
	phaseLive: {
		EvEnable:       {phaseLive, actNone},
		EvOffer:        {phaseNegotiating, actAnswer},
		EvICEChecking:  {phaseNegotiating, actNone},
		EvICEConnected: {phaseLive, actNone},
		EvICEFailed:    {phaseFailed, actFail},
		EvDisable:      {phaseIdle, actTeardown},
		EvRemove:       {phaseClosed, actClose},
	},
	phaseFailed: {
		EvEnable:  {phaseFailed, actNone},
		EvOffer:   {phaseNegotiating, actAnswer},
		EvDisable: {phaseIdle, actTeardown},
		EvRemove:  {phaseClosed, actClose},
	},
}

func next(from phase, ev Event) (step, bool) {
	s, ok := transitions[from][ev]
	return s, ok
}
