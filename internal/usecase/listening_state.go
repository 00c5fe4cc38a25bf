package usecase

import "vectort/internal/domain"

// listeningTrigger names an input of the capture state machine.
type listeningTrigger string

const (
	triggerStartRequested listeningTrigger = "start_requested"
	triggerStarted        listeningTrigger = "started"
	triggerStartFailed    listeningTrigger = "start_failed"
	triggerStopRequested  listeningTrigger = "stop_requested"
	triggerEnded          listeningTrigger = "ended"
	triggerErrored        listeningTrigger = "errored"
)

var listeningTransitions = map[domain.ListeningState]map[listeningTrigger]domain.ListeningState{
	domain.ListeningStateIdle: {
		triggerStartRequested: domain.ListeningStateStarting,
	},
	domain.ListeningStateStarting: {
		triggerStarted:     domain.ListeningStateListening,
		triggerStartFailed: domain.ListeningStateIdle,
		triggerErrored:     domain.ListeningStateIdle,
		triggerEnded:       domain.ListeningStateIdle,
	},
	domain.ListeningStateListening: {
		triggerStopRequested: domain.ListeningStateStopping,
		triggerErrored:       domain.ListeningStateIdle,
		triggerEnded:         domain.ListeningStateIdle,
	},
	domain.ListeningStateStopping: {
		triggerErrored: domain.ListeningStateIdle,
		triggerEnded:   domain.ListeningStateIdle,
	},
}

// transition returns the next state, or false when the trigger is illegal
// in the current state.
func transition(from domain.ListeningState, trigger listeningTrigger) (domain.ListeningState, bool) {
	next, ok := listeningTransitions[from][trigger]
	return next, ok
}

// isListening collapses the internal state to the externally visible flag.
func isListening(state domain.ListeningState) bool {
	return state == domain.ListeningStateListening || state == domain.ListeningStateStopping
}
