package convo

import (
	"errors"
	"fmt"
)

// ErrTerminalState is returned when an event arrives for an exchange that
// has already completed or been handed off.
var ErrTerminalState = errors.New("conversation is in a terminal state")

// Machine drives one conversation's automated-exchange lifecycle. It is a
// plain value: callers load the persisted state tag, apply events, and store
// the result. The machine itself never touches storage or transports.
type Machine struct {
	state     State
	criteria  CompletionCriteria
	confirmed bool
}

// NewMachine starts a machine at INITIAL_RESPONSE under the given policy.
func NewMachine(criteria CompletionCriteria) *Machine {
	return &Machine{state: StateInitialResponse, criteria: criteria}
}

// Restore rebuilds a machine from a persisted state tag.
func Restore(state State, criteria CompletionCriteria) (*Machine, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("unknown conversation state %q", state)
	}
	return &Machine{state: state, criteria: criteria}, nil
}

// State returns the current lifecycle state.
func (m *Machine) State() State { return m.state }

// OnCustomerMessage records a message arrival from the customer. From
// INITIAL_RESPONSE this moves to AWAITING_DESCRIPTION; in later states a
// message is input to the next analysis pass and moves the exchange to
// ANALYZING_PROBLEM.
func (m *Machine) OnCustomerMessage() (State, error) {
	if m.state.IsTerminal() {
		return m.state, ErrTerminalState
	}
	switch m.state {
	case StateInitialResponse:
		m.state = StateAwaitingDesc
	case StateAwaitingDesc, StateFollowUpQuestions, StateGatheringDetails:
		m.state = StateAnalyzingProblem
	}
	return m.state, nil
}

// OnAnalysis consumes the completed analysis step. Escalation signals win
// over every other transition. Otherwise the exchange advances through
// ANALYZING_PROBLEM → FOLLOW_UP_QUESTIONS → GATHERING_DETAILS →
// PROVIDING_ADVICE, looping back to FOLLOW_UP_QUESTIONS while required
// fields are still missing.
func (m *Machine) OnAnalysis(a ConversationAnalysis) (State, error) {
	if m.state.IsTerminal() {
		return m.state, ErrTerminalState
	}
	if m.criteria.ShouldEscalate(a) {
		m.state = StateHumanHandoff
		return m.state, nil
	}

	switch m.state {
	case StateInitialResponse, StateAwaitingDesc, StateAnalyzingProblem:
		if len(a.MissingFields) > 0 {
			m.state = StateFollowUpQuestions
		} else {
			m.state = StateProvidingAdvice
		}
	case StateFollowUpQuestions:
		if len(a.MissingFields) > 0 {
			m.state = StateGatheringDetails
		} else {
			m.state = StateProvidingAdvice
		}
	case StateGatheringDetails:
		if len(a.MissingFields) > 0 {
			// Still incomplete: ask again.
			m.state = StateFollowUpQuestions
		} else {
			m.state = StateProvidingAdvice
		}
	case StateProvidingAdvice:
		// Confirmation, when required, is collected during scheduling; here
		// only field completeness and risk assessment gate the transition.
		if m.criteria.Satisfied(a, true) {
			m.state = StateSchedulingVisit
		}
	}
	return m.state, nil
}

// OnScheduleConfirmed records the customer's explicit scheduling
// confirmation, completing the exchange from SCHEDULING_VISIT. In
// PROVIDING_ADVICE it records the confirmation for the completion policy
// without forcing a transition.
func (m *Machine) OnScheduleConfirmed() (State, error) {
	if m.state.IsTerminal() {
		return m.state, ErrTerminalState
	}
	m.confirmed = true
	if m.state == StateSchedulingVisit {
		m.state = StateCompleted
	}
	return m.state, nil
}

// Escalate forces the human-handoff terminal from any non-terminal state.
func (m *Machine) Escalate() (State, error) {
	if m.state.IsTerminal() {
		return m.state, ErrTerminalState
	}
	m.state = StateHumanHandoff
	return m.state, nil
}
