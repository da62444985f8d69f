// Package convo tracks the lifecycle of an automated exchange with a
// customer, from the initial auto-response through problem analysis to
// hand-off or completion. The package does not understand language: it
// consumes ConversationAnalysis values produced by an external analysis
// step and decides transitions from them.
package convo

// State is the lifecycle state of an automated customer exchange.
type State string

// Lifecycle states. HumanHandoff is the escalation terminal, reachable from
// any non-terminal state.
const (
	StateInitialResponse   State = "INITIAL_RESPONSE"
	StateAwaitingDesc      State = "AWAITING_DESCRIPTION"
	StateAnalyzingProblem  State = "ANALYZING_PROBLEM"
	StateFollowUpQuestions State = "FOLLOW_UP_QUESTIONS"
	StateGatheringDetails  State = "GATHERING_DETAILS"
	StateProvidingAdvice   State = "PROVIDING_ADVICE"
	StateSchedulingVisit   State = "SCHEDULING_VISIT"
	StateCompleted         State = "COMPLETED"
	StateHumanHandoff      State = "HUMAN_HANDOFF"
)

// Urgency classification carried by an analysis result.
const (
	UrgencyLow       = "low"
	UrgencyNormal    = "normal"
	UrgencyHigh      = "high"
	UrgencyEmergency = "emergency"
)

// IsTerminal reports whether no further automated transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateHumanHandoff
}

// Valid reports whether s is one of the defined lifecycle states.
func (s State) Valid() bool {
	switch s {
	case StateInitialResponse, StateAwaitingDesc, StateAnalyzingProblem,
		StateFollowUpQuestions, StateGatheringDetails, StateProvidingAdvice,
		StateSchedulingVisit, StateCompleted, StateHumanHandoff:
		return true
	}
	return false
}

// ConversationAnalysis is the opaque analysis step's verdict on the
// conversation so far. The machine treats it as data; how it was produced
// (keyword scoring, an LLM, a human) is not its concern.
type ConversationAnalysis struct {
	// ProblemType is the classified service category (e.g. "plumbing").
	ProblemType string
	// Urgency is one of the Urgency* constants.
	Urgency string
	// Confidence is the classifier's confidence in [0,1].
	Confidence float64
	// MissingFields lists required fields the customer has not yet supplied.
	MissingFields []string
	// RiskAssessed reports whether a risk assessment was performed.
	RiskAssessed bool
	// EscalationRequested is set when the customer explicitly asked for a
	// human.
	EscalationRequested bool
}

// CompletionCriteria is the policy deciding when an exchange counts as
// complete: every required field present, risk assessment performed when
// demanded, and, when configured, an explicit customer confirmation.
type CompletionCriteria struct {
	RequiredFields        []string
	RequireRiskAssessment bool
	RequireConfirmation   bool

	// MinConfidence is the analysis confidence below which the exchange
	// escalates to a human.
	MinConfidence float64
}

// Satisfied reports whether the analysis meets the completion policy.
// Confirmation is tracked by the machine, not the analysis, and is passed
// separately.
func (c CompletionCriteria) Satisfied(a ConversationAnalysis, confirmed bool) bool {
	if len(a.MissingFields) > 0 {
		return false
	}
	if c.RequireRiskAssessment && !a.RiskAssessed {
		return false
	}
	if c.RequireConfirmation && !confirmed {
		return false
	}
	return true
}

// ShouldEscalate reports whether the analysis demands a human hand-off:
// low classifier confidence, an explicit customer request, or an emergency
// urgency classification.
func (c CompletionCriteria) ShouldEscalate(a ConversationAnalysis) bool {
	if a.EscalationRequested {
		return true
	}
	if a.Urgency == UrgencyEmergency {
		return true
	}
	return c.MinConfidence > 0 && a.Confidence < c.MinConfidence
}
