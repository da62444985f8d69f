package convo

// Automated reply copy sent to the customer after a transition lands in the
// given state. The exchange runs in Bulgarian.
var replies = map[State]string{
	StateAwaitingDesc:      "Здравейте! Благодарим, че се свързахте с нас. Моля, опишете накратко проблема, за който търсите специалист.",
	StateAnalyzingProblem:  "Благодарим! Обработваме описанието на проблема, момент...",
	StateFollowUpQuestions: "За да насочим правилния специалист, моля уточнете: къде се намирате и кога е удобно да ви посетим?",
	StateGatheringDetails:  "Остава ни само още малко информация. Моля, допълнете липсващите детайли.",
	StateProvidingAdvice:   "Ето какво препоръчваме за вашия случай. Ако желаете посещение от специалист, потвърдете и ще уговорим час.",
	StateSchedulingVisit:   "Чудесно! Предлагаме посещение в удобно за вас време. Моля, потвърдете часа.",
	StateCompleted:         "Посещението е потвърдено. Специалистът ще се свърже с вас преди уговорения час. Благодарим ви!",
	StateHumanHandoff:      "Свързваме ви с наш колега, който ще поеме разговора. Моля, изчакайте.",
}

// Reply returns the automated message for state, or empty when the state has
// no customer-facing copy (nothing is spoken while in INITIAL_RESPONSE, the
// greeting belongs to the transition out of it).
func Reply(s State) string {
	return replies[s]
}
