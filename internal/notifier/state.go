package notifier

// State is the shared tray/notification indicator. Exactly one account
// may be "the" notifying account; a later notification from another
// account overwrites the pointer, never queues behind it.
type State struct {
	Notifying bool
	// Account is the notifying account's index; meaningful only while
	// Notifying is true.
	Account int
}

func normalState() State { return State{} }

func notifyingState(index int) State {
	return State{Notifying: true, Account: index}
}
