package domain

import "fmt"

// StreakState holds the streak fields of a record.
type StreakState struct {
	LastActivityDate *Day
	Current          int
	Longest          int
}

// RecordActivity folds an activity on today into the streak. Repeating
// activity on the same day leaves the streak unchanged, the next day extends
// it, and any gap restarts it at 1. A day before the last recorded one is
// rejected with ErrOutOfOrderActivity and the input is returned untouched.
func RecordActivity(state StreakState, today Day) (StreakState, error) {
	next := StreakState{Current: state.Current, Longest: state.Longest}

	if state.LastActivityDate == nil {
		next.Current = 1
	} else {
		switch diff := today.DaysSince(*state.LastActivityDate); {
		case diff < 0:
			return state, fmt.Errorf("%w: last=%s today=%s", ErrOutOfOrderActivity, state.LastActivityDate, today)
		case diff == 0:
		case diff == 1:
			next.Current = state.Current + 1
		default:
			next.Current = 1
		}
	}

	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	day := today
	next.LastActivityDate = &day
	return next, nil
}
