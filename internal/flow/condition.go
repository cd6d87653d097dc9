package flow

import (
	"slices"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// IsVisible reports whether a question guarded by cond should be asked given answers.
//
// A nil or empty condition is always visible. Otherwise the condition holds when
// the answer recorded for any one of its keys matches: a collection answer must
// share at least one value with the accepted set, a scalar must be a member of it.
// Missing answers never match.
func IsVisible(cond models.Condition, answers models.Answers) bool {
	if len(cond) == 0 {
		return true
	}
	for key, accepted := range cond {
		answer, ok := answers[key]
		if !ok {
			continue
		}
		if answer.IsMulti() {
			for _, v := range answer.Values() {
				if slices.Contains(accepted, v) {
					return true
				}
			}
			continue
		}
		if slices.Contains(accepted, answer.String()) {
			return true
		}
	}
	return false
}
