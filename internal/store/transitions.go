package store

import "github.com/sabrina-Riya/officecore/internal/models"

// Every lifecycle action starts from pending; approved, rejected and
// cancelled are terminal. The backing store enforces the same rule with
// conditional updates; this table exists so callers can report a precise
// error before attempting the write.
var transitionMap = map[string][]string{
	"approve": {models.StatusPending},
	"reject":  {models.StatusPending},
	"cancel":  {models.StatusPending},
	"edit":    {models.StatusPending},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
