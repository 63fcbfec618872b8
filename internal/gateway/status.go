package gateway

import "github.com/Latasoft/CitySoccer-sub001/internal/models"

// providerStatus maps the provider's status vocabulary onto intent states.
// The table is exhaustive over the statuses the provider documents; anything
// absent maps to non-terminal so the engine never guesses approval.
var providerStatus = map[string]string{
	"approved":   models.IntentApproved,
	"successful": models.IntentApproved,
	"paid":       models.IntentApproved,
	"rejected":   models.IntentRejected,
	"failed":     models.IntentRejected,
	"declined":   models.IntentRejected,
	"expired":    models.IntentExpired,
	"timeout":    models.IntentExpired,
}

// MapProviderStatus translates a reported provider status into an intent
// state. terminal=false means the status carries no verdict (e.g. "pending",
// an unknown value, or a provider test event) and must cause no transition.
func MapProviderStatus(reported string) (state string, terminal bool) {
	state, ok := providerStatus[reported]
	return state, ok
}
