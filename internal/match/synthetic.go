package match

import (
	"fmt"
	"math/rand"

	"github.com/driftchat/driftchat-server/internal/utils"
)

// Fixed candidate lists for synthetic partners. Drawn uniformly; a synthetic
// partner looks plausible but is never persisted anywhere.
var (
	syntheticNames = []string{
		"Alex", "Sam", "Maria", "Lena", "Chris", "Nina",
		"Tom", "Julia", "Max", "Sofia", "Leo", "Emma",
	}
	syntheticCountries = []string{
		"Germany", "France", "Spain", "Italy", "Poland",
		"Brazil", "Japan", "Canada", "Netherlands", "Sweden",
	}
	syntheticLanguages = []string{
		"English", "German", "French", "Spanish", "Portuguese",
	}
)

// newSyntheticPartner builds a partner from the fixed candidate lists with a
// freshly generated id.
func newSyntheticPartner() *Partner {
	return &Partner{
		Kind:        PartnerSynthetic,
		SyntheticID: "syn_" + utils.NewID(),
		DisplayName: syntheticNames[rand.Intn(len(syntheticNames))],
		Country:     syntheticCountries[rand.Intn(len(syntheticCountries))],
		Language:    syntheticLanguages[rand.Intn(len(syntheticLanguages))],
	}
}

// connectedMessage is the system message seeded into a fresh conversation.
func connectedMessage(p *Partner) string {
	if p.Country != "" {
		return fmt.Sprintf("You are now connected with %s from %s.", p.DisplayName, p.Country)
	}
	return fmt.Sprintf("You are now connected with %s.", p.DisplayName)
}
