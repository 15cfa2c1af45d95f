package supplier

import "strings"

// Carrier is one shipping option reported by the supplier for a
// destination. ShippingCountries and ExcludedReferences are empty for
// most carriers; when present they restrict where and what it ships.
type Carrier struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	ShippingCountries  []string `json:"shippingCountries,omitempty"`
	ExcludedReferences []string `json:"excludedReferences,omitempty"`
}

// Ships reports whether the carrier serves the destination country and
// does not exclude any of the order's product references.
func (c Carrier) Ships(country string, refs []string) bool {
	if len(c.ShippingCountries) > 0 && !containsFold(c.ShippingCountries, country) {
		return false
	}
	for _, ref := range refs {
		if containsFold(c.ExcludedReferences, ref) {
			return false
		}
	}
	return true
}

// SelectCarrier picks the first carrier from the priority list that is
// available and ships the order. Priority names come from configuration,
// not code; no carrier name has business meaning beyond first-match-wins.
// When nothing matches, the configured fallback is returned so an order
// is never dropped over carrier choice alone.
func SelectCarrier(available []Carrier, country string, refs []string, priority []string, fallback string) string {
	eligible := make([]Carrier, 0, len(available))
	for _, c := range available {
		if c.Ships(country, refs) {
			eligible = append(eligible, c)
		}
	}
	for _, want := range priority {
		for _, c := range eligible {
			if strings.EqualFold(c.Name, want) {
				return c.Name
			}
		}
	}
	return fallback
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
