// internal/workers/admission/reap-drafts/models.go
package reapdrafts

type Input struct {
	// Reconcile also reports drafts that outlived their admission.
	Reconcile bool `json:"reconcile"`
}

type Output struct {
	ReapedCount         int      `json:"reapedCount"`
	ReapedIDs           []string `json:"reapedIds"`
	Cutoff              string   `json:"cutoff"`
	IntegrityViolations []string `json:"integrityViolations"`
}
