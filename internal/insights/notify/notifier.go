package notify

import "context"

// AlertMessage represents a notification payload for a finding.
type AlertMessage struct {
	SiteID            string            `json:"site_id"`
	FindingID         string            `json:"finding_id"`
	Category          string            `json:"category"`
	Severity          string            `json:"severity"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Recommendation    string            `json:"recommendation"`
	EstimatedValueGBP float64           `json:"estimated_value_gbp"`
	Meta              map[string]string `json:"meta,omitempty"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}
