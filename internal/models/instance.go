package models

import "time"

// InstanceInfo describes one running bridge. A secondary republishes its own
// record; the primary owns the merged table.
type InstanceInfo struct {
	ID           string    `json:"id"`
	PID          int       `json:"pid"`
	Port         int       `json:"port"`
	SolutionName string    `json:"solutionName,omitempty"`
	LastSeen     time.Time `json:"lastSeen"`
	IsPrimary    bool      `json:"isPrimary"`
}

// DiscoveryInfo is the descriptor the primary writes to the well-known location
type DiscoveryInfo struct {
	Port          int    `json:"port"`
	PID           int    `json:"pid"`
	KeyHeader     string `json:"keyHeader"`
	DefaultAPIKey string `json:"defaultApiKey"`
	BaseURL       string `json:"baseUrl"`
	InstanceID    string `json:"instanceId,omitempty"`
}
