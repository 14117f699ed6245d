package reporting

import "time"

// StatusCount is one bucket of a by-status breakdown.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ModuleStatistics aggregates one contributor-tier module.
type ModuleStatistics struct {
	Module string `json:"module"`
	Total  int    `json:"total"`
	// Open counts rows whose status is not a closed one.
	Open int `json:"open"`
	// Recent counts rows created inside the reporting window.
	Recent   int           `json:"recent"`
	ByStatus []StatusCount `json:"byStatus"`
}

// Summary is the dashboard payload.
type Summary struct {
	Users       UsersSummary       `json:"users"`
	Modules     []ModuleStatistics `json:"modules"`
	Window      string             `json:"window"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

type UsersSummary struct {
	Total int `json:"total"`
}
