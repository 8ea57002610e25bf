package models

import "time"

const ExportVersion = "2.0"

// ExportDocument is the backup format shared with the import tool.
type ExportDocument struct {
	Version          string         `json:"version"`
	ExportDate       time.Time      `json:"exportDate"`
	ExportedBy       string         `json:"exportedBy,omitempty"`
	RecordCount      int            `json:"recordCount"`
	IncludesArchived bool           `json:"includesArchived"`
	Data             []ServiceOrder `json:"data"`
}

type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}
