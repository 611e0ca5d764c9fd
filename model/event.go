package model

import "time"

// AssetEventType names a step in an asset's background processing.
type AssetEventType string

const (
	EventJobStarted   AssetEventType = "job_started"
	EventJobSucceeded AssetEventType = "job_succeeded"
	EventJobFailed    AssetEventType = "job_failed"
	EventSegment      AssetEventType = "segment"
	EventReady        AssetEventType = "ready"
	EventStalled      AssetEventType = "stalled"
)

// Terminal reports whether no further events follow for the asset.
func (t AssetEventType) Terminal() bool {
	return t == EventReady || t == EventStalled
}

// AssetEvent is published while an asset is being transcoded.
type AssetEvent struct {
	AssetID   string         `json:"assetId"`
	Type      AssetEventType `json:"type"`
	Rendition string         `json:"rendition,omitempty"`
	File      string         `json:"file,omitempty"`
	Message   string         `json:"message,omitempty"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
	At        time.Time      `json:"at"`
}
