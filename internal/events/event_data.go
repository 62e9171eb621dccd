package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RiskScoreCalculatedData contains data for RiskScoreCalculated events
type RiskScoreCalculatedData struct {
	Ticker       string  `json:"ticker"`
	Date         string  `json:"date"`
	OverallScore float64 `json:"overall_score"`
	RiskLevel    string  `json:"risk_level"`
}

// EventType returns the event type for RiskScoreCalculatedData
func (d *RiskScoreCalculatedData) EventType() EventType {
	return RiskScoreCalculated
}

// RiskBatchCompletedData contains data for RiskBatchCompleted events
type RiskBatchCompletedData struct {
	Requested int     `json:"requested"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Duration  float64 `json:"duration_seconds"`
}

// EventType returns the event type for RiskBatchCompletedData
func (d *RiskBatchCompletedData) EventType() EventType {
	return RiskBatchCompleted
}

// CompanyAddedData contains data for CompanyAdded events
type CompanyAddedData struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Sector string `json:"sector,omitempty"`
}

// EventType returns the event type for CompanyAddedData
func (d *CompanyAddedData) EventType() EventType {
	return CompanyAdded
}

// PriceUpdatedData contains data for PriceUpdated events
type PriceUpdatedData struct {
	Ticker string `json:"ticker,omitempty"`
	Rows   int    `json:"rows"`
}

// EventType returns the event type for PriceUpdatedData
func (d *PriceUpdatedData) EventType() EventType {
	return PriceUpdated
}

// NewsUpdatedData contains data for NewsUpdated events
type NewsUpdatedData struct {
	Ticker   string `json:"ticker,omitempty"`
	Articles int    `json:"articles"`
}

// EventType returns the event type for NewsUpdatedData
func (d *NewsUpdatedData) EventType() EventType {
	return NewsUpdated
}

// AnalyticsSyncedData contains data for AnalyticsSynced events
type AnalyticsSyncedData struct {
	Tables   []string `json:"tables"`
	Duration float64  `json:"duration_seconds"`
}

// EventType returns the event type for AnalyticsSyncedData
func (d *AnalyticsSyncedData) EventType() EventType {
	return AnalyticsSynced
}

// GraphStatusChangedData contains data for GraphStatusChanged events
type GraphStatusChangedData struct {
	Connected bool   `json:"connected"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for GraphStatusChangedData
func (d *GraphStatusChangedData) EventType() EventType {
	return GraphStatusChanged
}

// SystemStatusChangedData contains data for SystemStatusChanged events
type SystemStatusChangedData struct {
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for SystemStatusChangedData
func (d *SystemStatusChangedData) EventType() EventType {
	return SystemStatusChanged
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Bucket    string  `json:"bucket"`
	Key       string  `json:"key"`
	SizeBytes int64   `json:"size_bytes"`
	Duration  float64 `json:"duration_seconds"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// JobProgressInfo contains progress information for a job
type JobProgressInfo struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobID       string                 `json:"job_id"`
	JobType     string                 `json:"job_type"`
	Status      string                 `json:"status"` // "started", "progress", "completed", "failed"
	Description string                 `json:"description"`
	Progress    *JobProgressInfo       `json:"progress,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Duration    float64                `json:"duration,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// EventType returns the event type for JobStatusData
// Note: The actual event type is determined by the Status field
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "started":
		return JobStarted
	case "progress":
		return JobProgress
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	// Marshal the data separately
	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	// Unmarshal data based on event type
	if len(aux.Data) > 0 {
		var eventData EventData
		switch aux.Type {
		case RiskScoreCalculated:
			eventData = &RiskScoreCalculatedData{}
		case RiskBatchCompleted:
			eventData = &RiskBatchCompletedData{}
		case CompanyAdded:
			eventData = &CompanyAddedData{}
		case PriceUpdated:
			eventData = &PriceUpdatedData{}
		case NewsUpdated:
			eventData = &NewsUpdatedData{}
		case AnalyticsSynced:
			eventData = &AnalyticsSyncedData{}
		case GraphStatusChanged:
			eventData = &GraphStatusChangedData{}
		case SystemStatusChanged:
			eventData = &SystemStatusChangedData{}
		case BackupCompleted:
			eventData = &BackupCompletedData{}
		case ErrorOccurred:
			eventData = &ErrorEventData{}
		case JobStarted, JobProgress, JobCompleted, JobFailed:
			eventData = &JobStatusData{}
		default:
			// For unknown types, use raw map
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			eventData = &GenericEventData{Data: rawData}
		}

		if eventData != nil {
			if err := json.Unmarshal(aux.Data, eventData); err != nil {
				return err
			}
			e.Data = eventData
		}
	}

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
