package domain

// StatusEvent is the JSON body of one message on the run-status queue.
type StatusEvent struct {
	RunId   string        `json:"workflow_uuid"`
	Status  string        `json:"status"`
	Logs    string        `json:"logs,omitempty"`
	Message *EventMessage `json:"message,omitempty"`
}

// EventMessage is the optional payload of a status event.
type EventMessage struct {
	Progress    *Progress    `json:"progress,omitempty"`
	CachingInfo *CachingInfo `json:"caching_info,omitempty"`
}
