package models

import "time"

// SessionStatus represents the lifecycle state of a tracked tab
type SessionStatus string

const (
	StatusRunning SessionStatus = "RUNNING"
	StatusFlushed SessionStatus = "FLUSHED"
	StatusClosed  SessionStatus = "CLOSED"
	StatusExpired SessionStatus = "EXPIRED"
)

// Session is the agent's view of one tracked tab
type Session struct {
	ID          string        `json:"id"`
	TabID       string        `json:"tabId"`
	RemoteHost  string        `json:"remoteHost"`
	Status      SessionStatus `json:"status"`
	URL         string        `json:"url"`
	StartedAt   time.Time     `json:"startedAt"`
	LastEventAt time.Time     `json:"lastEventAt"`
	Flushes     int           `json:"flushes"`
}
