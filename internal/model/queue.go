package model

import "time"

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueRunning   QueueStatus = "running"
	QueueDone      QueueStatus = "done"
	QueueFailed    QueueStatus = "failed"
	QueueCancelled QueueStatus = "cancelled"
)

// IsFinished reports whether the item reached a terminal state.
func (s QueueStatus) IsFinished() bool {
	return s == QueueDone || s == QueueFailed || s == QueueCancelled
}

// QueueItem is one entry in the download queue.
type QueueItem struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Target     string      `json:"target"`
	Status     QueueStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	OutputPath string      `json:"outputPath,omitempty"`
	AddedAt    time.Time   `json:"addedAt"`
	FinishedAt time.Time   `json:"finishedAt,omitempty"`
}
