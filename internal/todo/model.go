package todo

import "time"

// TimeLayout is the creation timestamp format: UTC with millisecond precision,
// fixed width so that timestamps sort lexicographically.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Item is a single task owned by one user.
type Item struct {
	UserID        string `json:"userId"`
	TodoID        string `json:"todoId"`
	CreatedAt     string `json:"createdAt"`
	Name          string `json:"name"`
	DueDate       string `json:"dueDate"`
	Done          bool   `json:"done"`
	AttachmentURL string `json:"attachmentUrl"`
}

// CreateRequest is the payload for creating a new item.
type CreateRequest struct {
	Name    string `json:"name"`
	DueDate string `json:"dueDate"`
}

// UpdateRequest is the payload for updating an existing item.
type UpdateRequest struct {
	Name    string `json:"name"`
	DueDate string `json:"dueDate"`
	Done    bool   `json:"done"`
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
