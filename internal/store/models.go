package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	UserType              string
	Department            string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TitleRecord is an accepted project title in the similarity corpus.
// Records are created on accepted submissions and never mutated; they are
// retained even after the submitting student graduates so future candidates
// keep being compared against them.
type TitleRecord struct {
	ID          string
	Title       string
	SubmittedBy string
	Department  string
	SubmittedAt time.Time
}

type Project struct {
	ID            string
	StudentID     string
	Department    string
	AcademicYear  string
	CurrentStage  int
	OverallStatus string
	CreatedAt     time.Time
	LastActivity  time.Time
	Stages        []ReviewStage
	Notifications []Notification
}

// ReviewStage is one of the four sequential submission checkpoints of a
// project. Submission and Feedback are persisted as JSONB.
type ReviewStage struct {
	StageNumber int
	Name        string
	Description string
	Status      string
	Submission  *StageSubmission
	Feedback    *StageFeedback
	DueDate     time.Time
	CompletedAt *time.Time
}

type StageSubmission struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Files       []SubmissionFile    `json:"files,omitempty"`
	SubmittedAt time.Time           `json:"submittedAt"`
	Similarity  *SimilaritySnapshot `json:"similarity,omitempty"`
}

type SubmissionFile struct {
	Name        string `json:"name"`
	ObjectKey   string `json:"objectKey"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// SimilaritySnapshot preserves the similarity evidence recorded when a title
// submission was accepted.
type SimilaritySnapshot struct {
	Percentage   int             `json:"percentage"`
	ComparedWith []ComparedTitle `json:"comparedWith,omitempty"`
}

type ComparedTitle struct {
	RecordID   string `json:"recordId"`
	Title      string `json:"title"`
	Percentage int    `json:"percentage"`
}

type StageFeedback struct {
	Comment    string    `json:"comment"`
	Grade      int       `json:"grade,omitempty"`
	ReviewerID string    `json:"reviewerId"`
	ReviewedAt time.Time `json:"reviewedAt"`
	Approved   bool      `json:"approved"`
}

// Notification is an append-only log entry on a project. Only the read flag
// changes after creation.
type Notification struct {
	ID        int64
	ProjectID string
	Message   string
	Type      string
	Read      bool
	CreatedAt time.Time
}
