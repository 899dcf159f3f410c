// Package export renders a project review report and converts it to PDF or
// DOCX.
package export

import (
	"errors"
	"time"
)

// Format is the export output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request describes an export operation.
type Request struct {
	ProjectID string
	Format    Format
}

// ProjectInfo is the report input assembled by the caller.
type ProjectInfo struct {
	ID            string
	StudentName   string
	Department    string
	AcademicYear  string
	OverallStatus string
	Progress      int
	CreatedAt     time.Time
	Stages        []StageInfo
}

// StageInfo is one stage row of the report.
type StageInfo struct {
	Number      int
	Name        string
	Status      string
	Title       string
	Description string
	DueDate     time.Time
	CompletedAt *time.Time
	Feedback    *FeedbackInfo
}

// FeedbackInfo is the reviewer decision attached to a stage.
type FeedbackInfo struct {
	Comment  string
	Grade    int
	Reviewer string
	Approved bool
}

// Result is the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates headless Chrome is unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates pandoc is unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
