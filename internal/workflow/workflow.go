// Package workflow holds the pure stage state machine for project reviews.
// Functions here mutate in-memory projects only; persisting the result is
// the caller's job.
package workflow

import (
	"errors"
	"math"
	"time"

	"projectgate/api/internal/store"
)

// Stage statuses. A project's stages advance strictly in order: a stage is
// locked until every earlier stage completes, and exactly one stage is
// available or submitted at any time while the project is in progress.
const (
	StatusLocked    = "locked"
	StatusAvailable = "available"
	StatusSubmitted = "submitted"
	StatusCompleted = "completed"
)

// Overall project statuses.
const (
	OverallNotStarted = "not_started"
	OverallInProgress = "in_progress"
	OverallCompleted  = "completed"
)

var (
	ErrStageNotFound     = errors.New("stage not found")
	ErrStageNotAvailable = errors.New("stage is not available for submission")
	ErrStageNotSubmitted = errors.New("stage has no pending submission")
)

type stageTemplate struct {
	name        string
	description string
	dueDays     int
}

var stageTemplates = []stageTemplate{
	{"Title Submission", "Propose a project title for similarity screening", 7},
	{"Proposal", "Submit the full project proposal document", 21},
	{"Progress Report", "Report implementation progress at midterm", 35},
	{"Final Submission", "Deliver the final report and artifacts", 49},
}

// StageCount is the number of review checkpoints every project goes through.
const StageCount = 4

// InitStages builds the four stage rows for a new project. Stage 0 starts
// available, the rest locked, with due dates offset from the creation time.
func InitStages(now time.Time) []store.ReviewStage {
	stages := make([]store.ReviewStage, 0, StageCount)
	for i, tpl := range stageTemplates {
		status := StatusLocked
		if i == 0 {
			status = StatusAvailable
		}
		stages = append(stages, store.ReviewStage{
			StageNumber: i,
			Name:        tpl.name,
			Description: tpl.description,
			Status:      status,
			DueDate:     now.AddDate(0, 0, tpl.dueDays),
		})
	}
	return stages
}

func findStage(project *store.Project, stageNumber int) (*store.ReviewStage, error) {
	for i := range project.Stages {
		if project.Stages[i].StageNumber == stageNumber {
			return &project.Stages[i], nil
		}
	}
	return nil, ErrStageNotFound
}

// Submit records a submission on an available stage and moves it to
// submitted. The project's overall status flips to in_progress on the first
// submission.
func Submit(project *store.Project, stageNumber int, submission store.StageSubmission, now time.Time) error {
	stage, err := findStage(project, stageNumber)
	if err != nil {
		return err
	}
	if stage.Status != StatusAvailable {
		return ErrStageNotAvailable
	}

	submission.SubmittedAt = now
	stage.Submission = &submission
	stage.Status = StatusSubmitted
	stage.Feedback = nil

	if project.OverallStatus == OverallNotStarted {
		project.OverallStatus = OverallInProgress
	}
	project.LastActivity = now
	return nil
}

// Approve completes a submitted stage and unlocks the next one. When the
// final stage is approved the whole project completes.
func Approve(project *store.Project, stageNumber int, feedback store.StageFeedback, now time.Time) error {
	stage, err := findStage(project, stageNumber)
	if err != nil {
		return err
	}
	if stage.Status != StatusSubmitted {
		return ErrStageNotSubmitted
	}

	feedback.Approved = true
	feedback.ReviewedAt = now
	stage.Feedback = &feedback
	stage.Status = StatusCompleted
	completedAt := now
	stage.CompletedAt = &completedAt

	if next, err := findStage(project, stageNumber+1); err == nil {
		next.Status = StatusAvailable
		project.CurrentStage = next.StageNumber
		project.OverallStatus = OverallInProgress
	} else {
		project.CurrentStage = stageNumber
		project.OverallStatus = OverallCompleted
	}
	project.LastActivity = now
	return nil
}

// Reject returns a submitted stage to available so the student can revise
// and resubmit. The rejected submission stays attached for reference.
func Reject(project *store.Project, stageNumber int, feedback store.StageFeedback, now time.Time) error {
	stage, err := findStage(project, stageNumber)
	if err != nil {
		return err
	}
	if stage.Status != StatusSubmitted {
		return ErrStageNotSubmitted
	}

	feedback.Approved = false
	feedback.ReviewedAt = now
	stage.Feedback = &feedback
	stage.Status = StatusAvailable
	project.LastActivity = now
	return nil
}

// Progress returns the share of completed stages as a rounded percentage.
func Progress(project *store.Project) int {
	if len(project.Stages) == 0 {
		return 0
	}
	completed := 0
	for _, stage := range project.Stages {
		if stage.Status == StatusCompleted {
			completed++
		}
	}
	return int(math.Round(float64(completed) / float64(len(project.Stages)) * 100))
}

// CurrentAvailableStage returns the stage open for submission, or nil when
// none is (everything completed or awaiting review).
func CurrentAvailableStage(project *store.Project) *store.ReviewStage {
	for i := range project.Stages {
		if project.Stages[i].Status == StatusAvailable {
			return &project.Stages[i]
		}
	}
	return nil
}

// NextDueDate returns the due date of the first stage that is not yet
// completed; ok is false once every stage is done.
func NextDueDate(project *store.Project) (time.Time, bool) {
	for _, stage := range project.Stages {
		if stage.Status != StatusCompleted {
			return stage.DueDate, true
		}
	}
	return time.Time{}, false
}
