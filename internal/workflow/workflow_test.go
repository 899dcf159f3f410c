package workflow

import (
	"errors"
	"testing"
	"time"

	"projectgate/api/internal/store"
)

var testNow = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

func newProject() *store.Project {
	return &store.Project{
		ID:            "proj_1",
		StudentID:     "usr_student",
		Department:    "Computer Science",
		OverallStatus: OverallNotStarted,
		Stages:        InitStages(testNow),
	}
}

func TestStageCountMatchesTemplates(t *testing.T) {
	if len(stageTemplates) != StageCount {
		t.Fatalf("StageCount is %d but %d stage templates are defined", StageCount, len(stageTemplates))
	}
}

func TestInitStagesShape(t *testing.T) {
	stages := InitStages(testNow)
	if len(stages) != StageCount {
		t.Fatalf("expected %d stages, got %d", StageCount, len(stages))
	}
	if stages[0].Status != StatusAvailable {
		t.Fatalf("expected first stage available, got %s", stages[0].Status)
	}
	for _, stage := range stages[1:] {
		if stage.Status != StatusLocked {
			t.Fatalf("expected stage %d locked, got %s", stage.StageNumber, stage.Status)
		}
	}
	offsets := []int{7, 21, 35, 49}
	for i, stage := range stages {
		want := testNow.AddDate(0, 0, offsets[i])
		if !stage.DueDate.Equal(want) {
			t.Fatalf("stage %d due date: expected %v, got %v", i, want, stage.DueDate)
		}
	}
}

func TestSubmitMovesStageToSubmitted(t *testing.T) {
	project := newProject()
	err := Submit(project, 0, store.StageSubmission{Title: "Adaptive Traffic Control"}, testNow)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if project.Stages[0].Status != StatusSubmitted {
		t.Fatalf("expected submitted, got %s", project.Stages[0].Status)
	}
	if project.Stages[0].Submission == nil || project.Stages[0].Submission.Title != "Adaptive Traffic Control" {
		t.Fatalf("submission not recorded: %+v", project.Stages[0].Submission)
	}
	if project.OverallStatus != OverallInProgress {
		t.Fatalf("expected in_progress, got %s", project.OverallStatus)
	}
}

func TestSubmitLockedStageRejected(t *testing.T) {
	project := newProject()
	err := Submit(project, 1, store.StageSubmission{Description: "too early"}, testNow)
	if !errors.Is(err, ErrStageNotAvailable) {
		t.Fatalf("expected ErrStageNotAvailable, got %v", err)
	}
}

func TestSubmitUnknownStage(t *testing.T) {
	project := newProject()
	err := Submit(project, 9, store.StageSubmission{}, testNow)
	if !errors.Is(err, ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}
}

func TestDoubleSubmitRejected(t *testing.T) {
	project := newProject()
	if err := Submit(project, 0, store.StageSubmission{Title: "One"}, testNow); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	err := Submit(project, 0, store.StageSubmission{Title: "Two"}, testNow)
	if !errors.Is(err, ErrStageNotAvailable) {
		t.Fatalf("expected ErrStageNotAvailable on resubmission, got %v", err)
	}
}

func TestApproveUnlocksNextStage(t *testing.T) {
	project := newProject()
	if err := Submit(project, 0, store.StageSubmission{Title: "One"}, testNow); err != nil {
		t.Fatalf("submit: %v", err)
	}
	later := testNow.Add(time.Hour)
	if err := Approve(project, 0, store.StageFeedback{Comment: "solid title", ReviewerID: "usr_staff"}, later); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if project.Stages[0].Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", project.Stages[0].Status)
	}
	if project.Stages[0].CompletedAt == nil || !project.Stages[0].CompletedAt.Equal(later) {
		t.Fatalf("completed_at not set: %v", project.Stages[0].CompletedAt)
	}
	if !project.Stages[0].Feedback.Approved {
		t.Fatal("feedback should record approval")
	}
	if project.Stages[1].Status != StatusAvailable {
		t.Fatalf("expected next stage available, got %s", project.Stages[1].Status)
	}
	if project.CurrentStage != 1 {
		t.Fatalf("expected current stage 1, got %d", project.CurrentStage)
	}
}

func TestApproveWithoutSubmission(t *testing.T) {
	project := newProject()
	err := Approve(project, 0, store.StageFeedback{}, testNow)
	if !errors.Is(err, ErrStageNotSubmitted) {
		t.Fatalf("expected ErrStageNotSubmitted, got %v", err)
	}
}

func TestApproveFinalStageCompletesProject(t *testing.T) {
	project := newProject()
	for i := 0; i < StageCount; i++ {
		if err := Submit(project, i, store.StageSubmission{Description: "work"}, testNow); err != nil {
			t.Fatalf("submit stage %d: %v", i, err)
		}
		if err := Approve(project, i, store.StageFeedback{ReviewerID: "usr_staff"}, testNow); err != nil {
			t.Fatalf("approve stage %d: %v", i, err)
		}
	}
	if project.OverallStatus != OverallCompleted {
		t.Fatalf("expected completed project, got %s", project.OverallStatus)
	}
	if Progress(project) != 100 {
		t.Fatalf("expected 100%% progress, got %d", Progress(project))
	}
	if _, ok := NextDueDate(project); ok {
		t.Fatal("expected no next due date after completion")
	}
}

func TestRejectReturnsStageToAvailable(t *testing.T) {
	project := newProject()
	if err := Submit(project, 0, store.StageSubmission{Title: "One"}, testNow); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := Reject(project, 0, store.StageFeedback{Comment: "needs narrowing", ReviewerID: "usr_staff"}, testNow); err != nil {
		t.Fatalf("reject: %v", err)
	}

	stage := project.Stages[0]
	if stage.Status != StatusAvailable {
		t.Fatalf("expected available after rejection, got %s", stage.Status)
	}
	if stage.Feedback == nil || stage.Feedback.Approved {
		t.Fatalf("feedback should record rejection: %+v", stage.Feedback)
	}
	if stage.Submission == nil {
		t.Fatal("rejected submission should stay attached")
	}

	// The student can resubmit after a rejection.
	if err := Submit(project, 0, store.StageSubmission{Title: "Two"}, testNow.Add(time.Hour)); err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
	if project.Stages[0].Feedback != nil {
		t.Fatal("resubmission should clear stale feedback")
	}
}

func TestProgressRounding(t *testing.T) {
	project := newProject()
	if got := Progress(project); got != 0 {
		t.Fatalf("expected 0%% on fresh project, got %d", got)
	}
	if err := Submit(project, 0, store.StageSubmission{Title: "One"}, testNow); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := Approve(project, 0, store.StageFeedback{}, testNow); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// 1 of 4 stages.
	if got := Progress(project); got != 25 {
		t.Fatalf("expected 25%%, got %d", got)
	}
}

func TestCurrentAvailableStage(t *testing.T) {
	project := newProject()
	stage := CurrentAvailableStage(project)
	if stage == nil || stage.StageNumber != 0 {
		t.Fatalf("expected stage 0 available, got %+v", stage)
	}
	if err := Submit(project, 0, store.StageSubmission{Title: "One"}, testNow); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if CurrentAvailableStage(project) != nil {
		t.Fatal("expected no available stage while awaiting review")
	}
}

func TestNextDueDateSkipsCompleted(t *testing.T) {
	project := newProject()
	if err := Submit(project, 0, store.StageSubmission{Title: "One"}, testNow); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := Approve(project, 0, store.StageFeedback{}, testNow); err != nil {
		t.Fatalf("approve: %v", err)
	}
	due, ok := NextDueDate(project)
	if !ok {
		t.Fatal("expected a next due date")
	}
	if !due.Equal(testNow.AddDate(0, 0, 21)) {
		t.Fatalf("expected proposal due date, got %v", due)
	}
}
