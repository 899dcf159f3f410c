package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"projectgate/api/internal/authpw"
	"projectgate/api/internal/config"
	"projectgate/api/internal/similarity"
	"projectgate/api/internal/store"
	"projectgate/api/internal/workflow"
)

type fakeStore struct {
	pingFn                  func(context.Context) error
	countUsersFn            func(context.Context) (int, error)
	createUserFn            func(context.Context, store.User) (store.User, error)
	getUserByEmailFn        func(context.Context, string) (store.User, error)
	getUserByIDFn           func(context.Context, string) (store.User, error)
	listTitlesFn            func(context.Context, string, string) ([]store.TitleRecord, error)
	insertTitleRecordFn     func(context.Context, store.TitleRecord) error
	getProjectByStudentFn   func(context.Context, string) (store.Project, error)
	getProjectFn            func(context.Context, string) (store.Project, error)
	insertProjectFn         func(context.Context, store.Project) error
	updateStageFn           func(context.Context, string, store.ReviewStage, string) error
	updateProjectStateFn    func(context.Context, string, int, string) error
	listProjectsForReviewFn func(context.Context, string) ([]store.Project, error)
	appendNotificationFn    func(context.Context, store.Notification) (store.Notification, error)
	saveRefreshSessionFn    func(context.Context, string, string, time.Time) error
	lookupRefreshSessionFn  func(context.Context, string) (store.User, error)
	revokeRefreshSessionFn  func(context.Context, string) error
	markNotificationReadFn  func(context.Context, string, int64) (bool, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
func (f *fakeStore) CountUsers(ctx context.Context) (int, error) {
	if f.countUsersFn != nil {
		return f.countUsersFn(ctx)
	}
	return 0, nil
}
func (f *fakeStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return user, nil
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) VerifyEmail(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateUserPassword(context.Context, string, string) error { return nil }
func (f *fakeStore) CreatePasswordReset(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) ConsumePasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}
func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if f.saveRefreshSessionFn != nil {
		return f.saveRefreshSessionFn(ctx, tokenHash, userID, expiresAt)
	}
	return nil
}
func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshSessionFn != nil {
		return f.revokeRefreshSessionFn(ctx, tokenHash)
	}
	return nil
}
func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupRefreshSessionFn != nil {
		return f.lookupRefreshSessionFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) {
	return false, nil
}
func (f *fakeStore) ListTitlesByDepartment(ctx context.Context, department, excludeStudent string) ([]store.TitleRecord, error) {
	if f.listTitlesFn != nil {
		return f.listTitlesFn(ctx, department, excludeStudent)
	}
	return nil, nil
}
func (f *fakeStore) InsertTitleRecord(ctx context.Context, record store.TitleRecord) error {
	if f.insertTitleRecordFn != nil {
		return f.insertTitleRecordFn(ctx, record)
	}
	return nil
}
func (f *fakeStore) GetProjectByStudent(ctx context.Context, studentID string) (store.Project, error) {
	if f.getProjectByStudentFn != nil {
		return f.getProjectByStudentFn(ctx, studentID)
	}
	return store.Project{}, sql.ErrNoRows
}
func (f *fakeStore) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, projectID)
	}
	return store.Project{}, sql.ErrNoRows
}
func (f *fakeStore) InsertProject(ctx context.Context, project store.Project) error {
	if f.insertProjectFn != nil {
		return f.insertProjectFn(ctx, project)
	}
	return nil
}
func (f *fakeStore) UpdateStage(ctx context.Context, projectID string, stage store.ReviewStage, expectedStatus string) error {
	if f.updateStageFn != nil {
		return f.updateStageFn(ctx, projectID, stage, expectedStatus)
	}
	return nil
}
func (f *fakeStore) UpdateProjectState(ctx context.Context, projectID string, currentStage int, overallStatus string) error {
	if f.updateProjectStateFn != nil {
		return f.updateProjectStateFn(ctx, projectID, currentStage, overallStatus)
	}
	return nil
}
func (f *fakeStore) ListProjectsForReview(ctx context.Context, department string) ([]store.Project, error) {
	if f.listProjectsForReviewFn != nil {
		return f.listProjectsForReviewFn(ctx, department)
	}
	return nil, nil
}
func (f *fakeStore) AppendNotification(ctx context.Context, notification store.Notification) (store.Notification, error) {
	if f.appendNotificationFn != nil {
		return f.appendNotificationFn(ctx, notification)
	}
	return notification, nil
}
func (f *fakeStore) ListNotifications(context.Context, string) ([]store.Notification, error) {
	return nil, nil
}
func (f *fakeStore) MarkNotificationRead(ctx context.Context, projectID string, notificationID int64) (bool, error) {
	if f.markNotificationReadFn != nil {
		return f.markNotificationReadFn(ctx, projectID, notificationID)
	}
	return false, nil
}

func newTestService(fake *fakeStore) *Service {
	cfg := config.Config{
		JWTSecret:           "test-secret",
		AccessTTL:           15 * time.Minute,
		RefreshTTL:          time.Hour,
		SimilarityThreshold: 60,
	}
	return &Service{
		cfg:       cfg,
		store:     fake,
		passwords: authpw.NewService(fake),
		gate:      similarity.NewGate(cfg.SimilarityThreshold),
	}
}

func studentSession() Session {
	return Session{
		UserID:     "usr_student",
		UserName:   "Priya Sharma",
		Role:       "student",
		Department: "Computer Science",
	}
}

func titleCorpus(titles ...string) []store.TitleRecord {
	records := make([]store.TitleRecord, 0, len(titles))
	for i, title := range titles {
		records = append(records, store.TitleRecord{
			ID:          string(rune('a' + i)),
			Title:       title,
			SubmittedBy: "usr_other",
			Department:  "Computer Science",
			SubmittedAt: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return records
}

func TestSubmitTitleCreatesProjectAndRecord(t *testing.T) {
	var current store.Project
	haveProject := false
	var insertedRecord *store.TitleRecord

	fake := &fakeStore{
		getProjectByStudentFn: func(context.Context, string) (store.Project, error) {
			if haveProject {
				return current, nil
			}
			return store.Project{}, sql.ErrNoRows
		},
		insertProjectFn: func(_ context.Context, project store.Project) error {
			current = project
			haveProject = true
			return nil
		},
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return current, nil
		},
		updateStageFn: func(_ context.Context, _ string, stage store.ReviewStage, expected string) error {
			if expected != workflow.StatusAvailable {
				t.Fatalf("expected CAS on available, got %q", expected)
			}
			current.Stages[stage.StageNumber] = stage
			return nil
		},
		updateProjectStateFn: func(_ context.Context, _ string, currentStage int, overallStatus string) error {
			current.CurrentStage = currentStage
			current.OverallStatus = overallStatus
			return nil
		},
		listTitlesFn: func(context.Context, string, string) ([]store.TitleRecord, error) {
			return titleCorpus("Compiler Optimization Techniques"), nil
		},
		insertTitleRecordFn: func(_ context.Context, record store.TitleRecord) error {
			insertedRecord = &record
			return nil
		},
	}
	svc := newTestService(fake)

	payload, err := svc.SubmitTitle(context.Background(), studentSession(), "Adaptive Traffic Signal Control", "ML-driven signal timing")
	if err != nil {
		t.Fatalf("SubmitTitle failed: %v", err)
	}

	if payload["created"] != true {
		t.Error("expected a new project to be created")
	}
	if current.Stages[0].Status != workflow.StatusSubmitted {
		t.Errorf("stage 0 status = %q, want submitted", current.Stages[0].Status)
	}
	if current.Stages[0].Submission == nil || current.Stages[0].Submission.Title != "Adaptive Traffic Signal Control" {
		t.Errorf("submission not recorded: %+v", current.Stages[0].Submission)
	}
	if current.Stages[0].Submission.Similarity == nil {
		t.Error("similarity snapshot missing from submission")
	}
	if insertedRecord == nil {
		t.Fatal("accepted title was not added to the corpus")
	}
	if insertedRecord.Department != "Computer Science" || insertedRecord.SubmittedBy != "usr_student" {
		t.Errorf("corpus record has wrong attribution: %+v", insertedRecord)
	}
	if current.OverallStatus != workflow.OverallInProgress {
		t.Errorf("overall status = %q, want in_progress", current.OverallStatus)
	}
}

func TestSubmitTitleRejectedHighSimilarity(t *testing.T) {
	recordInserted := false
	fake := &fakeStore{
		getProjectByStudentFn: func(context.Context, string) (store.Project, error) {
			return store.Project{}, sql.ErrNoRows
		},
		listTitlesFn: func(context.Context, string, string) ([]store.TitleRecord, error) {
			return titleCorpus("Deep Learning for Image Classification Methods"), nil
		},
		insertTitleRecordFn: func(context.Context, store.TitleRecord) error {
			recordInserted = true
			return nil
		},
	}
	svc := newTestService(fake)

	_, err := svc.SubmitTitle(context.Background(), studentSession(), "Deep Learning for Image Classification", "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "TITLE_REJECTED" || domainErr.Status != 422 {
		t.Fatalf("got %d %s, want 422 TITLE_REJECTED", domainErr.Status, domainErr.Code)
	}
	if recordInserted {
		t.Error("rejected title must not enter the corpus")
	}
}

func TestSubmitTitleExactDuplicate(t *testing.T) {
	fake := &fakeStore{
		getProjectByStudentFn: func(context.Context, string) (store.Project, error) {
			return store.Project{}, sql.ErrNoRows
		},
		listTitlesFn: func(context.Context, string, string) ([]store.TitleRecord, error) {
			return titleCorpus("Adaptive Traffic Signal Control"), nil
		},
	}
	svc := newTestService(fake)

	_, err := svc.SubmitTitle(context.Background(), studentSession(), "  adaptive traffic signal control  ", "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	details, ok := domainErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", domainErr.Details)
	}
	if details["outcome"] != similarity.OutcomeRejectedExactDuplicate {
		t.Errorf("outcome = %v, want exact duplicate", details["outcome"])
	}
	if details["scorePercent"] != 100 {
		t.Errorf("scorePercent = %v, want 100", details["scorePercent"])
	}
}

func TestSubmitTitleEmptyRejected(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.SubmitTitle(context.Background(), studentSession(), "   ", "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func projectAwaitingReview(stageNumber int) store.Project {
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	project := store.Project{
		ID:            "proj_1",
		StudentID:     "usr_student",
		Department:    "Computer Science",
		AcademicYear:  "2025/2026",
		CurrentStage:  stageNumber,
		OverallStatus: workflow.OverallInProgress,
		CreatedAt:     now,
		Stages:        workflow.InitStages(now),
	}
	for i := 0; i < stageNumber; i++ {
		completed := now
		project.Stages[i].Status = workflow.StatusCompleted
		project.Stages[i].CompletedAt = &completed
	}
	project.Stages[stageNumber].Status = workflow.StatusSubmitted
	project.Stages[stageNumber].Submission = &store.StageSubmission{
		Title:       "Adaptive Traffic Signal Control",
		Description: "Midterm progress",
		SubmittedAt: now,
	}
	return project
}

func staffSession() Session {
	return Session{
		UserID:     "usr_staff",
		UserName:   "Dr. Okafor",
		Role:       "staff",
		Department: "Computer Science",
	}
}

func TestApproveStageUnlocksNext(t *testing.T) {
	project := projectAwaitingReview(1)
	var stageUpdates []store.ReviewStage
	var expectations []string
	var finalStage int
	var finalStatus string
	var notified *store.Notification

	fake := &fakeStore{
		getProjectByStudentFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
		updateStageFn: func(_ context.Context, _ string, stage store.ReviewStage, expected string) error {
			stageUpdates = append(stageUpdates, stage)
			expectations = append(expectations, expected)
			return nil
		},
		updateProjectStateFn: func(_ context.Context, _ string, currentStage int, overallStatus string) error {
			finalStage = currentStage
			finalStatus = overallStatus
			return nil
		},
		appendNotificationFn: func(_ context.Context, n store.Notification) (store.Notification, error) {
			notified = &n
			return n, nil
		},
	}
	svc := newTestService(fake)

	if _, err := svc.ApproveStage(context.Background(), staffSession(), "usr_student", 1, "Solid proposal", 85); err != nil {
		t.Fatalf("ApproveStage failed: %v", err)
	}

	if len(stageUpdates) != 2 {
		t.Fatalf("expected 2 stage updates (approved + unlocked), got %d", len(stageUpdates))
	}
	if stageUpdates[0].Status != workflow.StatusCompleted || expectations[0] != workflow.StatusSubmitted {
		t.Errorf("first update %q with CAS %q, want completed over submitted", stageUpdates[0].Status, expectations[0])
	}
	if stageUpdates[0].Feedback == nil || !stageUpdates[0].Feedback.Approved || stageUpdates[0].Feedback.Grade != 85 {
		t.Errorf("approval feedback not recorded: %+v", stageUpdates[0].Feedback)
	}
	if stageUpdates[1].StageNumber != 2 || stageUpdates[1].Status != workflow.StatusAvailable {
		t.Errorf("next stage not unlocked: %+v", stageUpdates[1])
	}
	if finalStage != 2 || finalStatus != workflow.OverallInProgress {
		t.Errorf("project state = stage %d %q, want stage 2 in_progress", finalStage, finalStatus)
	}
	if notified == nil || notified.Type != "success" {
		t.Errorf("expected success notification, got %+v", notified)
	}
}

func TestApproveFinalStageCompletesProject(t *testing.T) {
	project := projectAwaitingReview(3)
	var finalStatus string
	var notified *store.Notification

	fake := &fakeStore{
		getProjectByStudentFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
		updateProjectStateFn: func(_ context.Context, _ string, _ int, overallStatus string) error {
			finalStatus = overallStatus
			return nil
		},
		appendNotificationFn: func(_ context.Context, n store.Notification) (store.Notification, error) {
			notified = &n
			return n, nil
		},
	}
	svc := newTestService(fake)

	if _, err := svc.ApproveStage(context.Background(), staffSession(), "usr_student", 3, "Excellent work", 92); err != nil {
		t.Fatalf("ApproveStage failed: %v", err)
	}
	if finalStatus != workflow.OverallCompleted {
		t.Errorf("overall status = %q, want completed", finalStatus)
	}
	if notified == nil || !strings.Contains(notified.Message, "complete") {
		t.Errorf("completion notification missing: %+v", notified)
	}
}

func TestApproveStageConflict(t *testing.T) {
	project := projectAwaitingReview(1)
	fake := &fakeStore{
		getProjectByStudentFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
		updateStageFn: func(context.Context, string, store.ReviewStage, string) error {
			return store.ErrStageConflict
		},
	}
	svc := newTestService(fake)

	_, err := svc.ApproveStage(context.Background(), staffSession(), "usr_student", 1, "ok", 70)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "STAGE_CONFLICT" || domainErr.Status != 409 {
		t.Fatalf("expected 409 STAGE_CONFLICT, got %v", err)
	}
}

func TestApproveStageWithoutSubmission(t *testing.T) {
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	project := store.Project{
		ID:         "proj_1",
		StudentID:  "usr_student",
		Department: "Computer Science",
		Stages:     workflow.InitStages(now),
	}
	fake := &fakeStore{
		getProjectByStudentFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
	}
	svc := newTestService(fake)

	_, err := svc.ApproveStage(context.Background(), staffSession(), "usr_student", 0, "", 0)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "STAGE_CONFLICT" {
		t.Fatalf("expected STAGE_CONFLICT for unsubmitted stage, got %v", err)
	}
}

func TestRejectStageRequiresComment(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.RejectStage(context.Background(), staffSession(), "usr_student", 1, "   ")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestRejectStageReturnsToAvailable(t *testing.T) {
	project := projectAwaitingReview(1)
	var updated *store.ReviewStage
	var notified *store.Notification

	fake := &fakeStore{
		getProjectByStudentFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
		updateStageFn: func(_ context.Context, _ string, stage store.ReviewStage, expected string) error {
			if expected != workflow.StatusSubmitted {
				t.Fatalf("expected CAS on submitted, got %q", expected)
			}
			updated = &stage
			return nil
		},
		appendNotificationFn: func(_ context.Context, n store.Notification) (store.Notification, error) {
			notified = &n
			return n, nil
		},
	}
	svc := newTestService(fake)

	if _, err := svc.RejectStage(context.Background(), staffSession(), "usr_student", 1, "Needs a clearer methodology section"); err != nil {
		t.Fatalf("RejectStage failed: %v", err)
	}

	if updated == nil || updated.Status != workflow.StatusAvailable {
		t.Fatalf("stage not returned to available: %+v", updated)
	}
	if updated.Feedback == nil || updated.Feedback.Approved {
		t.Errorf("rejection feedback wrong: %+v", updated.Feedback)
	}
	if updated.Submission == nil {
		t.Error("rejected submission must stay attached for reference")
	}
	if notified == nil || notified.Type != "warning" {
		t.Errorf("expected warning notification, got %+v", notified)
	}
}

func TestSubmitStageZeroGoesThroughTitleGate(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.SubmitStage(context.Background(), studentSession(), 0, SubmitStageInput{Description: "x"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for stage 0, got %v", err)
	}
}

func TestSubmitStageWithoutProject(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.SubmitStage(context.Background(), studentSession(), 1, SubmitStageInput{Description: "x"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND before a title is registered, got %v", err)
	}
}

func TestReviewCrossDepartmentForbidden(t *testing.T) {
	project := projectAwaitingReview(1)
	fake := &fakeStore{
		getProjectByStudentFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
	}
	svc := newTestService(fake)

	reviewer := staffSession()
	reviewer.Department = "Mechanical Engineering"
	_, err := svc.ApproveStage(context.Background(), reviewer, "usr_student", 1, "fine", 80)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN for cross-department review, got %v", err)
	}
}

func TestCheckSimilarityPayload(t *testing.T) {
	fake := &fakeStore{
		listTitlesFn: func(context.Context, string, string) ([]store.TitleRecord, error) {
			return titleCorpus("Compiler Optimization Techniques", "Distributed Cache Invalidation"), nil
		},
	}
	svc := newTestService(fake)

	payload, err := svc.CheckSimilarity(context.Background(), studentSession(), "Quantum Routing Protocols")
	if err != nil {
		t.Fatalf("CheckSimilarity failed: %v", err)
	}
	if payload["accepted"] != true {
		t.Errorf("unrelated title should pass, got %v", payload)
	}
	if payload["threshold"] != 60 {
		t.Errorf("threshold = %v, want 60", payload["threshold"])
	}
	if _, ok := payload["cosineAdvisoryPercent"]; !ok {
		t.Error("advisory cosine missing from payload")
	}
	matches, ok := payload["matches"].([]similarity.Match)
	if !ok || len(matches) != 2 {
		t.Errorf("expected 2 ranked matches, got %v", payload["matches"])
	}
}

func TestGetMyProjectNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.GetMyProject(context.Background(), studentSession())
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetProjectByIDDepartmentScoping(t *testing.T) {
	project := projectAwaitingReview(1)
	fake := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
	}
	svc := newTestService(fake)

	otherDept := staffSession()
	otherDept.Department = "Mechanical Engineering"
	_, err := svc.GetProjectByID(context.Background(), otherDept, "proj_1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("staff outside the department must be refused, got %v", err)
	}

	if _, err := svc.GetProjectByID(context.Background(), staffSession(), "proj_1"); err != nil {
		t.Fatalf("same-department staff refused: %v", err)
	}
	admin := Session{UserID: "usr_admin", Role: "admin", Department: "Administration"}
	if _, err := svc.GetProjectByID(context.Background(), admin, "proj_1"); err != nil {
		t.Fatalf("admin refused: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	user := store.User{
		ID:          "usr_student",
		DisplayName: "Priya Sharma",
		UserType:    authpw.TypeStudent,
		Department:  "Computer Science",
	}
	savedHashes := map[string]store.User{}
	fake := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			if id == user.ID {
				return user, nil
			}
			return store.User{}, sql.ErrNoRows
		},
		saveRefreshSessionFn: func(_ context.Context, tokenHash, userID string, _ time.Time) error {
			savedHashes[tokenHash] = user
			return nil
		},
		lookupRefreshSessionFn: func(_ context.Context, tokenHash string) (store.User, error) {
			if u, ok := savedHashes[tokenHash]; ok {
				return u, nil
			}
			return store.User{}, sql.ErrNoRows
		},
		revokeRefreshSessionFn: func(_ context.Context, tokenHash string) error {
			delete(savedHashes, tokenHash)
			return nil
		},
	}
	svc := newTestService(fake)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, user.ID)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Role != "student" || session.Department != "Computer Science" {
		t.Errorf("session carries wrong identity: %+v", session)
	}

	parsed, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	if parsed.UserID != user.ID || parsed.Department != "Computer Science" {
		t.Errorf("parsed session mismatch: %+v", parsed)
	}

	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Error("used refresh token must be rejected")
	}
}

func TestListReviewQueue(t *testing.T) {
	project := projectAwaitingReview(1)
	fake := &fakeStore{
		listProjectsForReviewFn: func(_ context.Context, department string) ([]store.Project, error) {
			if department != "Computer Science" {
				t.Fatalf("queue queried for %q, want reviewer's department", department)
			}
			return []store.Project{project}, nil
		},
		getUserByIDFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "usr_student", DisplayName: "Priya Sharma"}, nil
		},
	}
	svc := newTestService(fake)

	items, err := svc.ListReviewQueue(context.Background(), staffSession())
	if err != nil {
		t.Fatalf("ListReviewQueue failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 queue item, got %d", len(items))
	}
	if items[0]["pendingStage"] != 1 || items[0]["pendingStageName"] != "Proposal" {
		t.Errorf("pending stage not surfaced: %+v", items[0])
	}
	if items[0]["studentName"] != "Priya Sharma" {
		t.Errorf("student name missing: %+v", items[0])
	}
}

func TestMarkNotificationRead(t *testing.T) {
	project := projectAwaitingReview(1)
	fake := &fakeStore{
		getProjectByStudentFn: func(_ context.Context, studentID string) (store.Project, error) {
			if studentID == "usr_student" {
				return project, nil
			}
			return store.Project{}, sql.ErrNoRows
		},
		markNotificationReadFn: func(_ context.Context, _ string, id int64) (bool, error) {
			return id == 7, nil
		},
	}
	svc := newTestService(fake)
	ctx := context.Background()

	if err := svc.MarkNotificationRead(ctx, studentSession(), 7); err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}
	err := svc.MarkNotificationRead(ctx, studentSession(), 99)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND for unknown notification, got %v", err)
	}
	err = svc.MarkNotificationRead(ctx, staffSession(), 7)
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("a caller without a project has nothing to mark, got %v", err)
	}
}
