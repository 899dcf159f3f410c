package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"projectgate/api/internal/archive"
	"projectgate/api/internal/auth"
	"projectgate/api/internal/authpw"
	"projectgate/api/internal/config"
	"projectgate/api/internal/email"
	"projectgate/api/internal/export"
	"projectgate/api/internal/objstore"
	"projectgate/api/internal/rbac"
	"projectgate/api/internal/search"
	"projectgate/api/internal/session"
	"projectgate/api/internal/similarity"
	"projectgate/api/internal/store"
	"projectgate/api/internal/util"
	"projectgate/api/internal/workflow"
)

type dataStore interface {
	Ping(ctx context.Context) error
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	VerifyEmail(ctx context.Context, token string) (store.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, token string) (string, error)
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	ListTitlesByDepartment(ctx context.Context, department, excludeStudent string) ([]store.TitleRecord, error)
	InsertTitleRecord(ctx context.Context, record store.TitleRecord) error
	GetProjectByStudent(ctx context.Context, studentID string) (store.Project, error)
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	InsertProject(ctx context.Context, project store.Project) error
	UpdateStage(ctx context.Context, projectID string, stage store.ReviewStage, expectedStatus string) error
	UpdateProjectState(ctx context.Context, projectID string, currentStage int, overallStatus string) error
	ListProjectsForReview(ctx context.Context, department string) ([]store.Project, error)
	AppendNotification(ctx context.Context, notification store.Notification) (store.Notification, error)
	ListNotifications(ctx context.Context, projectID string) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, projectID string, notificationID int64) (bool, error)
}

// refreshSessions stores refresh tokens out of band. When nil the service
// falls back to the refresh_sessions table.
type refreshSessions interface {
	SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  refreshSessions
	passwords *authpw.Service
	gate      similarity.Gate
	search    *search.Service
	email     *email.Service
	archive   *archive.Service
	files     *objstore.Store
	exporter  *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, searchSvc *search.Service, emailSvc *email.Service, archiveSvc *archive.Service, files *objstore.Store) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		passwords: authpw.NewService(dataStore),
		gate:      similarity.NewGate(cfg.SimilarityThreshold),
		search:    searchSvc,
		email:     emailSvc,
		archive:   archiveSvc,
		files:     files,
	}
	if sessions != nil {
		s.sessions = sessions
	}
	s.exporter = export.NewService(s)
	return s
}

// Bootstrap seeds the first admin account on an empty database and logs its
// generated password once.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := randomSecret()
	hash, err := authpw.HashPassword(password)
	if err != nil {
		return err
	}
	admin, err := s.store.CreateUser(ctx, store.User{
		ID:              util.NewID("usr"),
		DisplayName:     "Administrator",
		Email:           "admin@projectgate.local",
		PasswordHash:    hash,
		UserType:        authpw.TypeAdmin,
		Department:      "Administration",
		IsEmailVerified: true,
	})
	if err != nil {
		return err
	}
	log.Printf("seeded admin account %s with password %s (change it after first sign-in)", admin.Email, password)

	// Starter corpus so the similarity gate has something to compare against
	// before the first real cohort submits.
	now := time.Now()
	for _, title := range []string{
		"Design and Implementation of a Student Attendance Management System",
		"Development of an Online Examination Platform for Universities",
		"A Web-Based Library Management System with Barcode Integration",
	} {
		record := store.TitleRecord{
			ID:          util.NewID("ttl"),
			Title:       title,
			SubmittedBy: admin.ID,
			Department:  "Computer Science",
			SubmittedAt: now,
		}
		if err := s.store.InsertTitleRecord(ctx, record); err != nil {
			return err
		}
		if s.search != nil {
			s.search.IndexTitle(search.TitleDoc{
				ID:          record.ID,
				Title:       record.Title,
				SubmittedBy: record.SubmittedBy,
				Department:  record.Department,
				SubmittedAt: record.SubmittedAt.Unix(),
			})
		}
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Passwords() *authpw.Service {
	return s.passwords
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Session is an authenticated caller. Department rides along so similarity
// checks and review queues never need an extra user lookup.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	Department   string
	JTI          string
	ExpiresAt    time.Time
}

// CreateSession issues tokens for a user who already passed credential
// checks.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)

	var user store.User
	var err error
	if s.sessions != nil {
		user, err = s.sessions.LookupSession(ctx, tokenHash)
		if err == nil {
			err = s.sessions.RevokeSession(ctx, tokenHash)
		}
	} else {
		user, err = s.store.LookupRefreshSession(ctx, tokenHash)
		if err == nil {
			err = s.store.RevokeRefreshSession(ctx, tokenHash)
		}
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	role := string(rbac.FromUserType(user.UserType))

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:        user.ID,
		Name:       user.DisplayName,
		Role:       role,
		Department: user.Department,
		JTI:        jti,
		Exp:        expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if s.sessions != nil {
		err = s.sessions.SaveSession(ctx, auth.HashToken(refresh), user, refreshExpires)
	} else {
		err = s.store.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires)
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         role,
		Department:   user.Department,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:      token,
		UserID:     claims.Sub,
		UserName:   claims.Name,
		Role:       claims.Role,
		Department: claims.Department,
		JTI:        claims.JTI,
		ExpiresAt:  time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		tokenHash := auth.HashToken(refreshToken)
		if s.sessions != nil {
			_ = s.sessions.RevokeSession(ctx, tokenHash)
		} else {
			_ = s.store.RevokeRefreshSession(ctx, tokenHash)
		}
	}
	return nil
}

// SendVerificationEmail delivers the signup verification link in the
// background. Failures are logged, not surfaced: the token can always be
// re-requested.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := s.cfg.AppBaseURL + "/verify-email?token=" + token
	go func() {
		if err := s.email.SendVerificationEmail(to, userName, url); err != nil {
			log.Printf("verification email to %s failed: %v", to, err)
		}
	}()
}

func (s *Service) SendPasswordResetEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := s.cfg.AppBaseURL + "/reset-password?token=" + token
	go func() {
		if err := s.email.SendPasswordResetEmail(to, userName, url); err != nil {
			log.Printf("password reset email to %s failed: %v", to, err)
		}
	}()
}

// CheckSimilarity scores a candidate title against the department corpus
// without submitting anything. The cosine figure is advisory context only;
// the gate decision rests on the Jaccard/Levenshtein score.
func (s *Service) CheckSimilarity(ctx context.Context, sess Session, title string) (map[string]any, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return nil, validationError("title is required", nil)
	}

	corpus, err := s.store.ListTitlesByDepartment(ctx, sess.Department, sess.UserID)
	if err != nil {
		return nil, err
	}
	decision := s.gate.Evaluate(trimmed, toCorpus(corpus))

	payload := map[string]any{
		"outcome":      decision.Outcome,
		"accepted":     decision.Accepted(),
		"scorePercent": decision.ScorePercent,
		"threshold":    s.gate.Threshold,
		"matches":      topMatches(decision.Ranked, 10),
	}
	if decision.BestMatch != "" {
		payload["bestMatch"] = decision.BestMatch
		payload["cosineAdvisoryPercent"] = int(similarity.CosineTermFrequency(trimmed, decision.BestMatch) * 100)
	}
	return payload, nil
}

// SubmitTitle runs the similarity gate and, on acceptance, records the title
// submission on stage 0 of the student's project. First-time submitters get
// a project with the full stage plan created on the fly.
func (s *Service) SubmitTitle(ctx context.Context, sess Session, title, description string) (map[string]any, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return nil, validationError("title is required", nil)
	}
	if len(trimmed) > 300 {
		return nil, validationError("title must be 300 characters or fewer", nil)
	}
	if sess.Department == "" {
		return nil, validationError("account has no department", nil)
	}

	now := time.Now()
	project, err := s.store.GetProjectByStudent(ctx, sess.UserID)
	created := false
	if errors.Is(err, sql.ErrNoRows) {
		project = store.Project{
			ID:            util.NewID("proj"),
			StudentID:     sess.UserID,
			Department:    sess.Department,
			AcademicYear:  academicYear(now),
			CurrentStage:  0,
			OverallStatus: workflow.OverallNotStarted,
			CreatedAt:     now,
			LastActivity:  now,
			Stages:        workflow.InitStages(now),
		}
		if err := s.store.InsertProject(ctx, project); err != nil {
			return nil, err
		}
		created = true
	} else if err != nil {
		return nil, err
	}

	corpus, err := s.store.ListTitlesByDepartment(ctx, sess.Department, sess.UserID)
	if err != nil {
		return nil, err
	}
	decision := s.gate.Evaluate(trimmed, toCorpus(corpus))
	if !decision.Accepted() {
		return nil, domainError(http.StatusUnprocessableEntity, "TITLE_REJECTED",
			"Title is too similar to an existing project title", map[string]any{
				"outcome":      decision.Outcome,
				"bestMatch":    decision.BestMatch,
				"scorePercent": decision.ScorePercent,
				"threshold":    s.gate.Threshold,
			})
	}

	submission := store.StageSubmission{
		Title:       trimmed,
		Description: strings.TrimSpace(description),
		Similarity: &store.SimilaritySnapshot{
			Percentage:   decision.ScorePercent,
			ComparedWith: topCompared(decision.Ranked, 5),
		},
	}
	if err := s.submitStage(ctx, &project, 0, submission, now, sess); err != nil {
		return nil, err
	}

	record := store.TitleRecord{
		ID:          util.NewID("ttl"),
		Title:       trimmed,
		SubmittedBy: sess.UserID,
		Department:  sess.Department,
		SubmittedAt: now,
	}
	if err := s.store.InsertTitleRecord(ctx, record); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexTitle(search.TitleDoc{
			ID:          record.ID,
			Title:       record.Title,
			SubmittedBy: record.SubmittedBy,
			Department:  record.Department,
			SubmittedAt: record.SubmittedAt.Unix(),
		})
	}

	s.notify(ctx, project.ID, fmt.Sprintf("Title accepted: %s", trimmed), "success")
	payload, err := s.projectPayload(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	payload["created"] = created
	payload["similarity"] = map[string]any{
		"scorePercent": decision.ScorePercent,
		"bestMatch":    decision.BestMatch,
	}
	return payload, nil
}

// SubmitStageInput is the body of a proposal, progress report or final
// submission. Stage 0 goes through SubmitTitle instead so the gate runs.
type SubmitStageInput struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Files       []store.SubmissionFile `json:"files"`
}

func (s *Service) SubmitStage(ctx context.Context, sess Session, stageNumber int, input SubmitStageInput) (map[string]any, error) {
	if stageNumber == 0 {
		return nil, validationError("title submissions go through the title endpoint", nil)
	}
	project, err := s.myProject(ctx, sess)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(input.Description)
	if description == "" && len(input.Files) == 0 {
		return nil, validationError("a description or at least one file is required", nil)
	}

	submission := store.StageSubmission{
		Title:       strings.TrimSpace(input.Title),
		Description: description,
		Files:       input.Files,
	}
	now := time.Now()
	if err := s.submitStage(ctx, &project, stageNumber, submission, now, sess); err != nil {
		return nil, err
	}

	stageName := stageDisplayName(&project, stageNumber)
	s.notify(ctx, project.ID, fmt.Sprintf("%s submitted for review", stageName), "info")
	return s.projectPayload(ctx, project.ID)
}

// submitStage applies the in-memory transition and persists it with a
// compare-and-set on the previous stage status.
func (s *Service) submitStage(ctx context.Context, project *store.Project, stageNumber int, submission store.StageSubmission, now time.Time, sess Session) error {
	if err := workflow.Submit(project, stageNumber, submission, now); err != nil {
		return mapWorkflowError(err)
	}
	stage, err := stageByNumber(project, stageNumber)
	if err != nil {
		return mapWorkflowError(err)
	}
	if err := s.store.UpdateStage(ctx, project.ID, *stage, workflow.StatusAvailable); err != nil {
		if errors.Is(err, store.ErrStageConflict) {
			return conflictError("stage was updated by another request, reload and retry")
		}
		return err
	}
	if err := s.store.UpdateProjectState(ctx, project.ID, project.CurrentStage, project.OverallStatus); err != nil {
		return err
	}
	s.archiveSubmission(project.ID, *stage, sess.UserName)
	return nil
}

// ApproveStage completes a submitted stage, unlocks the next one and tells
// the student. Approving the final stage completes the project.
func (s *Service) ApproveStage(ctx context.Context, sess Session, studentID string, stageNumber int, comment string, grade int) (map[string]any, error) {
	project, err := s.reviewableProject(ctx, sess, studentID)
	if err != nil {
		return nil, err
	}
	if grade < 0 || grade > 100 {
		return nil, validationError("grade must be between 0 and 100", nil)
	}

	now := time.Now()
	feedback := store.StageFeedback{
		Comment:    strings.TrimSpace(comment),
		Grade:      grade,
		ReviewerID: sess.UserID,
	}
	if err := workflow.Approve(&project, stageNumber, feedback, now); err != nil {
		return nil, mapWorkflowError(err)
	}

	stage, err := stageByNumber(&project, stageNumber)
	if err != nil {
		return nil, mapWorkflowError(err)
	}
	if err := s.store.UpdateStage(ctx, project.ID, *stage, workflow.StatusSubmitted); err != nil {
		if errors.Is(err, store.ErrStageConflict) {
			return nil, conflictError("stage was reviewed by another request, reload and retry")
		}
		return nil, err
	}
	if next, err := stageByNumber(&project, stageNumber+1); err == nil {
		if err := s.store.UpdateStage(ctx, project.ID, *next, workflow.StatusLocked); err != nil && !errors.Is(err, store.ErrStageConflict) {
			return nil, err
		}
	}
	if err := s.store.UpdateProjectState(ctx, project.ID, project.CurrentStage, project.OverallStatus); err != nil {
		return nil, err
	}

	stageName := stage.Name
	message := fmt.Sprintf("%s approved", stageName)
	if project.OverallStatus == workflow.OverallCompleted {
		message = fmt.Sprintf("%s approved. Your project is complete, congratulations!", stageName)
	}
	s.notify(ctx, project.ID, message, "success")
	s.sendDecisionEmail(ctx, project.StudentID, stageName, true, feedback.Comment)
	return s.projectPayload(ctx, project.ID)
}

// RejectStage returns a submitted stage to the student for revision. A
// comment is mandatory: a bare rejection gives the student nothing to act on.
func (s *Service) RejectStage(ctx context.Context, sess Session, studentID string, stageNumber int, comment string) (map[string]any, error) {
	trimmed := strings.TrimSpace(comment)
	if trimmed == "" {
		return nil, validationError("a comment is required when rejecting a stage", nil)
	}
	project, err := s.reviewableProject(ctx, sess, studentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	feedback := store.StageFeedback{
		Comment:    trimmed,
		ReviewerID: sess.UserID,
	}
	if err := workflow.Reject(&project, stageNumber, feedback, now); err != nil {
		return nil, mapWorkflowError(err)
	}

	stage, err := stageByNumber(&project, stageNumber)
	if err != nil {
		return nil, mapWorkflowError(err)
	}
	if err := s.store.UpdateStage(ctx, project.ID, *stage, workflow.StatusSubmitted); err != nil {
		if errors.Is(err, store.ErrStageConflict) {
			return nil, conflictError("stage was reviewed by another request, reload and retry")
		}
		return nil, err
	}
	if err := s.store.UpdateProjectState(ctx, project.ID, project.CurrentStage, project.OverallStatus); err != nil {
		return nil, err
	}

	s.notify(ctx, project.ID, fmt.Sprintf("%s returned for revision", stage.Name), "warning")
	s.sendDecisionEmail(ctx, project.StudentID, stage.Name, false, trimmed)
	return s.projectPayload(ctx, project.ID)
}

func (s *Service) GetMyProject(ctx context.Context, sess Session) (map[string]any, error) {
	project, err := s.myProject(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.buildProjectPayload(ctx, project)
}

// ListTitles returns the accepted title corpus for the caller's department,
// oldest first.
func (s *Service) ListTitles(ctx context.Context, sess Session) ([]store.TitleRecord, error) {
	records, err := s.store.ListTitlesByDepartment(ctx, sess.Department, "")
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []store.TitleRecord{}
	}
	return records, nil
}

func (s *Service) GetProjectByID(ctx context.Context, sess Session, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !s.canViewProject(sess, project) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.buildProjectPayload(ctx, project)
}

// ListReviewQueue returns submitted projects in the reviewer's department,
// oldest activity first.
func (s *Service) ListReviewQueue(ctx context.Context, sess Session) ([]map[string]any, error) {
	projects, err := s.store.ListProjectsForReview(ctx, sess.Department)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		student, err := s.store.GetUserByID(ctx, project.StudentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		submitted := pendingStage(&project)
		item := map[string]any{
			"id":            project.ID,
			"studentId":     project.StudentID,
			"studentName":   student.DisplayName,
			"department":    project.Department,
			"academicYear":  project.AcademicYear,
			"currentStage":  project.CurrentStage,
			"overallStatus": project.OverallStatus,
			"progress":      workflow.Progress(&project),
			"lastActivity":  project.LastActivity,
		}
		if submitted != nil {
			item["pendingStage"] = submitted.StageNumber
			item["pendingStageName"] = submitted.Name
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) Suggest(ctx context.Context, sess Session, prefix string) ([]string, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Suggest(strings.TrimSpace(prefix), sess.Department, 8), nil
}

func (s *Service) SearchTitles(ctx context.Context, sess Session, q string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(search.Query{
		Text:       strings.TrimSpace(q),
		Department: sess.Department,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// MyNotifications returns the caller's project notifications, newest first.
// Students without a project get an empty list, not an error.
func (s *Service) MyNotifications(ctx context.Context, sess Session) ([]store.Notification, error) {
	project, err := s.store.GetProjectByStudent(ctx, sess.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return []store.Notification{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.store.ListNotifications(ctx, project.ID)
}

func (s *Service) MarkNotificationRead(ctx context.Context, sess Session, notificationID int64) error {
	project, err := s.myProject(ctx, sess)
	if err != nil {
		return err
	}
	found, err := s.store.MarkNotificationRead(ctx, project.ID, notificationID)
	if err != nil {
		return err
	}
	if !found {
		return notFoundError("notification not found")
	}
	return nil
}

// UploadStageFile streams an attachment to object storage and returns the
// key the client includes in its stage submission.
func (s *Service) UploadStageFile(ctx context.Context, sess Session, stageNumber int, filename, contentType string, reader io.Reader, size int64) (store.SubmissionFile, error) {
	if s.files == nil {
		return store.SubmissionFile{}, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured", nil)
	}
	project, err := s.myProject(ctx, sess)
	if err != nil {
		return store.SubmissionFile{}, err
	}
	if stageNumber < 0 || stageNumber >= workflow.StageCount {
		return store.SubmissionFile{}, notFoundError("stage not found")
	}

	key, err := s.files.UploadSubmissionFile(ctx, project.ID, stageNumber, filename, contentType, reader, size)
	if err != nil {
		return store.SubmissionFile{}, err
	}
	return store.SubmissionFile{
		Name:        filename,
		ObjectKey:   key,
		Size:        size,
		ContentType: contentType,
	}, nil
}

// FileDownloadURL presigns a short-lived download link for one of the
// caller's own uploads. Keys are namespaced by project; cross-project keys
// read as missing files.
func (s *Service) FileDownloadURL(ctx context.Context, sess Session, objectKey string) (string, error) {
	if s.files == nil {
		return "", domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured", nil)
	}
	project, err := s.myProject(ctx, sess)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(objectKey, project.ID+"/") {
		return "", notFoundError("file not found")
	}
	return s.files.PresignedDownloadURL(ctx, objectKey, 15*time.Minute)
}

// StageHistory lists prior revisions of one of the caller's stage
// submissions, newest first.
func (s *Service) StageHistory(ctx context.Context, sess Session, stageNumber int) ([]archive.Submission, error) {
	project, err := s.myProject(ctx, sess)
	if err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.StageRevisions(project.ID, stageNumber)
}

func (s *Service) ProjectHistory(ctx context.Context, sess Session, limit int) ([]archive.CommitInfo, error) {
	project, err := s.myProject(ctx, sess)
	if err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.archive.History(project.ID, limit)
}

// ExportMyReport renders the caller's own review report.
func (s *Service) ExportMyReport(ctx context.Context, sess Session, format export.Format) (*export.Result, error) {
	project, err := s.myProject(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.exportReport(ctx, project.ID, format)
}

// ExportReport renders any project's report for a reviewer who may see it.
func (s *Service) ExportReport(ctx context.Context, sess Session, projectID string, format export.Format) (*export.Result, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !s.canViewProject(sess, project) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.exportReport(ctx, project.ID, format)
}

func (s *Service) exportReport(ctx context.Context, projectID string, format export.Format) (*export.Result, error) {
	if format != export.FormatPDF && format != export.FormatDOCX {
		return nil, validationError("format must be pdf or docx", nil)
	}
	return s.exporter.Export(ctx, export.Request{ProjectID: projectID, Format: format})
}

// GetProjectReport builds the export input for a project.
func (s *Service) GetProjectReport(ctx context.Context, projectID string) (export.ProjectInfo, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	student, err := s.store.GetUserByID(ctx, project.StudentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return export.ProjectInfo{}, err
	}

	info := export.ProjectInfo{
		ID:            project.ID,
		StudentName:   student.DisplayName,
		Department:    project.Department,
		AcademicYear:  project.AcademicYear,
		OverallStatus: project.OverallStatus,
		Progress:      workflow.Progress(&project),
		CreatedAt:     project.CreatedAt,
	}
	for _, stage := range project.Stages {
		stageInfo := export.StageInfo{
			Number:      stage.StageNumber,
			Name:        stage.Name,
			Status:      stage.Status,
			DueDate:     stage.DueDate,
			CompletedAt: stage.CompletedAt,
		}
		if stage.Submission != nil {
			stageInfo.Title = stage.Submission.Title
			stageInfo.Description = stage.Submission.Description
		}
		if stage.Feedback != nil {
			reviewer, err := s.store.GetUserByID(ctx, stage.Feedback.ReviewerID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return export.ProjectInfo{}, err
			}
			stageInfo.Feedback = &export.FeedbackInfo{
				Comment:  stage.Feedback.Comment,
				Grade:    stage.Feedback.Grade,
				Reviewer: reviewer.DisplayName,
				Approved: stage.Feedback.Approved,
			}
		}
		info.Stages = append(info.Stages, stageInfo)
	}
	return info, nil
}

func (s *Service) myProject(ctx context.Context, sess Session) (store.Project, error) {
	project, err := s.store.GetProjectByStudent(ctx, sess.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Project{}, notFoundError("no project registered yet, submit a title to start")
	}
	if err != nil {
		return store.Project{}, err
	}
	return project, nil
}

// reviewableProject resolves a student's project for a reviewer and enforces
// the department boundary.
func (s *Service) reviewableProject(ctx context.Context, sess Session, studentID string) (store.Project, error) {
	project, err := s.store.GetProjectByStudent(ctx, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Project{}, notFoundError("student has no project")
	}
	if err != nil {
		return store.Project{}, err
	}
	role := rbac.Normalize(sess.Role)
	if role != rbac.RoleAdmin && project.Department != sess.Department {
		return store.Project{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return project, nil
}

// canViewProject: owners always, staff within their department, admins
// everywhere.
func (s *Service) canViewProject(sess Session, project store.Project) bool {
	if project.StudentID == sess.UserID {
		return true
	}
	role := rbac.Normalize(sess.Role)
	if role == rbac.RoleAdmin {
		return true
	}
	return role == rbac.RoleStaff && project.Department == sess.Department
}

func (s *Service) projectPayload(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.buildProjectPayload(ctx, project)
}

func (s *Service) buildProjectPayload(ctx context.Context, project store.Project) (map[string]any, error) {
	stages := make([]map[string]any, 0, len(project.Stages))
	for _, stage := range project.Stages {
		item := map[string]any{
			"stageNumber": stage.StageNumber,
			"name":        stage.Name,
			"description": stage.Description,
			"status":      stage.Status,
			"dueDate":     stage.DueDate,
		}
		if stage.CompletedAt != nil {
			item["completedAt"] = stage.CompletedAt
		}
		if stage.Submission != nil {
			item["submission"] = stage.Submission
		}
		if stage.Feedback != nil {
			item["feedback"] = stage.Feedback
		}
		stages = append(stages, item)
	}

	payload := map[string]any{
		"id":            project.ID,
		"studentId":     project.StudentID,
		"department":    project.Department,
		"academicYear":  project.AcademicYear,
		"currentStage":  project.CurrentStage,
		"overallStatus": project.OverallStatus,
		"progress":      workflow.Progress(&project),
		"createdAt":     project.CreatedAt,
		"lastActivity":  project.LastActivity,
		"stages":        stages,
		"notifications": project.Notifications,
	}
	if due, ok := workflow.NextDueDate(&project); ok {
		payload["nextDueDate"] = due
	}
	return payload, nil
}

// notify appends a project notification; failures are logged because losing
// a notification must not fail the operation that caused it.
func (s *Service) notify(ctx context.Context, projectID, message, kind string) {
	_, err := s.store.AppendNotification(ctx, store.Notification{
		ProjectID: projectID,
		Message:   message,
		Type:      kind,
	})
	if err != nil {
		log.Printf("append notification for %s failed: %v", projectID, err)
	}
}

// archiveSubmission commits the stage snapshot to the project's history
// repository. Archive errors never fail the submission itself.
func (s *Service) archiveSubmission(projectID string, stage store.ReviewStage, author string) {
	if s.archive == nil || stage.Submission == nil {
		return
	}
	if err := s.archive.EnsureProjectArchive(projectID, author); err != nil {
		log.Printf("ensure archive for %s failed: %v", projectID, err)
		return
	}
	var similarityJSON json.RawMessage
	if stage.Submission.Similarity != nil {
		if raw, err := json.Marshal(stage.Submission.Similarity); err == nil {
			similarityJSON = raw
		}
	}
	_, err := s.archive.CommitSubmission(projectID, archive.Submission{
		StageNumber: stage.StageNumber,
		StageName:   stage.Name,
		Title:       stage.Submission.Title,
		Description: stage.Submission.Description,
		Similarity:  similarityJSON,
		SubmittedAt: stage.Submission.SubmittedAt,
	}, author, fmt.Sprintf("Submit %s", stage.Name))
	if err != nil {
		log.Printf("archive commit for %s stage %d failed: %v", projectID, stage.StageNumber, err)
	}
}

func (s *Service) sendDecisionEmail(ctx context.Context, studentID, stageName string, approved bool, comment string) {
	if !s.SMTPConfigured() {
		return
	}
	student, err := s.store.GetUserByID(ctx, studentID)
	if err != nil {
		log.Printf("load student %s for decision email failed: %v", studentID, err)
		return
	}
	go func() {
		if err := s.email.SendStageDecisionEmail(student.Email, student.DisplayName, stageName, approved, comment); err != nil {
			log.Printf("decision email to %s failed: %v", student.Email, err)
		}
	}()
}

func stageByNumber(project *store.Project, stageNumber int) (*store.ReviewStage, error) {
	for i := range project.Stages {
		if project.Stages[i].StageNumber == stageNumber {
			return &project.Stages[i], nil
		}
	}
	return nil, workflow.ErrStageNotFound
}

func stageDisplayName(project *store.Project, stageNumber int) string {
	if stage, err := stageByNumber(project, stageNumber); err == nil {
		return stage.Name
	}
	return fmt.Sprintf("Stage %d", stageNumber)
}

func pendingStage(project *store.Project) *store.ReviewStage {
	for i := range project.Stages {
		if project.Stages[i].Status == workflow.StatusSubmitted {
			return &project.Stages[i]
		}
	}
	return nil
}

func mapWorkflowError(err error) error {
	switch {
	case errors.Is(err, workflow.ErrStageNotFound):
		return notFoundError("stage not found")
	case errors.Is(err, workflow.ErrStageNotAvailable):
		return conflictError("stage is not open for submission")
	case errors.Is(err, workflow.ErrStageNotSubmitted):
		return conflictError("stage has no submission awaiting review")
	default:
		return err
	}
}

func toCorpus(records []store.TitleRecord) []similarity.TitleRecord {
	corpus := make([]similarity.TitleRecord, 0, len(records))
	for _, record := range records {
		corpus = append(corpus, similarity.TitleRecord{
			ID:          record.ID,
			Title:       record.Title,
			SubmittedBy: record.SubmittedBy,
			Department:  record.Department,
			SubmittedAt: record.SubmittedAt,
		})
	}
	return corpus
}

func topMatches(ranked []similarity.Match, limit int) []similarity.Match {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if ranked == nil {
		ranked = []similarity.Match{}
	}
	return ranked
}

func topCompared(ranked []similarity.Match, limit int) []store.ComparedTitle {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	compared := make([]store.ComparedTitle, 0, len(ranked))
	for _, match := range ranked {
		compared = append(compared, store.ComparedTitle{
			RecordID:   match.RecordID,
			Title:      match.Title,
			Percentage: match.Percent,
		})
	}
	return compared
}

// academicYear names the session a project belongs to; the year rolls over
// in September.
func academicYear(now time.Time) string {
	year := now.Year()
	if now.Month() < time.September {
		year--
	}
	return fmt.Sprintf("%d/%d", year, year+1)
}

func randomSecret() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
