package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrStageConflict is returned when a stage update finds the stage in a
// different status than the caller observed. The caller should re-read the
// project and retry or report the conflict.
var ErrStageConflict = errors.New("stage status changed concurrently")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, user_type, department, verification_token, verification_expires_at)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING created_at, updated_at
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.UserType, user.Department,
		user.VerificationToken, user.VerificationExpiresAt).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, user_type, department, is_email_verified, created_at, updated_at
		FROM users
		WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.UserType, &user.Department, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, user_type, department, is_email_verified, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.UserType, &user.Department, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) VerifyEmail(ctx context.Context, token string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
		RETURNING id, display_name, email, user_type, department
	`, token).Scan(&user.ID, &user.DisplayName, &user.Email, &user.UserType, &user.Department)
	if err != nil {
		return User{}, err
	}
	user.IsEmailVerified = true
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

// ConsumePasswordReset marks a reset token used and returns its user ID.
// The UPDATE guard makes the token single use.
func (s *PostgresStore) ConsumePasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE password_resets
		SET used_at=NOW()
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.user_type, u.department, u.is_email_verified
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.UserType, &user.Department, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ListTitlesByDepartment returns the similarity corpus for a department.
// excludeStudent removes the student's own accepted titles so a resubmission
// is not compared against itself.
func (s *PostgresStore) ListTitlesByDepartment(ctx context.Context, department, excludeStudent string) ([]TitleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, submitted_by, department, submitted_at
		FROM title_records
		WHERE department=$1 AND ($2 = '' OR submitted_by <> $2)
		ORDER BY submitted_at ASC, id ASC
	`, department, excludeStudent)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	defer rows.Close()

	items := make([]TitleRecord, 0)
	for rows.Next() {
		var item TitleRecord
		if err := rows.Scan(&item.ID, &item.Title, &item.SubmittedBy, &item.Department, &item.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan title record: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate title records: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTitleRecord(ctx context.Context, record TitleRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO title_records (id, title, submitted_by, department, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, record.ID, record.Title, record.SubmittedBy, record.Department, record.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert title record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProjectByStudent(ctx context.Context, studentID string) (Project, error) {
	var project Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, department, academic_year, current_stage, overall_status, created_at, last_activity
		FROM projects
		WHERE student_id=$1
	`, studentID).Scan(&project.ID, &project.StudentID, &project.Department, &project.AcademicYear,
		&project.CurrentStage, &project.OverallStatus, &project.CreatedAt, &project.LastActivity)
	if err != nil {
		return Project{}, err
	}
	return s.loadProjectChildren(ctx, project)
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var project Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, department, academic_year, current_stage, overall_status, created_at, last_activity
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&project.ID, &project.StudentID, &project.Department, &project.AcademicYear,
		&project.CurrentStage, &project.OverallStatus, &project.CreatedAt, &project.LastActivity)
	if err != nil {
		return Project{}, err
	}
	return s.loadProjectChildren(ctx, project)
}

func (s *PostgresStore) loadProjectChildren(ctx context.Context, project Project) (Project, error) {
	stages, err := s.listStages(ctx, project.ID)
	if err != nil {
		return Project{}, err
	}
	project.Stages = stages

	notifications, err := s.ListNotifications(ctx, project.ID)
	if err != nil {
		return Project{}, err
	}
	project.Notifications = notifications
	return project, nil
}

func (s *PostgresStore) listStages(ctx context.Context, projectID string) ([]ReviewStage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage_number, name, description, status, submission_json, feedback_json, due_date, completed_at
		FROM review_stages
		WHERE project_id=$1
		ORDER BY stage_number ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	stages := make([]ReviewStage, 0, 4)
	for rows.Next() {
		var stage ReviewStage
		var submissionJSON, feedbackJSON []byte
		if err := rows.Scan(&stage.StageNumber, &stage.Name, &stage.Description, &stage.Status,
			&submissionJSON, &feedbackJSON, &stage.DueDate, &stage.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		if len(submissionJSON) > 0 {
			stage.Submission = &StageSubmission{}
			if err := json.Unmarshal(submissionJSON, stage.Submission); err != nil {
				return nil, fmt.Errorf("decode stage submission: %w", err)
			}
		}
		if len(feedbackJSON) > 0 {
			stage.Feedback = &StageFeedback{}
			if err := json.Unmarshal(feedbackJSON, stage.Feedback); err != nil {
				return nil, fmt.Errorf("decode stage feedback: %w", err)
			}
		}
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stages: %w", err)
	}
	return stages, nil
}

// InsertProject persists a project together with its stage rows in a single
// transaction.
func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, student_id, department, academic_year, current_stage, overall_status, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, project.ID, project.StudentID, project.Department, project.AcademicYear,
		project.CurrentStage, project.OverallStatus, project.CreatedAt); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}

	for _, stage := range project.Stages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO review_stages (project_id, stage_number, name, description, status, due_date)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, project.ID, stage.StageNumber, stage.Name, stage.Description, stage.Status, stage.DueDate); err != nil {
			return fmt.Errorf("insert stage %d: %w", stage.StageNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert project: %w", err)
	}
	return nil
}

// UpdateStage writes a stage's status, submission and feedback, guarded by
// the status the caller last observed. When the guard fails the stage was
// modified by a concurrent request and ErrStageConflict is returned.
func (s *PostgresStore) UpdateStage(ctx context.Context, projectID string, stage ReviewStage, expectedStatus string) error {
	submissionJSON, err := marshalNullable(stage.Submission)
	if err != nil {
		return fmt.Errorf("encode stage submission: %w", err)
	}
	feedbackJSON, err := marshalNullable(stage.Feedback)
	if err != nil {
		return fmt.Errorf("encode stage feedback: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE review_stages
		SET status=$4, submission_json=$5, feedback_json=$6, completed_at=$7
		WHERE project_id=$1 AND stage_number=$2 AND status=$3
	`, projectID, stage.StageNumber, expectedStatus, stage.Status, submissionJSON, feedbackJSON, stage.CompletedAt)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stage rows: %w", err)
	}
	if affected == 0 {
		return ErrStageConflict
	}
	return nil
}

func marshalNullable(v any) ([]byte, error) {
	switch value := v.(type) {
	case *StageSubmission:
		if value == nil {
			return nil, nil
		}
	case *StageFeedback:
		if value == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func (s *PostgresStore) UpdateProjectState(ctx context.Context, projectID string, currentStage int, overallStatus string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET current_stage=$2, overall_status=$3, last_activity=NOW()
		WHERE id=$1
	`, projectID, currentStage, overallStatus)
	if err != nil {
		return fmt.Errorf("update project state: %w", err)
	}
	return nil
}

// ListProjectsForReview returns a department's projects that have at least
// one stage waiting on a reviewer, oldest activity first.
func (s *PostgresStore) ListProjectsForReview(ctx context.Context, department string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.student_id, p.department, p.academic_year, p.current_stage, p.overall_status, p.created_at, p.last_activity
		FROM projects p
		JOIN review_stages rs ON rs.project_id = p.id
		WHERE p.department=$1 AND rs.status='submitted'
		ORDER BY p.last_activity ASC
	`, department)
	if err != nil {
		return nil, fmt.Errorf("list projects for review: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		var project Project
		if err := rows.Scan(&project.ID, &project.StudentID, &project.Department, &project.AcademicYear,
			&project.CurrentStage, &project.OverallStatus, &project.CreatedAt, &project.LastActivity); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	for i := range projects {
		loaded, err := s.loadProjectChildren(ctx, projects[i])
		if err != nil {
			return nil, err
		}
		projects[i] = loaded
	}
	return projects, nil
}

func (s *PostgresStore) AppendNotification(ctx context.Context, notification Notification) (Notification, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (project_id, message, type)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, notification.ProjectID, notification.Message, notification.Type).Scan(&notification.ID, &notification.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("append notification: %w", err)
	}
	return notification, nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, projectID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, message, type, read, created_at
		FROM notifications
		WHERE project_id=$1
		ORDER BY created_at DESC, id DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Message, &item.Type, &item.Read, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, projectID string, notificationID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read=TRUE WHERE project_id=$1 AND id=$2
	`, projectID, notificationID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification rows: %w", err)
	}
	return affected > 0, nil
}
