package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "test@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "test@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{
			name:     "fully configured",
			config:   Config{Host: "smtp.example.com", Port: "587", From: "test@example.com"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderVerificationTemplate(t *testing.T) {
	html, err := renderTemplate(verificationEmailTemplate, VerificationData{
		AppName:         "ProjectGate",
		UserName:        "Priya Sharma",
		VerificationURL: "https://example.com/verify?token=abc123",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "ProjectGate") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Priya Sharma") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/verify?token=abc123") {
		t.Error("template should contain verification URL")
	}
}

func TestRenderPasswordResetTemplate(t *testing.T) {
	html, err := renderTemplate(passwordResetEmailTemplate, PasswordResetData{
		AppName:  "ProjectGate",
		UserName: "Priya Sharma",
		ResetURL: "https://example.com/reset?token=xyz789",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "https://example.com/reset?token=xyz789") {
		t.Error("template should contain reset URL")
	}
	if !strings.Contains(html, "1 hour") {
		t.Error("template should mention expiration time")
	}
}

func TestRenderStageDecisionTemplate(t *testing.T) {
	t.Run("approved", func(t *testing.T) {
		html, err := renderTemplate(stageDecisionEmailTemplate, StageDecisionData{
			AppName:   "ProjectGate",
			UserName:  "Priya Sharma",
			StageName: "Proposal",
			Approved:  true,
			Comment:   "Well scoped.",
			NextStep:  "The next stage of your project is now open for submission.",
		})
		if err != nil {
			t.Fatalf("renderTemplate failed: %v", err)
		}
		if !strings.Contains(html, "approved") {
			t.Error("approved template should say approved")
		}
		if !strings.Contains(html, "Well scoped.") {
			t.Error("template should include the reviewer comment")
		}
	})

	t.Run("rejected without comment", func(t *testing.T) {
		html, err := renderTemplate(stageDecisionEmailTemplate, StageDecisionData{
			AppName:   "ProjectGate",
			UserName:  "Priya Sharma",
			StageName: "Proposal",
			Approved:  false,
			NextStep:  "Please revise your work and resubmit the stage.",
		})
		if err != nil {
			t.Fatalf("renderTemplate failed: %v", err)
		}
		if !strings.Contains(html, "returned for revision") {
			t.Error("rejected template should mention revision")
		}
		if strings.Contains(html, "Reviewer comment") {
			t.Error("empty comment should omit the comment block")
		}
	})
}
