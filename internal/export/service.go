package export

import (
	"context"
	"fmt"
)

// DataStore loads the report input for a project.
type DataStore interface {
	GetProjectReport(ctx context.Context, projectID string) (ProjectInfo, error)
}

type Service struct {
	store DataStore
}

func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export renders the project review report in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	project, err := s.store.GetProjectReport(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project report: %w", err)
	}

	html, err := RenderReportHTML(project)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	name := fmt.Sprintf("%s-project-report", project.StudentName)
	switch req.Format {
	case FormatPDF:
		return exportPDF(html, name)
	case FormatDOCX:
		return exportDOCX(html, name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
