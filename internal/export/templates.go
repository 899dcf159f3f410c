package export

import (
	"bytes"
	"html/template"
	"time"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDate": func(v any) string {
		switch t := v.(type) {
		case time.Time:
			return t.Format("Jan 2, 2006")
		case *time.Time:
			if t != nil {
				return t.Format("Jan 2, 2006")
			}
		}
		return ""
	},
}).Parse(reportTemplateHTML))

// RenderReportHTML renders the review report markup for a project.
func RenderReportHTML(project ProjectInfo) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, project); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Project Review Report</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #1a7f5a; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .progress { font-weight: bold; }
    .stage { border: 1px solid #ddd; border-radius: 4px; padding: 1rem; margin: 1rem 0; page-break-inside: avoid; }
    .stage h3 { margin-top: 0; }
    .status { display: inline-block; padding: 2px 8px; border-radius: 3px; font-size: 0.85em; background: #eee; }
    .status.completed { background: #d4edda; }
    .status.submitted { background: #fff3cd; }
    .feedback { background: #f5f5f5; padding: 0.75rem; margin-top: 0.75rem; border-left: 3px solid #1a7f5a; }
  </style>
</head>
<body>
  <h1>Project Review Report</h1>
  <div class="meta">
    {{.StudentName}} | {{.Department}} | {{.AcademicYear}}<br>
    Registered {{formatDate .CreatedAt}} |
    Overall status: {{.OverallStatus}} |
    <span class="progress">{{.Progress}}% complete</span>
  </div>

  {{range .Stages}}
  <div class="stage">
    <h3>Stage {{.Number}}: {{.Name}} <span class="status {{.Status}}">{{.Status}}</span></h3>
    {{if .Title}}<p><strong>Title:</strong> {{.Title}}</p>{{end}}
    {{if .Description}}<p>{{.Description}}</p>{{end}}
    <p>Due {{formatDate .DueDate}}{{if .CompletedAt}} | Completed {{formatDate .CompletedAt}}{{end}}</p>
    {{with .Feedback}}
    <div class="feedback">
      <strong>{{if .Approved}}Approved{{else}}Returned for revision{{end}}</strong> by {{.Reviewer}}
      {{if .Grade}}<br>Grade: {{.Grade}}{{end}}
      {{if .Comment}}<p>{{.Comment}}</p>{{end}}
    </div>
    {{end}}
  </div>
  {{end}}
</body>
</html>`
