package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// PermissionRequest is the data for the guardian reminder message.
type PermissionRequest struct {
	GuardianName string
	SubjectName  string
	ActivityName string
	StartsAt     time.Time
	Location     string
	Link         string
	ExpiresAt    time.Time
}

// SignedConfirmation is the data for the admin signing notice.
type SignedConfirmation struct {
	SubjectName  string
	ActivityName string
	SignedBy     string
	SignedAt     time.Time
	IPAddress    string
	DocumentName string
}

var (
	requestTemplate = template.Must(template.New("request").Parse(`<p>Hello {{if .GuardianName}}{{.GuardianName}}{{else}}there{{end}},</p>
<p>{{.SubjectName}} is invited to <strong>{{.ActivityName}}</strong> on {{.StartsAt.Format "Monday, January 2 2006 at 3:04 PM"}}{{if .Location}} at {{.Location}}{{end}}.</p>
<p>Please review and sign the permission waiver:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>This link can be used once and expires on {{.ExpiresAt.Format "January 2 2006"}}.</p>`))

	confirmationTemplate = template.Must(template.New("confirmation").Parse(`<p>Permission was signed for <strong>{{.SubjectName}}</strong> to attend <strong>{{.ActivityName}}</strong>.</p>
<ul>
<li>Signed by: {{.SignedBy}}</li>
<li>Signed at: {{.SignedAt.Format "2006-01-02 15:04:05 MST"}}</li>
<li>IP address: {{.IPAddress}}</li>
</ul>
{{if .DocumentName}}<p>The signed waiver {{.DocumentName}} is attached.</p>{{end}}`))
)

// RenderPermissionRequest builds the guardian reminder.
func RenderPermissionRequest(data PermissionRequest) (Message, error) {
	var html bytes.Buffer
	if err := requestTemplate.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("notify: render permission request: %w", err)
	}

	text := fmt.Sprintf("%s is invited to %s on %s. Please sign the permission waiver: %s (single use, expires %s)",
		data.SubjectName, data.ActivityName, data.StartsAt.Format("Jan 2 2006 3:04 PM"), data.Link, data.ExpiresAt.Format("Jan 2 2006"))

	return Message{
		Subject: fmt.Sprintf("Permission needed: %s for %s", data.ActivityName, data.SubjectName),
		Text:    text,
		HTML:    html.String(),
		SMS:     fmt.Sprintf("Permission needed for %s to attend %s: %s", data.SubjectName, data.ActivityName, data.Link),
	}, nil
}

// RenderSignedConfirmation builds the admin notice sent after a waiver is signed.
func RenderSignedConfirmation(data SignedConfirmation) (Message, error) {
	var html bytes.Buffer
	if err := confirmationTemplate.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("notify: render confirmation: %w", err)
	}

	text := fmt.Sprintf("Permission signed for %s to attend %s by %s at %s (IP %s).",
		data.SubjectName, data.ActivityName, data.SignedBy, data.SignedAt.Format(time.RFC3339), data.IPAddress)

	return Message{
		Subject: fmt.Sprintf("Permission signed: %s for %s", data.SubjectName, data.ActivityName),
		Text:    text,
		HTML:    html.String(),
	}, nil
}
