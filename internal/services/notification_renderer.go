package services

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/welldanyogia/timecapsule-backend/internal/models"
)

// SubjectPrefix tags every outbound notification subject
const SubjectPrefix = "Time Capsule: "

// provenanceDateLayout renders the creation date as e.g. "Tue Mar 04 2025"
const provenanceDateLayout = "Mon Jan 02 2006"

//go:embed templates/notification.html templates/notification.txt
var templatesFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templatesFS, "templates/notification.html"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templatesFS, "templates/notification.txt"))
)

// NotificationRenderer turns a delivered message into an outbound notification
type NotificationRenderer interface {
	Render(msg *models.Message, recipient *models.Account) (*models.Notification, error)
}

type notificationView struct {
	Subject     string
	Body        string
	SenderName  string
	SenderEmail string
	CreatedOn   string
	InboxURL    string
}

type templateRenderer struct {
	frontendURL string
}

// NewNotificationRenderer creates a renderer. The inbox link is built from
// frontendURL and only included when the recipient has an account.
func NewNotificationRenderer(frontendURL string) NotificationRenderer {
	return &templateRenderer{frontendURL: strings.TrimRight(frontendURL, "/")}
}

// Render builds the HTML and plain text bodies for msg
func (r *templateRenderer) Render(msg *models.Message, recipient *models.Account) (*models.Notification, error) {
	view := notificationView{
		Subject:     msg.Subject,
		Body:        msg.Body,
		SenderName:  msg.Sender.Name,
		SenderEmail: msg.Sender.Email,
		CreatedOn:   msg.CreatedAt.UTC().Format(provenanceDateLayout),
	}
	if recipient != nil && r.frontendURL != "" {
		view.InboxURL = r.frontendURL + "/inbox"
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("failed to render html notification: %w", err)
	}
	if err := textTemplate.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("failed to render text notification: %w", err)
	}

	n := &models.Notification{
		To:      msg.RecipientEmail,
		Subject: SubjectPrefix + msg.Subject,
		HTML:    html.String(),
		Text:    text.String(),
	}
	if recipient != nil {
		n.ToName = recipient.Name
	}
	return n, nil
}
