package smtp

import (
	"io"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
)

var (
	fromHeaderRe  = regexp.MustCompile(`^(?:"?([^"<]*)"?\s*)?<?([^<>]+@[^<>]+)>?$`)
	scriptStyleRe = regexp.MustCompile(`(?i)<(script|style)[^>]*>[\s\S]*?</(script|style)>`)
	htmlTagRe     = regexp.MustCompile(`<[^>]*>`)
)

// ParsedEmail is a notification read back from its MIME form
type ParsedEmail struct {
	SenderEmail string
	SenderName  string
	To          string
	Subject     string
	MessageID   string
	Snippet     string
	BodyText    string
	BodyHTML    string
}

// ParseEmail parses an email from an io.Reader
func ParseEmail(r io.Reader) (*ParsedEmail, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, err
	}

	parsed := &ParsedEmail{
		To:        env.GetHeader("To"),
		Subject:   env.GetHeader("Subject"),
		MessageID: env.GetHeader("Message-ID"),
		BodyText:  env.Text,
		BodyHTML:  env.HTML,
	}

	parsed.SenderName, parsed.SenderEmail = parseFromHeader(env.GetHeader("From"))
	parsed.Snippet = generateSnippet(parsed.BodyText, parsed.BodyHTML)

	return parsed, nil
}

// parseFromHeader extracts name and email from a From header
func parseFromHeader(from string) (name, email string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	// Pattern: "Name" <email@example.com> or Name <email@example.com>
	matches := fromHeaderRe.FindStringSubmatch(from)
	if len(matches) >= 3 {
		name = strings.Trim(strings.TrimSpace(matches[1]), `"`)
		email = strings.TrimSpace(matches[2])
	} else {
		email = from
	}

	return name, email
}

// generateSnippet creates a preview snippet from email body
func generateSnippet(bodyText, bodyHTML string) string {
	var text string

	if bodyText != "" {
		text = bodyText
	} else if bodyHTML != "" {
		text = stripHTMLTags(bodyHTML)
	}

	text = strings.TrimSpace(strings.Join(strings.Fields(text), " "))

	if len(text) > 255 {
		text = text[:252] + "..."
	}

	return text
}

// stripHTMLTags removes HTML tags from a string
func stripHTMLTags(html string) string {
	html = scriptStyleRe.ReplaceAllString(html, "")
	html = htmlTagRe.ReplaceAllString(html, " ")

	html = strings.ReplaceAll(html, "&nbsp;", " ")
	html = strings.ReplaceAll(html, "&amp;", "&")
	html = strings.ReplaceAll(html, "&lt;", "<")
	html = strings.ReplaceAll(html, "&gt;", ">")
	html = strings.ReplaceAll(html, "&quot;", `"`)
	html = strings.ReplaceAll(html, "&#39;", "'")

	return html
}
