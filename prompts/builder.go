package prompts

import (
	"fmt"
	"strings"

	"github.com/taskforge/taskforge/internal/datauri"
	"github.com/taskforge/taskforge/models"
)

// BuildRoundOne constructs the round-1 user prompt from the task record:
// brief, checks, attachment inventory, and text-attachment contents.
func BuildRoundOne(rec *models.TaskRecord) (string, error) {
	checks, err := rec.ParseChecks()
	if err != nil {
		return "", err
	}
	atts, err := rec.ParseAttachments()
	if err != nil {
		return "", err
	}

	inventory, textXML := describeAttachments(atts)
	prompt := strings.NewReplacer(
		"<<brief>>", makeList([]string{strings.TrimSpace(rec.Brief)}),
		"<<checks>>", makeList(checks),
		"<<attachments>>", inventory,
		"<<attachments_text_xml>>", textXML,
		"<<repo_url>>", rec.RepoCloneURL,
	).Replace(roundOneTemplate)
	return prompt, nil
}

// BuildRoundTwo constructs the round-2 user prompt: the union of
// archived round-1 attachments and the current round's, plus the
// round-1 raw output as the repository's current state.
func BuildRoundTwo(rec *models.TaskRecord, roundOneOutput string) (string, error) {
	checks, err := rec.ParseChecks()
	if err != nil {
		return "", err
	}
	round1Atts, err := rec.ParseRound1Attachments()
	if err != nil {
		return "", err
	}
	round2Atts, err := rec.ParseAttachments()
	if err != nil {
		return "", err
	}
	atts := append(append([]models.Attachment{}, round1Atts...), round2Atts...)

	inventory, textXML := describeAttachments(atts)
	prompt := strings.NewReplacer(
		"<<brief>>", makeList([]string{strings.TrimSpace(rec.Brief)}),
		"<<checks>>", makeList(checks),
		"<<attachments>>", inventory,
		"<<attachments_text_xml>>", textXML,
		"<<repo_files_xml>>", roundOneOutput,
	).Replace(roundTwoTemplate)
	return prompt, nil
}

// makeList renders items as a markdown-ish bullet list, or "- None".
func makeList(items []string) string {
	if len(items) == 0 {
		return " - None"
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, " - "+item)
	}
	return strings.Join(lines, "\n")
}

// describeAttachments returns the attachment inventory list and an XML
// document embedding the contents of text attachments in CDATA sections.
// Attachments with undecodable URIs are listed with an unknown type but
// never abort prompt construction.
func describeAttachments(atts []models.Attachment) (inventory, textXML string) {
	var lines []string
	var b strings.Builder
	b.WriteString("<attachments>\n")

	hasText := false
	for _, att := range atts {
		name := att.Name
		if name == "" {
			name = "unnamed"
		}
		data, mime, err := datauri.Decode(att.URL)
		if err != nil {
			lines = append(lines, fmt.Sprintf("path: %s, mime_type: unknown", name))
			continue
		}
		lines = append(lines, fmt.Sprintf("path: %s, mime_type: %s", name, mime))
		if datauri.IsText(mime) {
			hasText = true
			fmt.Fprintf(&b, "<attachment name=%q mime_type=%q><![CDATA[%s]]></attachment>\n",
				name, mime, string(data))
		}
	}
	b.WriteString("</attachments>")

	if !hasText {
		return makeList(lines), "<attachments>\n</attachments>"
	}
	return makeList(lines), b.String()
}
