// Package workspace manages the local checkout of a task repository:
// seed files, submitted attachments, and raw LLM output.
package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/taskforge/taskforge/internal/datauri"
	"github.com/taskforge/taskforge/models"
)

// RawOutputFile returns the hidden per-round raw LLM output filename,
// e.g. ".llm_output_round_1.txt". These files are git-ignored by the
// seeded .gitignore.
func RawOutputFile(round int) string {
	return fmt.Sprintf(".llm_output_round_%d.txt", round)
}

// WriteSeedFiles populates a fresh checkout with the initial file set:
// README (task id, brief, checks), a placeholder page, the Pages
// .nojekyll marker, a license, and ignore rules for raw LLM output.
func WriteSeedFiles(fs afero.Fs, repoPath, taskID, brief string, checks []string) error {
	lines := []string{
		"Task: " + taskID,
		"",
		"Brief: " + brief,
		"",
		"Checks:",
	}
	for _, item := range checks {
		lines = append(lines, "- "+item)
	}
	readme := strings.TrimSpace(strings.Join(lines, "\n")) + "\n"

	license := strings.NewReplacer(
		"[year]", time.Now().Format("2006"),
		"[fullname]", "Autogen LLM App",
	).Replace(licenseTemplate)

	seeds := map[string]string{
		"README.md":  readme,
		"index.html": "<h1>Hello, World!</h1>\n",
		".nojekyll":  "",
		"LICENSE":    license,
		".gitignore": ".llm_output*",
	}
	for name, content := range seeds {
		if err := afero.WriteFile(fs, filepath.Join(repoPath, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write seed file %s: %w", name, err)
		}
	}
	return nil
}

// SaveAttachments decodes each attachment's data URI and writes its
// bytes under the declared name inside the checkout.
func SaveAttachments(fs afero.Fs, repoPath string, attachments []models.Attachment) error {
	for _, att := range attachments {
		data, _, err := datauri.Decode(att.URL)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", att.Name, err)
		}
		target := filepath.Join(repoPath, att.Name)
		if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("attachment %s: %w", att.Name, err)
		}
		if err := afero.WriteFile(fs, target, data, 0o644); err != nil {
			return fmt.Errorf("attachment %s: %w", att.Name, err)
		}
	}
	return nil
}

// SaveRawOutput persists the round's raw LLM output alongside the
// checkout and returns its full path.
func SaveRawOutput(fs afero.Fs, repoPath string, round int, output string) (string, error) {
	path := filepath.Join(repoPath, RawOutputFile(round))
	if err := afero.WriteFile(fs, path, []byte(output), 0o644); err != nil {
		return "", fmt.Errorf("save raw LLM output: %w", err)
	}
	return path, nil
}
