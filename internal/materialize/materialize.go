// Package materialize converts the LLM's structured XML output into
// files inside a repository checkout.
package materialize

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	// licenseMarker names the pseudo-file the LLM is told not to emit;
	// it is discarded so the seeded license is never overwritten.
	licenseMarker = "LICENSE"
	// commitMessageMarker names the pseudo-file carrying the commit
	// message; its content is extracted, not written to disk.
	commitMessageMarker = "commit_message"
)

// ParseError indicates the output text was not a well-formed files
// container. It is absorbed by the controller's LLM retry loop rather
// than failing the round.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("malformed files output: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Result holds the outcome of materializing one LLM output.
type Result struct {
	// CreatedFiles lists relative paths in creation order.
	CreatedFiles []string
	// CommitMessage is the extracted commit_message content, empty when
	// the output carried none.
	CommitMessage string
}

type filesDoc struct {
	XMLName xml.Name   `xml:"files"`
	Files   []fileNode `xml:"file"`
}

type fileNode struct {
	Path     string `xml:"path,attr"`
	Encoding string `xml:"encoding,attr"`
	Content  string `xml:",chardata"`
}

// Files parses outputText as a <files> container and writes each
// declared file under destDir, creating parent directories as needed.
func Files(fs afero.Fs, outputText, destDir string) (Result, error) {
	var doc filesDoc
	if err := xml.Unmarshal([]byte(outputText), &doc); err != nil {
		return Result{}, &ParseError{Err: err}
	}

	var res Result
	for _, f := range doc.Files {
		if f.Path == "" {
			continue
		}
		content := strings.TrimSpace(f.Content)
		base := path.Base(f.Path)

		if base == licenseMarker {
			continue
		}
		if base == commitMessageMarker {
			res.CommitMessage = content
			continue
		}

		target := filepath.Join(destDir, filepath.FromSlash(f.Path))
		if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return res, fmt.Errorf("create directory for %s: %w", f.Path, err)
		}

		var data []byte
		if f.Encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(content)
			if err != nil {
				return res, fmt.Errorf("decode base64 content of %s: %w", f.Path, err)
			}
			data = decoded
		} else {
			data = []byte(content)
		}

		if err := afero.WriteFile(fs, target, data, 0o644); err != nil {
			return res, fmt.Errorf("write %s: %w", f.Path, err)
		}
		res.CreatedFiles = append(res.CreatedFiles, f.Path)
	}
	return res, nil
}
