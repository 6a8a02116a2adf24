// Package datauri decodes RFC 2397 data URIs as used for submission
// attachments.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var headerPattern = regexp.MustCompile(`^data:(?P<mime>[\w\-/+.]+)?(;charset=[\w-]+)?(?P<encoding>;base64)?,`)

// ErrInvalidDataURI is returned for payloads that do not match the data
// URI grammar.
var ErrInvalidDataURI = errors.New("attachment is not a valid data URI")

// Decode splits a data URI into its payload bytes and MIME type.
// Base64 payloads are decoded; plain payloads are returned as UTF-8
// bytes. An absent MIME type defaults to application/octet-stream.
func Decode(uri string) ([]byte, string, error) {
	m := headerPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, "", ErrInvalidDataURI
	}

	header, data, _ := strings.Cut(uri, ",")

	mime := m[headerPattern.SubexpIndex("mime")]
	if mime == "" {
		mime = "application/octet-stream"
	}

	if strings.Contains(header, ";base64") {
		payload, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, "", fmt.Errorf("decode base64 data URI payload: %w", err)
		}
		return payload, mime, nil
	}
	return []byte(data), mime, nil
}

// IsText reports whether the MIME type names a textual payload.
func IsText(mime string) bool {
	return strings.HasPrefix(mime, "text")
}
