package prompts

import (
	"strings"
	"testing"

	"github.com/taskforge/taskforge/models"
)

func TestBuildRoundOne(t *testing.T) {
	rec := &models.TaskRecord{
		TaskID:       "task-1",
		Brief:        "a weather dashboard",
		Checks:       `["shows temperature","responsive layout"]`,
		Attachments:  `[{"name":"cities.csv","url":"data:text/csv;base64,TllDLExvbmRvbg=="},{"name":"bg.png","url":"data:image/png;base64,aWJt"}]`,
		RepoCloneURL: "https://github.com/me/task-1-ab12cd34",
	}

	prompt, err := BuildRoundOne(rec)
	if err != nil {
		t.Fatalf("BuildRoundOne failed: %v", err)
	}

	for _, want := range []string{
		" - a weather dashboard",
		" - shows temperature",
		" - responsive layout",
		"path: cities.csv, mime_type: text/csv",
		"path: bg.png, mime_type: image/png",
		"<![CDATA[NYC,London]]>",
		"repo url is: https://github.com/me/task-1-ab12cd34",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// Binary attachments are listed but never inlined.
	if strings.Contains(prompt, `name="bg.png"`) {
		t.Error("binary attachment content must not be embedded")
	}
	if strings.Contains(prompt, "<<") {
		t.Error("unsubstituted placeholder left in prompt")
	}
}

func TestBuildRoundOne_NoChecksNoAttachments(t *testing.T) {
	rec := &models.TaskRecord{Brief: "x", RepoCloneURL: "https://github.com/me/r"}

	prompt, err := BuildRoundOne(rec)
	if err != nil {
		t.Fatalf("BuildRoundOne failed: %v", err)
	}
	if !strings.Contains(prompt, " - None") {
		t.Error("empty sections should render as '- None'")
	}
	if !strings.Contains(prompt, "<attachments>\n</attachments>") {
		t.Error("empty attachment XML expected")
	}
}

func TestBuildRoundTwo_UnionsAttachments(t *testing.T) {
	rec := &models.TaskRecord{
		Brief:             "add dark mode",
		Checks:            `["toggle works"]`,
		Round1Attachments: `[{"name":"old.txt","url":"data:text/plain,old"}]`,
		Attachments:       `[{"name":"new.txt","url":"data:text/plain,new"}]`,
	}

	prompt, err := BuildRoundTwo(rec, "<files><file path=\"index.html\">x</file></files>")
	if err != nil {
		t.Fatalf("BuildRoundTwo failed: %v", err)
	}

	for _, want := range []string{
		"path: old.txt, mime_type: text/plain",
		"path: new.txt, mime_type: text/plain",
		"<![CDATA[old]]>",
		"<![CDATA[new]]>",
		"<files><file path=\"index.html\">x</file></files>",
		"Only edit what is required",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
