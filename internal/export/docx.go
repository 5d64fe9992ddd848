package export

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// pandocArgs builds the html to docx invocation. referenceDoc, when set,
// supplies the house styles.
func pandocArgs(title, referenceDoc string) []string {
	args := []string{
		"-f", "html",
		"-t", "docx",
		"--standalone",
		"--toc",
		"--toc-depth=2",
		"--metadata", "title=" + title,
	}
	if referenceDoc != "" {
		args = append(args, "--reference-doc="+referenceDoc)
	}
	return append(args, "-o", "-")
}

// pandocDOCX returns a converter that shells out to pandoc.
func pandocDOCX(referenceDoc string) converter {
	return func(ctx context.Context, html string, title string) (*Result, error) {
		if _, err := exec.LookPath("pandoc"); err != nil {
			return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
		}

		cmd := exec.CommandContext(ctx, "pandoc", pandocArgs(title, referenceDoc)...)
		cmd.Stdin = strings.NewReader(html)

		output, err := cmd.Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil, fmt.Errorf("pandoc failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
			}
			return nil, fmt.Errorf("pandoc execution failed: %w", err)
		}

		return &Result{
			Data:     output,
			Filename: sanitizeFilename(title) + ".docx",
			MimeType: docxMimeType,
		}, nil
	}
}
