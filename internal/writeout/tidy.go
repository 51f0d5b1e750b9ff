package writeout

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// tidyBatchSize caps how many field bodies are piped through one `tidy`
// invocation at a time: don't hand an external process an unbounded
// argument/stdin size.
const tidyBatchSize = 500

// TidyHTML runs each body through the system `tidy` binary (html-tidy) to
// normalize field HTML before it's embedded in a note file, batching
// bodies tidyBatchSize at a time behind a single quiet, body-only, XHTML
// output invocation per batch rather than one process per field.
func TidyHTML(ctx context.Context, bodies []string) ([]string, error) {
	out := make([]string, len(bodies))
	for start := 0; start < len(bodies); start += tidyBatchSize {
		end := start + tidyBatchSize
		if end > len(bodies) {
			end = len(bodies)
		}
		tidied, err := tidyBatch(ctx, bodies[start:end])
		if err != nil {
			return nil, fmt.Errorf("tidy batch [%d:%d): %w", start, end, err)
		}
		copy(out[start:end], tidied)
	}
	return out, nil
}

// batchSep separates concatenated fragments inside one tidy invocation; it
// must not collide with anything tidy itself could emit, so it uses an
// HTML comment form tidy passes through untouched.
const batchSep = "<!--ki:batch-sep-->"

func tidyBatch(ctx context.Context, bodies []string) ([]string, error) {
	if len(bodies) == 0 {
		return nil, nil
	}

	var input bytes.Buffer
	for i, b := range bodies {
		if i > 0 {
			input.WriteString(batchSep)
		}
		input.WriteString(b)
	}

	//nolint:gosec // G204: fixed argument list, no user-controlled argv
	cmd := exec.CommandContext(ctx, "tidy", "--quiet", "yes", "--show-warnings", "no",
		"--show-body-only", "yes", "-asxhtml")
	cmd.Stdin = &input
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// tidy exits 1 on recoverable warnings even with --show-warnings no
		// in some versions; only treat exit codes >= 2 as fatal.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() <= 1 {
			// fall through, use stdout as produced
		} else {
			return nil, fmt.Errorf("%s: %w", stderr.String(), err)
		}
	}

	return splitBatch(stdout.String(), len(bodies)), nil
}

func splitBatch(output string, want int) []string {
	parts := bytes.Split([]byte(output), []byte(batchSep))
	out := make([]string, want)
	for i := 0; i < want && i < len(parts); i++ {
		out[i] = string(parts[i])
	}
	return out
}
