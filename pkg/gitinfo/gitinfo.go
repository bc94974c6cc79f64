// Package gitinfo stamps runs with source-control provenance.
package gitinfo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// HeadCommit returns the commit hash at HEAD of the repository at dir.
func HeadCommit(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("resolving HEAD in %q: %w", dir, err)
	}

	return strings.TrimSpace(out.String()), nil
}
