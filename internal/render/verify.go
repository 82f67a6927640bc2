package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mathviz/internal/scene"
)

// Verify renders the last frame of class at low quality in a scratch
// directory. The error, if any, carries manim's stderr.
func (r *Renderer) Verify(ctx context.Context, code, class string) error {
	dir, err := os.MkdirTemp("", "mathviz-verify-*")
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "verify_scene.py")
	if err := os.WriteFile(script, []byte(verifySource(code)), 0o644); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.VerifyTimeout)
	defer cancel()
	_, err = r.opts.Runner.Run(ctx, r.opts.Bin, "-ql", "-s", "--media_dir", filepath.Join(dir, "media"), script, class)
	return err
}

// verifySource gives a bare scene body the shared preamble so it can be
// rendered on its own.
func verifySource(code string) string {
	return scene.Merge([]scene.Unit{{Code: code}}, "")
}
