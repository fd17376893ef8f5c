package pkgmanager

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
)

// Refresher fetches current kolejka-client/kolejka-judge binaries over
// HTTP before a build, when force_rebuild_packages is set (spec.md
// §4.5). Grounded on pkg/client/piri.go's resty-free net/http usage
// elsewhere in the teacher's cmd/ tooling for one-shot file downloads.
type Refresher struct {
	Client *http.Client

	ClientBinaryURL string
	JudgeBinaryURL  string
	DestDir         string
}

// Refresh downloads both binaries into r.DestDir, overwriting any
// existing copy, and marks them executable on POSIX.
func (r *Refresher) Refresh(ctx context.Context) error {
	if err := r.fetch(ctx, r.ClientBinaryURL, filepath.Join(r.DestDir, "kolejka-client")); err != nil {
		return fmt.Errorf("refreshing kolejka-client: %w", err)
	}
	if err := r.fetch(ctx, r.JudgeBinaryURL, filepath.Join(r.DestDir, "kolejka-judge")); err != nil {
		return fmt.Errorf("refreshing kolejka-judge: %w", err)
	}
	return nil
}

func (r *Refresher) fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	if err := os.MkdirAll(r.DestDir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(dest, 0o755); err != nil {
			return err
		}
	}
	return nil
}
