package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// maxParallelUploads bounds concurrent Slack downloads and Jira uploads per
// issue.
const maxParallelUploads = 3

func countAttachable(files []protocol.FileRef) int {
	n := 0
	for _, f := range files {
		if !f.External() {
			n++
		}
	}
	return n
}

// transferFiles copies the thread's files from Slack to the issue. Each file
// goes through a temp file that is removed afterwards. Names are reported in
// the order of files.
func (b *Bot) transferFiles(ctx context.Context, log *slog.Logger, issueKey string, files []protocol.FileRef) (uploaded, failed []string) {
	ok := make([]bool, len(files))
	skip := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, f := range files {
		if f.External() || f.URL == "" {
			skip[i] = true
			continue
		}
		g.Go(func() error {
			if err := b.transferFile(gctx, issueKey, f); err != nil {
				log.Warn("file transfer failed", "file", f.Name, "issue", issueKey, "error", err)
				return nil
			}
			log.Debug("file attached", "file", f.Name, "issue", issueKey)
			ok[i] = true
			return nil
		})
	}
	g.Wait()

	for i, f := range files {
		switch {
		case skip[i]:
		case ok[i]:
			uploaded = append(uploaded, f.Name)
		default:
			failed = append(failed, f.Name)
		}
	}
	b.metrics.ObserveAttachments(len(uploaded), len(failed))
	return uploaded, failed
}

func (b *Bot) transferFile(ctx context.Context, issueKey string, f protocol.FileRef) error {
	tmp, err := os.CreateTemp("", "ticketbot-*-"+safeName(f.Name))
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := b.chat.DownloadFile(ctx, f.URL, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	if err := b.tracker.AddAttachment(ctx, issueKey, f.Name, tmp.Name()); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

// safeName keeps a file name usable as a temp file suffix.
func safeName(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '*' || r == 0 {
			return '_'
		}
		return r
	}, name)
	if name == "." || name == "" {
		return "file"
	}
	return name
}
