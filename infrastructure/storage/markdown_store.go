// Package storage persists generation and ranking artifacts as Markdown
// files.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/ahrav/go-bestof/internal/ports"
)

const (
	// RankingFileName is the name of the judge's evaluation artifact.
	RankingFileName = "final_ranking.md"

	writeCheckFileName = ".bestof-write-check"
	dirPerm       = 0o755
	filePerm      = 0o644
)

var _ ports.ArtifactStore = (*MarkdownStore)(nil)

// MarkdownStore writes one Markdown file per generation plus one ranking file
// into a single directory. Generation files are named by index, so concurrent
// saves for different indices never share a file.
type MarkdownStore struct {
	fs  afero.Fs
	dir string
}

// NewMarkdownStore returns a store rooted at dir on fs.
func NewMarkdownStore(fs afero.Fs, dir string) *MarkdownStore {
	return &MarkdownStore{fs: fs, dir: dir}
}

// NewOSMarkdownStore returns a store rooted at dir on the local filesystem.
func NewOSMarkdownStore(dir string) *MarkdownStore {
	return NewMarkdownStore(afero.NewOsFs(), dir)
}

// Prepare creates the output directory and verifies that it accepts writes.
func (s *MarkdownStore) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.fs.MkdirAll(s.dir, dirPerm); err != nil {
		return ports.NewStorageError(s.dir, "mkdir", fmt.Errorf("%w: %w", ports.ErrStorageUnavailable, err))
	}

	check := filepath.Join(s.dir, writeCheckFileName)
	if err := afero.WriteFile(s.fs, check, nil, filePerm); err != nil {
		return ports.NewStorageError(s.dir, "write check", fmt.Errorf("%w: %w", ports.ErrStorageUnavailable, err))
	}
	if err := s.fs.Remove(check); err != nil && !os.IsNotExist(err) {
		return ports.NewStorageError(check, "remove", err)
	}

	return nil
}

// SaveResponse writes response_<index>.md.
func (s *MarkdownStore) SaveResponse(ctx context.Context, index int, prompt, text string) (string, error) {
	return s.write(ctx, ResponseFileName(index), RenderResponse(index, prompt, text))
}

// SaveRanking writes final_ranking.md, replacing any earlier ranking.
func (s *MarkdownStore) SaveRanking(ctx context.Context, topK int, prompt, text string) (string, error) {
	return s.write(ctx, RankingFileName, RenderRanking(topK, prompt, text))
}

// Location returns the output directory.
func (s *MarkdownStore) Location() string { return s.dir }

func (s *MarkdownStore) write(ctx context.Context, name, content string) (string, error) {
	path := filepath.Join(s.dir, name)
	if err := ctx.Err(); err != nil {
		return path, ports.NewStorageError(path, "write", err)
	}
	if err := afero.WriteFile(s.fs, path, []byte(content), filePerm); err != nil {
		return path, ports.NewStorageError(path, "write", err)
	}
	return path, nil
}

// ResponseFileName returns the artifact name for the generation at index.
func ResponseFileName(index int) string {
	return "response_" + strconv.Itoa(index) + ".md"
}

// RenderResponse formats a generation artifact.
func RenderResponse(index int, prompt, text string) string {
	return fmt.Sprintf("# Response %d\n\n## Prompt\n%s\n\n## Answer\n%s", index, prompt, text)
}

// RenderRanking formats the judge's evaluation artifact.
func RenderRanking(topK int, prompt, text string) string {
	return fmt.Sprintf("# Final Ranking\n\n## Task\nIdentify top %d answers for: %s\n\n## Evaluation\n%s", topK, prompt, text)
}
