package media

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"darkroom/internal/logging"
)

// Scanner discovers importable files under source roots.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner constructs a scanner.
func NewScanner(logger *slog.Logger) *Scanner {
	return &Scanner{logger: logging.WithComponent(logger, "scanner")}
}

// Scan walks each root and returns the importable files in a stable
// order (by source path). A root that is itself a file is accepted
// directly. Hidden files and directories are skipped.
func (s *Scanner) Scan(ctx context.Context, roots []string) ([]ScannedFile, error) {
	var files []ScannedFile

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat source %s: %w", root, err)
		}

		if !info.IsDir() {
			if Importable(info.Name()) {
				files = append(files, newScannedFile(root, info))
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			name := entry.Name()
			if entry.IsDir() {
				if strings.HasPrefix(name, ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") || !Importable(name) {
				return nil
			}
			fi, err := entry.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			files = append(files, newScannedFile(path, fi))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk source %s: %w", root, err)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].SourcePath < files[j].SourcePath })

	s.logger.Info("scan complete",
		logging.Int("files", len(files)),
		logging.Int("roots", len(roots)),
	)
	return files, nil
}

func newScannedFile(path string, info fs.FileInfo) ScannedFile {
	name := filepath.Base(path)
	return ScannedFile{
		ID:         uuid.NewString(),
		Filename:   name,
		SourcePath: path,
		Extension:  strings.ToLower(filepath.Ext(name)),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		Type:       DetectType(name),
	}
}
