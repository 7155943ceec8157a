package packsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// syncGitRepo clones a repository on first sight and pulls it on every
// later sync.
func syncGitRepo(ctx context.Context, logger *slog.Logger, repoURL, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		logger.Info("cloning lesson pack", "url", repoURL, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL: repoURL,
		})
		if err != nil {
			return fmt.Errorf("failed to clone pack %s: %w", repoURL, err)
		}
	case err == nil:
		logger.Info("pulling lesson pack", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open pack clone at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull pack at %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("error checking pack path %s: %w", localPath, err)
	}
	return nil
}

// gitURLToLocalPath maps a git URL to a stable clone directory under
// baseDir. Both https URLs and scp-style ssh addresses are accepted.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitized := strings.TrimSuffix(parsed.Path, ".git")
	return filepath.Join(baseDir, parsed.Host, sanitized), nil
}
