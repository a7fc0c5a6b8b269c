// internal/reporting/environment_test.go
package reporting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

func TestBuildEnvironment(t *testing.T) {
	settings := config.NewDefaultSettings()
	props := BuildEnvironment(settings)

	assert.Equal(t, "local", props["environment"])
	assert.Equal(t, "playwright", props["browser.engine"])
	assert.Equal(t, "chromium", props["browser.type"])
	assert.Equal(t, "android", props["mobile.platform"])
	assert.Equal(t, settings.Data.UI.BaseURL, props["ui.base_url"])
	assert.NotEmpty(t, props["go.version"])
	assert.NotEmpty(t, props["os"])
}

func TestGitMetadataOutsideRepository(t *testing.T) {
	_, _, ok := GitMetadata(t.TempDir())
	assert.False(t, ok, "a bare temp dir is not a repository")
}

func TestGitMetadataInsideRepository(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	readme := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("# test\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	branch, commit, ok := GitMetadata(dir)
	require.True(t, ok)
	assert.NotEmpty(t, branch)
	assert.Len(t, commit, 40, "commit should be a full SHA-1 hex")
}
