// internal/reporting/environment.go
package reporting

import (
	"os"
	"runtime"

	git "github.com/go-git/go-git/v5"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

// BuildEnvironment assembles the run-wide metadata written to the report's
// environment.properties.
func BuildEnvironment(settings *config.Settings) map[string]string {
	props := map[string]string{
		"environment":     settings.Core.Environment,
		"browser.engine":  settings.Core.Browser.Engine,
		"browser.type":    settings.Core.Browser.Type,
		"mobile.platform": settings.Core.Mobile.Platform,
		"ui.base_url":     settings.Data.UI.BaseURL,
		"api.base_url":    settings.Data.API.BaseURL,
		"go.version":      runtime.Version(),
		"os":              runtime.GOOS + "/" + runtime.GOARCH,
	}
	if host, err := os.Hostname(); err == nil {
		props["host"] = host
	}
	if branch, commit, ok := GitMetadata("."); ok {
		props["git.branch"] = branch
		props["git.commit"] = commit
	}
	return props
}

// GitMetadata reads HEAD from the repository enclosing path, walking up
// like the git CLI does. Running outside a repository is normal (CI
// artifacts directory, installed binary) and reported via ok=false.
func GitMetadata(path string) (branch, commit string, ok bool) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", false
	}
	head, err := repo.Head()
	if err != nil {
		return "", "", false
	}
	commit = head.Hash().String()
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return branch, commit, true
}
