package naming

import (
	"fmt"
	"path"
	"strings"
)

const githubPrefix = "https://github.com/"

// ImageRepository is the local repository name of the converter image.
const ImageRepository = "ebook-converter-custom"

// Scratch directory names, used both below the remote home and the local work dir.
const (
	InputDir  = "input"
	OutputDir = "output"
	ModelsDir = "models"

	TempInputDir  = "tmp_input"
	TempOutputDir = "tmp_output"
)

// RepoName derives the image-safe repository name from a git URL:
// the GitHub prefix and ".git" are removed and slashes become dashes.
func RepoName(gitRepo string) string {
	name := strings.TrimPrefix(gitRepo, githubPrefix)
	name = strings.ReplaceAll(name, ".git", "")
	return strings.ReplaceAll(name, "/", "-")
}

// DockerImage returns the converter image reference for repo and branch.
func DockerImage(repoName, branch string) string {
	return fmt.Sprintf("%s:%s-%s", ImageRepository, repoName, branch)
}

// RemoteInput returns the VM directory ebooks are uploaded to.
func RemoteInput(home string) string {
	return path.Join(home, InputDir)
}

// RemoteOutput returns the VM directory the converter writes audiobooks to.
func RemoteOutput(home string) string {
	return path.Join(home, OutputDir)
}

// RemoteModels returns the VM directory holding the cached TTS models.
func RemoteModels(home string) string {
	return path.Join(home, ModelsDir)
}

// RemoteScript returns the path of the uploaded setup script.
func RemoteScript(home, script string) string {
	return path.Join(home, path.Base(script))
}
