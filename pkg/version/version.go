// Package version reports the build's identity: the ldflags-injected
// commit when one was stamped in, otherwise the VCS revision from the
// embedded build info, otherwise "dev".
package version

import "runtime/debug"

// AppName appears in version strings and the scout's user agent.
const AppName = "trustlens"

// gitCommitOverride can be stamped with
// -ldflags "-X .../pkg/version.gitCommitOverride=<sha>" when the build
// happens outside a git checkout.
var gitCommitOverride string

// GitCommit is the short (8-char) commit hash, or "dev" when neither an
// override nor build info is available.
var GitCommit = initGitCommit()

func initGitCommit() string {
	if gitCommitOverride != "" {
		return shorten(gitCommitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full renders "trustlens/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
