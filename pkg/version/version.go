// Package version reports which build of pagesmith is running.
package version

import (
	"runtime/debug"
	"sync"
)

// commit is injected by container builds where .git is unavailable:
//
//	go build -ldflags "-X github.com/pagesmith/pagesmith/pkg/version.commit=<sha>"
var commit string

var resolve = sync.OnceValue(func() string {
	if commit != "" {
		return short(commit)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return short(s.Value)
			}
		}
	}
	return "dev"
})

// Commit returns the short revision the binary was built from, falling
// back to the toolchain's VCS stamp and finally "dev" (local builds,
// `go test`).
func Commit() string {
	return resolve()
}

// String returns "pagesmith/<commit>" for logs and health output.
func String() string {
	return "pagesmith/" + Commit()
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}
