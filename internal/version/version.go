// Package version holds build metadata for the gencheck CLI. The variables
// can be overridden at build time via -ldflags.
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fatih/color"
)

var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// GitMessage is an optional git commit message.
	GitMessage = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)
)

// Colored renders Version with major, minor and patch in distinct colours.
// Anything after the patch number is kept as is.
func Colored() string {
	parts := strings.SplitN(Version, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	return versionMajorColor.Sprint(parts[0]) + "." +
		versionMinorColor.Sprint(parts[1]) + "." +
		versionPatchColor.Sprint(parts[2])
}

// Info renders the full version banner.
func Info(colored bool) string {
	v := Version
	if colored {
		v = Colored()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "gencheck %s (%s %s/%s)\n", v, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if GitCommit != "" {
		fmt.Fprintf(&sb, "commit: %s", GitCommit)
		if GitMessage != "" {
			fmt.Fprintf(&sb, " %s", GitMessage)
		}
		sb.WriteByte('\n')
	}
	if BuildDate != "" {
		fmt.Fprintf(&sb, "built:  %s\n", BuildDate)
	}
	return sb.String()
}
