// Package constants holds the traitlag build identity printed by the version
// command and stamped into every analysis report.
package constants

import "runtime"

// Name is the program name used in CLI output.
const Name = "traitlag"

// Version is the release number followed by the build platform.
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

