// Package version carries the kernel's identity as reported in
// kernel_info replies.
package version

import "fmt"

const (
	// Version is the current version of egret
	Version = "0.1.0"

	// ProtocolVersion is the Jupyter messaging protocol version the
	// kernel implements.
	ProtocolVersion = "5.4"

	// ImplementationName is the kernel implementation name
	ImplementationName = "egret"
)

// Banner returns the startup banner shown by frontends.
func Banner(languageVersion string) string {
	return fmt.Sprintf("Egret %s (R %s)", Version, languageVersion)
}

// UserAgent returns the name/version identifier printed by the
// version command.
func UserAgent() string {
	return ImplementationName + "/" + Version
}
