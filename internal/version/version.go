package version

// Version is the engine version. Set at build time with
// -ldflags "-X github.com/rxtech-lab/argo-alpaca/internal/version.Version=1.2.3".
// "main" marks a development build.
var Version = "v0.3.0"

// GetVersion returns the engine version.
func GetVersion() string {
	return Version
}
