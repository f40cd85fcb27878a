// ABOUTME: Build and product identification
// ABOUTME: Version is overridden at link time with -ldflags "-X"
package version

import "fmt"

// Version is the release, set by the build
var Version = "0.3.0"

const (
	// Product is reported to remote clients and in mDNS TXT records
	Product = "Resonate Playout"

	// Manufacturer is reported alongside Product
	Manufacturer = "Resonate"
)

// String formats the product and version for logs and the CLI
func String() string {
	return fmt.Sprintf("%s %s", Product, Version)
}
