package billing

import "fmt"

const (
	rosterPrefix = "roster"

	// DefaultDeployment names the roster key when none is configured.
	DefaultDeployment = "cleancity"
)

// RosterKey is the single storage key holding a deployment's roster blob.
func RosterKey(deployment string) string {
	if deployment == "" {
		deployment = DefaultDeployment
	}
	return fmt.Sprintf("%s/%s", rosterPrefix, deployment)
}
