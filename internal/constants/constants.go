package constants

import "time"

const (
	// AppName prefixes configuration paths, table names and resource tags.
	AppName = "branch-deployer"

	// CleanupSessionName is the STS session name used while tearing down
	// stacks in the application account
	CleanupSessionName = "CleanupChildStacks"

	// BranchPlaceholder is substituted with the branch name in stack name templates
	BranchPlaceholder = "BRANCH_NAME"

	// BranchEnvVar carries the branch name into builds started by the build strategy
	BranchEnvVar = "BRANCH_NAME"
)

// Tag keys applied to resources created for a branch
const (
	TagManagedBy = "ManagedBy"
	TagBranch    = "Branch"
)

// GitHub webhook headers
const (
	HeaderEvent      = "X-GitHub-Event"
	HeaderSignature  = "X-Hub-Signature-256"
	HeaderDeliveryID = "X-GitHub-Delivery"
)

// Provisioning strategies
const (
	StrategyPipeline = "pipeline"
	StrategyBuild    = "build"
)

// LockTTL bounds how long a branch lock is held. Stack deletion must finish
// well inside it.
const LockTTL = time.Hour
