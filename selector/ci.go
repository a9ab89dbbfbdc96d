package selector

// ciPlatform declares, for one CI platform, which environment
// variables carry the base and head refs for a diff. Keeping this as
// data rather than branching logic means adding a platform is a one-line
// addition, not a new code path.
type ciPlatform struct {
	name    string
	baseVar string
	headVar string
	// presenceVar is set (to any non-empty value) only when running on
	// this platform; used to pick the right row before reading baseVar/headVar.
	presenceVar string
}

var ciPlatforms = []ciPlatform{
	{name: "github_pull_request", presenceVar: "GITHUB_BASE_REF", baseVar: "GITHUB_BASE_REF", headVar: "GITHUB_SHA"},
	{name: "github_push", presenceVar: "GITHUB_EVENT_BEFORE", baseVar: "GITHUB_EVENT_BEFORE", headVar: "GITHUB_SHA"},
	{name: "gitlab_merge_request", presenceVar: "CI_MERGE_REQUEST_TARGET_BRANCH_NAME", baseVar: "CI_MERGE_REQUEST_TARGET_BRANCH_NAME", headVar: "CI_COMMIT_SHA"},
	{name: "gitlab_push", presenceVar: "CI_COMMIT_BEFORE_SHA", baseVar: "CI_COMMIT_BEFORE_SHA", headVar: "CI_COMMIT_SHA"},
	{name: "circleci", presenceVar: "CIRCLE_SHA1", baseVar: "CIRCLE_PREVIOUS_BUILD_NUM", headVar: "CIRCLE_SHA1"},
}

// DetectCIRefs inspects a map of environment variables (the caller
// passes os.Environ() turned into a map, or a test fixture) and
// returns the base/head refs for the first recognized platform. An
// unrecognized environment returns ok=false, signaling the caller to
// fall back to a full scan.
func DetectCIRefs(env map[string]string) (base, head string, ok bool) {
	for _, p := range ciPlatforms {
		if v, present := env[p.presenceVar]; present && v != "" {
			b, bok := env[p.baseVar]
			h, hok := env[p.headVar]
			if bok && hok && b != "" && h != "" {
				return b, h, true
			}
		}
	}
	return "", "", false
}
