package process

import (
	"strings"
)

// Environment variables carrying the launch description to a child.
const (
	envPrefix     = "PROCLIFE_CHILD_"
	envEntry      = envPrefix + "ENTRY"
	envPipes      = envPrefix + "PIPES"
	envFiles      = envPrefix + "FILES"
	envRunID      = envPrefix + "RUN_ID"
	envLogLevel   = envPrefix + "LOG_LEVEL"
	envLogFormat  = envPrefix + "LOG_FORMAT"
	envPipePolicy = envPrefix + "PIPE_POLICY"
)

// firstInheritedFD is the child descriptor of the first inherited pipe
// or shared file; 0, 1 and 2 are the standard streams.
const firstInheritedFD = 3

// Child log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

const (
	pipePolicyStrict  = "strict"
	pipePolicyLenient = "lenient"
)

// withoutChildEnv drops launch variables inherited from our own parent
func withoutChildEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, envPrefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
