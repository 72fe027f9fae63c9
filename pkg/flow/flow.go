// Package flow handles parsing and representation of YAML flow files.
package flow

// Flow represents a parsed flow file.
type Flow struct {
	SourcePath string // Path to the source file
	Config     Config // Flow configuration (url, tags, etc.)
	Steps      []Step // Steps to execute
}

// Config represents flow-level configuration.
type Config struct {
	URL            string            `yaml:"url"` // Page opened before the first step, relative to the base URL
	Name           string            `yaml:"name"`
	Tags           []string          `yaml:"tags"`
	Env            map[string]string `yaml:"env"`
	Timeout        int               `yaml:"timeout"` // Default element wait in ms
	OnFlowStart    []Step            `yaml:"-"`       // Lifecycle hook: runs before commands
	OnFlowComplete []Step            `yaml:"-"`       // Lifecycle hook: runs after commands
}
