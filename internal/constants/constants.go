// Package constants holds small shared defaults referenced from more
// than one package, kept separate so call sites don't duplicate magic
// strings.
package constants

// ConfigDirName is the directory name under the user's config root
// (~/.config/<ConfigDirName>) where the kernel's TOML config and any
// AGENTS.md instructions are looked up.
const ConfigDirName = "symbrt"

// AgentsInstructionsFile is the filename searched for up the directory
// tree and in the user config directory to build a sub-agent's
// additional system-prompt instructions.
const AgentsInstructionsFile = "AGENTS.md"

// DelegateToolName is the name reserved for the tool a root agent uses
// to spawn a sub-agent; it is always filtered out of a sub-agent's own
// tool list so a sub-agent cannot recurse into another one.
const DelegateToolName = "delegate"

// DefaultConfigFileName is the config file name cmd/symbrt-demo looks
// for when no -config path is given; config.Load itself requires an
// explicit path.
const DefaultConfigFileName = "config.toml"
