// Package configs embeds the configuration templates written by
// 'annodex config init'.
//
// Templates:
//   - project-config.example.yaml: .annodex.yaml in the project root
//     (output paths, dependencies, classpath entries)
//   - user-config.example.yaml: ~/.config/annodex/config.yaml
//     (bucket credentials, watch tuning, log level)
//
// Both are parsed by internal/config, so every key they show must stay
// a valid Config field.
package configs

import _ "embed"

// UserConfigTemplate is written by 'annodex config init --user'.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by 'annodex config init'.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
