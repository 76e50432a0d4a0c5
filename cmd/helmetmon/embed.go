package main

import _ "embed"

// embeddedConfig holds the YAML configuration embedded at build time.
// Deployments overwrite embed_config.yaml with site settings before
// compiling; an empty file means built-in defaults.
//
//go:embed embed_config.yaml
var embeddedConfig []byte
