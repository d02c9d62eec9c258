// Package cliconfig provides configuration types and loading for the wmjp CLI.
//
// It implements a layered configuration system with the following precedence
// (highest to lowest):
//
//  1. Command-line flags
//  2. Environment variables (WMJP_* prefix)
//  3. Local config file (.wmjprc.yaml in the current directory), or the
//     file named by --config / WMJP_CONFIG
//  4. Global config file ($XDG_CONFIG_HOME/wmjp/config.yaml)
//  5. Default values
//
// The source of every value is tracked so `wmjp config` can show where each
// setting came from.
package cliconfig
