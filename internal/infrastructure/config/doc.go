// Package config loads and validates Box Panel configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by BOXPANEL_* environment variables. The loaded
// Config is passed by value to each component at startup; it is never
// mutated after Load returns.
package config
