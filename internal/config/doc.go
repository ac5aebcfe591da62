// Package config loads the JSON runtime configuration. Every field has a
// default, so an empty {} file (or no file at all) starts a working service;
// secrets are read from the environment variables named by the *_env fields.
package config
