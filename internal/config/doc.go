// Package config loads, normalizes, and validates Podforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads credentials from .env files, and honours
// environment overrides such as PODFORGE_S3_ACCESS_KEY. The Watcher type keeps
// a hot-reloadable snapshot so voice-command phrases, the music volume curve,
// and per-plan ceilings can change without restarting running workers.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
