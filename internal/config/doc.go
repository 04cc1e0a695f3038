// Package config defines the validated configuration model for a build run
// and its HCL loader. The model is produced once at startup and is immutable
// afterwards; every other package consumes it read-only.
package config
