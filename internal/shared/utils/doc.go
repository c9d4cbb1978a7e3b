// Package utils validates HTTP request input before it reaches the
// session and tool registries.
package utils
