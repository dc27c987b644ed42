// Package policy validates infrastructure intents against Rego safety
// policies. The built-in policies block destructive intents; operators
// can load additional .rego files from disk.
package policy
