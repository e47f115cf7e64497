// Package validation provides the constructor-time checks used by taskpool
// packages, so that every rejected value surfaces as an
// *errors.ValidationError with a consistent message and hint.
package validation
