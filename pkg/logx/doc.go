// Package logx wraps zerolog behind a small, service-managed logger.
//
// Components hold a Logger value; the Service owns the sinks (console,
// file) and can swap level/outputs at runtime via Apply() without the
// components noticing.
package logx
