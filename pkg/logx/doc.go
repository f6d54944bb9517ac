// Package logx configures voicefront's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable (short timestamp and caller) and file output JSON-structured.
// Loggers derived from a Service pick up level and sink changes on reload.
package logx
