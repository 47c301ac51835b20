// Package logger provides structured logging for the collection pipeline,
// backed by zerolog. A process-wide logger is configured once via Initialize
// and retrieved with GetLogger; components attach context with WithFields.
package logger
