// Package logger provides the component logger used across ytfetch.
//
// Every subsystem logs through its own component so that the CLI can show
// only what the user asked for: the default configuration prints app and
// orchestrator messages at INFO to stderr, while -v enables every
// component at DEBUG.
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentOrchestrator)
//	log.Info("transfer complete", map[string]interface{}{
//		"itag": 22,
//		"path": "/tmp/clip.mp4",
//	})
//
//	// bind fields once for a whole run
//	runLog := log.With(map[string]interface{}{"run": runID})
//	runLog.Debug("selected stream")
package logger
