// Package logging provides structured logging with credential redaction.
//
// The package wraps log/slog. Loggers produced here add task, probe, trace
// and span identifiers found in the context and, when RedactPII is enabled,
// scrub bearer tokens, basic credentials, URL userinfo and secret query
// parameters from attribute values.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//
//	logger.Info("probe finished",
//	    "url", "https://user:pw@example.com/?token=abc", // logged as https://***@example.com/?token=***
//	    "status", 200,
//	)
//
//	ctx = logging.WithTaskID(ctx, id.String())
//	logger.InfoContext(ctx, "captured") // includes task_id
//
// Components take a *slog.Logger; pass logger.Slog() or logger.Component(name).
package logging
