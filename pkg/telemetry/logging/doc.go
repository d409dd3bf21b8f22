// Package logging configures structured logging for SmolRouter.
//
// # Overview
//
// The package wraps log/slog. It provides JSON and text output, level
// parsing and a redacting handler that masks upstream credentials:
//
//   - OpenAI style keys: sk-abc123... becomes sk-***
//   - Google API keys: AIzaSy... becomes AIza***
//   - Bearer tokens: "Bearer xyz" becomes "Bearer ***"
//   - key= query parameters in URLs
//   - the whole value of attributes named api_key, authorization, token
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	if err != nil {
//	    return err
//	}
//	logger.SetDefault()
//
// Packages then log through slog.Default(), tagged with their component:
//
//	log := slog.Default().With("component", "quota.sweeper")
//	log.Info("sweep finished", "restored", n)
package logging
