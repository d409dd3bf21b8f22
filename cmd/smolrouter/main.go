// SmolRouter is a small request-routing gateway for LLM traffic.
//
// It accepts OpenAI and Ollama API requests and forwards each one to an
// upstream chosen by source host and model name, with:
//   - ordered routing rules and model aliases with failover
//   - OpenAI, Ollama and Google GenAI upstreams
//   - API key pools with quota tracking and rotation
//   - think-block and JSON-fence stripping on the response path
//   - a SQLite request log
//
// Usage:
//
//	# Start the router
//	smolrouter run --config config.yaml
//
//	# Check a configuration and probe its providers
//	smolrouter validate --probe
//
//	# Show where a model would be sent
//	smolrouter route --model coder --host 10.0.0.5
package main

import (
	// Embedded zone data for quota reset timezones on minimal images.
	_ "time/tzdata"
)

func main() {
	Execute()
}
