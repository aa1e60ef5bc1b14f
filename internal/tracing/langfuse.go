// Package tracing wires optional Langfuse observability into the model
// call path via eino's global callback mechanism. Every generation and
// embedding request made through eino is traced when enabled.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is used when LANGFUSE_HOST is unset; a locally run Langfuse
// instance listens there out of the box.
const defaultHost = "http://localhost:3000"

// Setup initialises the Langfuse callback handler from LANGFUSE_PUBLIC_KEY,
// LANGFUSE_SECRET_KEY, and LANGFUSE_HOST. Tracing is opt-in: when either key
// is absent the third return value is false and nothing is initialised.
// The returned flush function must run before process exit so buffered
// traces are delivered; commands defer it right after registration.
func Setup() (callbacks.Handler, func(), bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	})

	return handler, flusher, true
}
