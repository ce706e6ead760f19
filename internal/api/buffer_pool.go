package api

import (
	"bytes"
	"encoding/json"
	"sync"
)

// bufferPool reuses byte buffers for encoded request bodies
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// getBuffer retrieves a reset buffer from the pool.
// Caller must call putBuffer() when done to return it to the pool.
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns a buffer to the pool for reuse.
// Questions can be pasted documents, so oversized buffers are dropped.
func putBuffer(buf *bytes.Buffer) {
	const maxBufferSize = 64 * 1024
	if buf.Cap() <= maxBufferSize {
		bufferPool.Put(buf)
	}
}

// encodeRequest writes req as JSON into buf.
// HTML escaping is off so the question reaches the service byte for byte.
func encodeRequest(buf *bytes.Buffer, req ChatCompletionRequest) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return enc.Encode(req)
}
