package httpserver

import (
	"encoding/json"
	"io"
)

// maxRequestBody caps request bodies; withdrawal requests are a few hundred
// bytes at most.
const maxRequestBody = 64 << 10

// decodeJSON decodes a JSON request body into the destination struct.
// Unknown fields are rejected so typos fail loudly instead of settling
// with defaults. The reader is closed after decoding.
func decodeJSON(r io.ReadCloser, dest any) error {
	defer r.Close()
	decoder := json.NewDecoder(io.LimitReader(r, maxRequestBody))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
