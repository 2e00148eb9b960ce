package imagestore

import "text2image-service/internal/upstream"

func rawOK(body string) *upstream.RawResponse {
	return &upstream.RawResponse{StatusCode: 200, Body: []byte(body)}
}
