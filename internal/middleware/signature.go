package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

// SignatureHeader carries the provider's HMAC of the raw request body.
const SignatureHeader = "x-hub-signature-256"

// VerifySignature checks an "sha256=<hex>" header value against the
// HMAC-SHA256 of body under secret. The digest comparison is
// constant-time; the returned error says which check failed.
func VerifySignature(secret, body []byte, header string) error {
	if header == "" {
		return domain.ErrMissingSignature
	}

	alg, digest, found := strings.Cut(header, "=")
	if !found {
		return domain.ErrMalformedSignature
	}
	if alg != "sha256" {
		return domain.ErrUnsupportedAlgorithm
	}

	want, err := hex.DecodeString(digest)
	if err != nil {
		return domain.ErrMalformedSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// SignatureAuth rejects requests whose body does not carry a valid
// provider signature. The body is buffered and restored so the next
// handler can read it again. With an empty secret the check is
// skipped entirely (local development without provider credentials).
func SignatureAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeSignatureError(w, http.StatusBadRequest, "bad_request", "unable to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if verr := VerifySignature(secret, body, r.Header.Get(SignatureHeader)); verr != nil {
				status, kind := signatureStatus(verr)
				writeSignatureError(w, status, kind, verr.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// signatureStatus maps verification failures to HTTP: absent or wrong
// digests are auth failures, unparseable headers are client errors.
func signatureStatus(err error) (int, string) {
	switch err {
	case domain.ErrMissingSignature, domain.ErrInvalidSignature:
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusBadRequest, "bad_request"
	}
}

func writeSignatureError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
