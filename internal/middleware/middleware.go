package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/referralpay/ledger/internal/types/member"
)

// MemberFinder is the slice of storage the auth middleware needs.
type MemberFinder interface {
	FindMemberByLogin(ctx context.Context, login string) (*member.Member, error)
}

// Claims extends the registered JWT claims with the admin flag set at login.
type Claims struct {
	jwt.RegisteredClaims
	IsAdmin bool `json:"is_admin,omitempty"`
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

func GzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") == "gzip" {
			gzr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(rw, "Failed to create gzip reader", http.StatusBadRequest)
				return
			}
			defer gzr.Close()
			r.Body = io.NopCloser(gzr)
		}

		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			rw.Header().Set("Content-Encoding", "gzip")
			gzw := gzip.NewWriter(rw)
			defer gzw.Close()

			gzrw := gzipResponseWriter{Writer: gzw, ResponseWriter: rw}
			next.ServeHTTP(gzrw, r)
		} else {
			next.ServeHTTP(rw, r)
		}
	})
}

// HashHandler verifies and signs request/response bodies with HMAC-SHA256
// when a key is configured.
func HashHandler(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recvSig := r.Header.Get("HashSHA256")
			if recvSig != "" {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, "Failed to read request body", http.StatusBadRequest)
					return
				}

				mac := hmac.New(sha256.New, []byte(key))
				mac.Write(body)
				expected := mac.Sum(nil)
				recvBytes, err := hex.DecodeString(recvSig)
				if err != nil || !hmac.Equal(recvBytes, expected) {
					http.Error(w, "Bad Request", http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			buf := &bytes.Buffer{}
			hw := &hashResponseWriter{
				ResponseWriter: w,
				header:         make(http.Header),
				buffer:         buf,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(hw, r)

			mac := hmac.New(sha256.New, []byte(key))
			mac.Write(buf.Bytes())
			for k, vals := range hw.header {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
			w.Header().Set("HashSHA256", hex.EncodeToString(mac.Sum(nil)))
			w.WriteHeader(hw.statusCode)
			w.Write(buf.Bytes())
		})
	}
}

type ctxKeyMemberID struct{}
type ctxKeyIsAdmin struct{}

func JWTMiddleware(secret []byte, repo MemberFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimPrefix(auth, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			m, err := repo.FindMemberByLogin(r.Context(), claims.Subject)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if m.Status == member.StatusDeleted {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyMemberID{}, m.ID)
			ctx = context.WithValue(ctx, ctxKeyIsAdmin{}, claims.IsAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly rejects requests whose token does not carry the admin claim.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if admin, _ := r.Context().Value(ctxKeyIsAdmin{}).(bool); !admin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func MemberIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxKeyMemberID{}).(int64)
	return id
}

func ContextWithMemberID(ctx context.Context, memberID int64) context.Context {
	return context.WithValue(ctx, ctxKeyMemberID{}, memberID)
}

func ContextWithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyIsAdmin{}, true)
}

type hashResponseWriter struct {
	http.ResponseWriter
	header     http.Header
	buffer     *bytes.Buffer
	statusCode int
}

func (h *hashResponseWriter) Header() http.Header         { return h.header }
func (h *hashResponseWriter) WriteHeader(status int)      { h.statusCode = status }
func (h *hashResponseWriter) Write(b []byte) (int, error) { return h.buffer.Write(b) }
