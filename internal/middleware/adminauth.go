package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// adminTokenHeader は管理者トークンを渡すHTTPヘッダー名。
const adminTokenHeader = "X-Admin-Token"

// NewAdminAuthMiddleware は管理者トークンを検証するミドルウェアを返す。
// トークン不一致のリクエストはオークション正本に触れる前に401で拒否される。
// 比較はタイミング攻撃を避けるため定数時間で行う。
func NewAdminAuthMiddleware(adminToken string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(adminTokenHeader)

			if adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				slog.Warn("admin authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("client_ip", ClientIP(r)),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"code":     "UNAUTHORIZED",
					"message":  "管理者認証が必要です。",
					"category": "auth",
					"action":   "正しい管理者トークンを指定してください。",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
