package api

import (
	"context"
	"net/http"

	"rescue-link/internal/shared/jwt"
	"rescue-link/internal/shared/util"
)

type contextKey string

const civilianIDKey contextKey = "civilian_id"

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := jwt.ParseToken(r.Header.Get("Authorization"))
		if err != nil || claims.CivilianID == 0 {
			util.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), civilianIDKey, claims.CivilianID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func civilianFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(civilianIDKey).(int64)
	return id, ok && id != 0
}
