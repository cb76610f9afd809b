package handler

import (
	"CatalogAuth/internal/logging"
	"CatalogAuth/internal/model"
	"CatalogAuth/internal/ports"
	"CatalogAuth/internal/service"
	"context"
	"encoding/json"
	"errors"
	"github.com/go-chi/chi/v5"
	"io"
	"net/http"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type AuthenticationHandler struct {
	authority ports.SessionAuthority
	store     pinger
	cookies   CookiePolicy
	log       logging.Logger
	timeout   time.Duration
	backend   string
}

// LoginRequest содержит учетные данные администратора
// swagger:model
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshTokenRequest содержит refresh токен в json формате
// swagger:model
type RefreshTokenRequest struct {
	// Refresh токен
	// example: eyJhbGciOiJIUzUxMiIsInR5cCI6IkpXVCJ9...
	RefreshToken string `json:"refreshToken"`
}

// LogoutResponse содержит строку с сообщением
// swagger:model
type LogoutResponse struct {
	// Сообщение о результате операции
	// example: Logged out successfully
	Message string `json:"message"`
}

type UserResponse struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// AuthStatusResponse описывает состояние сессии
// swagger:model
type AuthStatusResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *UserResponse `json:"user"`
}

type DBStatusResponse struct {
	OK        bool   `json:"ok"`
	Connected bool   `json:"connected"`
	Backend   string `json:"backend"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewAuthenticationHandler(authority ports.SessionAuthority, store pinger, cookies CookiePolicy, log logging.Logger, timeout time.Duration, backend string) *AuthenticationHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AuthenticationHandler{
		authority: authority,
		store:     store,
		cookies:   cookies,
		log:       log,
		timeout:   timeout,
		backend:   backend,
	}
}

// Mount registers the auth routes; requireSession guards the protected ones.
func (handler *AuthenticationHandler) Mount(router chi.Router, requireSession func(http.Handler) http.Handler) {
	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", handler.Login)
		r.Post("/refresh", handler.Refresh)
		r.Post("/logout", handler.Logout)
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/me", handler.Me)
		})
	})
	router.Get("/api/db-status", handler.DBStatus)
}

// Login выдает пару токенов администратору
// @Summary Вход
// @Description Проверяет учетные данные и выдает пару JWT-токенов, дублируя их в cookies. Пример запроса: POST /api/auth/login {"username": "admin", "password": "..."}
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Учетные данные"
// @Success 200 {object} model.TokensPair "успешный вход"
// @Failure 400 {object} ErrorResponse "неверный json или пустые поля"
// @Failure 401 {object} ErrorResponse "неверные учетные данные"
// @Failure 500 {object} ErrorResponse "хранилище недоступно"
// @Router /api/auth/login [post]
func (handler *AuthenticationHandler) Login(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), handler.timeout)
	defer cancel()

	var loginRequest LoginRequest
	if err := json.NewDecoder(request.Body).Decode(&loginRequest); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid_json")
		return
	}

	tokensPair, err := handler.authority.Login(ctx, loginRequest.Username, loginRequest.Password)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrMissingCredentials):
		writeError(writer, http.StatusBadRequest, "missing_credentials")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(writer, http.StatusUnauthorized, "invalid_credentials")
		return
	default:
		handler.log.Error(ctx, "ошибка входа", "error", err)
		writeError(writer, http.StatusInternalServerError, "internal_error")
		return
	}

	handler.cookies.SetSession(writer, tokensPair)
	writeJSON(writer, http.StatusOK, tokensPair)
}

// Refresh обновляет access и refresh токены
// @Summary Обновление токенов
// @Description Обменивает refresh-токен из cookie (или из тела запроса) на новую пару. Старый refresh-токен после этого недействителен.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest false "Refresh токен, если cookie отсутствует"
// @Success 200 {object} model.TokensPair "успешное обновление токенов"
// @Failure 400 {object} ErrorResponse "refresh токен отсутствует"
// @Failure 401 {object} ErrorResponse "токен недействителен или просрочен"
// @Failure 500 {object} ErrorResponse "хранилище недоступно"
// @Router /api/auth/refresh [post]
func (handler *AuthenticationHandler) Refresh(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), handler.timeout)
	defer cancel()

	refreshToken := refreshTokenFrom(request)
	if refreshToken == "" {
		writeError(writer, http.StatusBadRequest, "missing_token")
		return
	}

	tokensPair, err := handler.authority.Refresh(ctx, refreshToken)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidOrExpiredToken), errors.Is(err, service.ErrMissingToken):
		writeError(writer, http.StatusUnauthorized, "invalid_or_expired_token")
		return
	default:
		handler.log.Error(ctx, "не удалось обновить токены", "error", err)
		writeError(writer, http.StatusInternalServerError, "internal_error")
		return
	}

	handler.cookies.SetSession(writer, tokensPair)
	writeJSON(writer, http.StatusOK, tokensPair)
}

// Logout godoc
// @Summary Выход из аккаунта
// @Description Отзывает refresh-токен, если он есть, и всегда очищает cookies сессии.
// @Tags Authentication
// @Produce json
// @Success 200 {object} LogoutResponse "Успешный выход"
// @Router /api/auth/logout [post]
func (handler *AuthenticationHandler) Logout(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), handler.timeout)
	defer cancel()

	if refreshToken := refreshTokenFrom(request); refreshToken != "" {
		revoked := handler.authority.Revoke(ctx, refreshToken)
		handler.log.Debug(ctx, "logout", "revoked", revoked)
	}

	handler.cookies.ClearSession(writer)
	writeJSON(writer, http.StatusOK, &LogoutResponse{Message: "Logged out successfully"})
}

// Me godoc
// @Summary Состояние сессии
// @Description Возвращает текущего пользователя. Просроченный access токен прозрачно обновляется по refresh cookie.
// @Tags Authentication
// @Produce json
// @Param Authorization header string false "Bearer токен" default(Bearer <access_token>)
// @Success 200 {object} AuthStatusResponse
// @Failure 401 {object} AuthStatusResponse
// @Router /api/auth/me [get]
func (handler *AuthenticationHandler) Me(writer http.ResponseWriter, request *http.Request) {
	claims, ok := ClaimsFrom(request.Context())
	if !ok {
		writeJSON(writer, http.StatusUnauthorized, &AuthStatusResponse{})
		return
	}

	writeJSON(writer, http.StatusOK, &AuthStatusResponse{
		Authenticated: true,
		User:          &UserResponse{Username: claims.Username, Admin: claims.Admin},
	})
}

// DBStatus reports whether the record store answers a ping.
func (handler *AuthenticationHandler) DBStatus(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), handler.timeout)
	defer cancel()

	if err := handler.store.Ping(ctx); err != nil {
		handler.log.Error(ctx, "хранилище недоступно", "backend", handler.backend, "error", err)
		writeJSON(writer, http.StatusInternalServerError, &DBStatusResponse{Backend: handler.backend})
		return
	}
	writeJSON(writer, http.StatusOK, &DBStatusResponse{OK: true, Connected: true, Backend: handler.backend})
}

// refreshTokenFrom prefers the refresh cookie and falls back to a JSON body.
func refreshTokenFrom(request *http.Request) string {
	if cookie, err := request.Cookie(model.RefreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var body RefreshTokenRequest
	if err := json.NewDecoder(io.LimitReader(request.Body, 16<<10)).Decode(&body); err != nil {
		return ""
	}
	return body.RefreshToken
}

func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

func writeError(writer http.ResponseWriter, status int, code string) {
	writeJSON(writer, status, &ErrorResponse{Error: code})
}
