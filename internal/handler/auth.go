package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=4,max=20"`
	Password string `json:"password" validate:"required,min=6,max=20"`
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"omitempty,email,max=100"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Company  string `json:"company" validate:"omitempty,max=100"`
}

// LoginRequest is the body of POST /api/auth/login. Username may also be a phone number or email.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserInfo is the public part of a user returned on login
type UserInfo struct {
	ID           uint   `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Company      string `json:"company"`
	IsAdmin      bool   `json:"is_admin"`
	Avatar       string `json:"avatar"`
	WechatQRCode string `json:"wechat_qrcode"`
}

// TokenResponse is returned by login, register and refresh
type TokenResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in"`
	UserInfo     *UserInfo `json:"user_info,omitempty"`
}

func newUserInfo(u *model.User) *UserInfo {
	return &UserInfo{
		ID:           u.ID,
		Username:     u.Username,
		Name:         u.Name,
		Company:      u.Company,
		IsAdmin:      u.IsAdmin,
		Avatar:       u.Avatar,
		WechatQRCode: u.WechatQRCode,
	}
}

// Register creates a seller account and logs it in
func (h *Handler) Register(c echo.Context) error {
	log := logger.FromContext(c)

	var req RegisterRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	db := h.db.WithContext(c.Request().Context())
	if msg, err := uniqueUserFields(db, 0, req.Username, req.Email, req.Phone); err != nil {
		log.Error("Failed to check user uniqueness", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	} else if msg != "" {
		log.Warn("Registration conflict", zap.String("username", req.Username), zap.String("reason", msg))
		return response.Fail(c, http.StatusConflict, msg)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	now := h.now()
	user := model.User{
		Username:      req.Username,
		Password:      string(hashed),
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Company:       req.Company,
		Status:        model.UserStatusActive,
		LastLoginTime: &now,
	}

	var tokens *TokenResponse
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		var err error
		tokens, err = h.issueTokens(tx, &user)
		if err != nil {
			return err
		}
		return recordAccess(tx, c, user.ID, "register", nil)
	})
	if err != nil {
		log.Error("Failed to register user", zap.String("username", req.Username), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	prometheus.RecordRegister()
	log.Info("User registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return response.Created(c, "registration successful", tokens)
}

// Login authenticates by username, phone or email
func (h *Handler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordLogin()

	var req LoginRequest
	if ok, err := bind(c, log, &req); !ok {
		prometheus.RecordAuthError("invalid_request")
		return err
	}

	db := h.db.WithContext(c.Request().Context())
	defer prometheus.TrackDBOperation("query")(time.Now())

	var user model.User
	err := db.Where("username = ? OR (phone <> '' AND phone = ?) OR (email <> '' AND email = ?)",
		req.Username, req.Username, req.Username).First(&user).Error
	if err != nil {
		if isNotFound(err) {
			log.Warn("Login for unknown user", zap.String("username", req.Username))
			prometheus.RecordAuthError("user_not_found")
			return response.Fail(c, http.StatusUnauthorized, "invalid username or password")
		}
		log.Error("Failed to look up user", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	// the inactive status is only revealed to callers who know the password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.Uint("user_id", user.ID))
		prometheus.RecordAuthError("invalid_password")
		return response.Fail(c, http.StatusUnauthorized, "invalid username or password")
	}
	if !user.IsActive() {
		log.Warn("Login of inactive user", zap.Uint("user_id", user.ID))
		prometheus.RecordAuthError("inactive_user")
		return response.Fail(c, http.StatusForbidden, "user is inactive")
	}

	var tokens *TokenResponse
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		if tokens, err = h.issueTokens(tx, &user); err != nil {
			return err
		}
		if err := tx.Model(&model.User{}).Where("id = ?", user.ID).Update("last_login_time", h.now()).Error; err != nil {
			return err
		}
		return recordAccess(tx, c, user.ID, "login", nil)
	})
	if err != nil {
		log.Error("Failed to complete login", zap.Uint("user_id", user.ID), zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	log.Info("User logged in", zap.Uint("user_id", user.ID), zap.Bool("is_admin", user.IsAdmin))
	return response.OK(c, "login successful", tokens)
}

// Refresh exchanges a refresh token that is still within its idle window for a new access token
func (h *Handler) Refresh(c echo.Context) error {
	log := logger.FromContext(c)

	var req RefreshRequest
	if ok, err := bind(c, log, &req); !ok {
		return err
	}

	db := h.db.WithContext(c.Request().Context())
	now := h.now()

	var rt model.RefreshToken
	if err := db.Where("token = ?", req.RefreshToken).First(&rt).Error; err != nil {
		if isNotFound(err) {
			prometheus.RecordAuthError("invalid_refresh_token")
			return response.Fail(c, http.StatusUnauthorized, "refresh token is invalid or expired")
		}
		log.Error("Failed to look up refresh token", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if !rt.IsValid(h.cfg.JWT.RefreshIdleTimeout, now) {
		log.Warn("Expired or revoked refresh token", zap.Uint("user_id", rt.UserID))
		prometheus.RecordAuthError("invalid_refresh_token")
		return response.Fail(c, http.StatusUnauthorized, "refresh token is invalid or expired")
	}

	var user model.User
	if err := db.First(&user, rt.UserID).Error; err != nil {
		if isNotFound(err) {
			return response.Fail(c, http.StatusUnauthorized, "refresh token is invalid or expired")
		}
		log.Error("Failed to load user", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if !user.IsActive() {
		log.Warn("Refresh by inactive user", zap.Uint("user_id", user.ID))
		return response.Fail(c, http.StatusForbidden, "user is inactive")
	}

	token, err := h.jwt.GenerateToken(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.RefreshToken{}).Where("id = ?", rt.ID).Updates(map[string]interface{}{
			"last_accessed": now,
			"access_count":  gorm.Expr("access_count + 1"),
		}).Error; err != nil {
			return err
		}
		return recordAccess(tx, c, user.ID, "refresh", nil)
	})
	if err != nil {
		log.Error("Failed to touch refresh token", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	log.Info("Access token refreshed", zap.Uint("user_id", user.ID))
	return response.OK(c, "token refreshed", TokenResponse{
		Token:     token,
		ExpiresIn: int64(h.jwt.ExpiresIn() / time.Second),
	})
}

// Logout revokes the presented access token until it expires, and the refresh token if given
func (h *Handler) Logout(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	claims, ok := middleware.GetClaims(c)
	if !ok {
		return response.Fail(c, http.StatusUnauthorized, "invalid token")
	}

	var req LogoutRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid logout body", zap.Error(err))
		return response.Fail(c, http.StatusBadRequest, "invalid request data")
	}

	if err := h.revoked.Revoke(ctx, claims.ID, claims.TTL(h.now())); err != nil {
		log.Error("Failed to revoke token", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	prometheus.RecordTokenRevoked()

	query := h.db.WithContext(ctx).Model(&model.RefreshToken{}).Where("user_id = ?", claims.UserID)
	if req.RefreshToken != "" {
		query = query.Where("token = ?", req.RefreshToken)
	}
	if err := query.Update("revoked", true).Error; err != nil {
		log.Warn("Failed to revoke refresh tokens", zap.Error(err))
	}

	log.Info("User logged out", zap.Uint("user_id", claims.UserID))
	return response.OK(c, "logout successful", echo.Map{"user_id": claims.UserID})
}

// issueTokens signs an access token and stores a fresh refresh token
func (h *Handler) issueTokens(tx *gorm.DB, user *model.User) (*TokenResponse, error) {
	token, err := h.jwt.GenerateToken(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	rt := model.RefreshToken{UserID: user.ID, LastAccessed: h.now()}
	if err := tx.Create(&rt).Error; err != nil {
		return nil, err
	}

	return &TokenResponse{
		Token:        token,
		RefreshToken: rt.Token,
		ExpiresIn:    int64(h.jwt.ExpiresIn() / time.Second),
		UserInfo:     newUserInfo(user),
	}, nil
}

// recordAccess appends an access log entry for an authentication event
func recordAccess(tx *gorm.DB, c echo.Context, userID uint, action string, details map[string]interface{}) error {
	entry := model.AccessLog{
		UserID:    userID,
		Action:    action,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return err
		}
		entry.Details = datatypes.JSON(raw)
	}
	return tx.Create(&entry).Error
}

// uniqueUserFields returns a conflict message when username, email or phone
// already belong to a user other than exceptID
func uniqueUserFields(db *gorm.DB, exceptID uint, username, email, phone string) (string, error) {
	checks := []struct {
		column, value, msg string
	}{
		{"username", username, "username is already taken"},
		{"email", email, "email is already in use"},
		{"phone", phone, "phone is already in use"},
	}
	for _, chk := range checks {
		if chk.value == "" {
			continue
		}
		var n int64
		if err := db.Model(&model.User{}).Where(chk.column+" = ? AND id <> ?", chk.value, exceptID).Count(&n).Error; err != nil {
			return "", err
		}
		if n > 0 {
			return chk.msg, nil
		}
	}
	return "", nil
}
