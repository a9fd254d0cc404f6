package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"neurogpt/backend/internal/account"
)

const (
	accessTokenTTL = 7 * 24 * time.Hour
	resetTokenTTL  = time.Hour

	purposePasswordReset = "password_reset"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (a *App) register(c *gin.Context) {
	var payload registerRequest
	if !mustJSON(c, &payload) {
		return
	}
	username := strings.TrimSpace(payload.Username)
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if username == "" || email == "" || payload.Password == "" {
		writeError(c, http.StatusBadRequest, "username, email and password are required")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	user, err := a.store.CreateUser(c.Request.Context(), username, email, string(hashed))
	if errors.Is(err, account.ErrDuplicate) {
		writeError(c, http.StatusConflict, "Email or username already exists")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	token, err := a.signAccessToken(user)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         userMap(user),
	})
}

func (a *App) login(c *gin.Context) {
	var payload loginRequest
	if !mustJSON(c, &payload) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	user, err := a.store.UserByEmail(c.Request.Context(), email)
	if errors.Is(err, account.ErrNotFound) {
		writeError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)) != nil {
		writeError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := a.signAccessToken(user)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         userMap(user),
	})
}

func (a *App) forgotPassword(c *gin.Context) {
	var payload forgotPasswordRequest
	if !mustJSON(c, &payload) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	user, err := a.store.UserByEmail(c.Request.Context(), email)
	if errors.Is(err, account.ErrNotFound) {
		writeError(c, http.StatusNotFound, "Email not found.")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	token, err := a.signResetToken(user)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to issue reset token")
		return
	}
	resetURL := fmt.Sprintf("https://%s/reset-password/%s", c.Request.Host, token)
	if err := a.mailer.Send(
		user.Email,
		"Reset Your Password",
		"Click the link to reset your password: "+resetURL,
	); err != nil {
		log.Printf("reset mail to %s failed: %v", user.Email, err)
		writeError(c, http.StatusInternalServerError, "Failed to send reset email")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "Reset link sent to your email."})
}

func (a *App) resetPassword(c *gin.Context) {
	var payload resetPasswordRequest
	if !mustJSON(c, &payload) {
		return
	}
	if payload.Password == "" {
		writeError(c, http.StatusBadRequest, "password is required")
		return
	}

	userID, err := a.parseResetToken(payload.Token)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Invalid or expired link")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	if err := a.store.UpdatePassword(c.Request.Context(), userID, string(hashed)); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid or expired link")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "Password updated."})
}

func (a *App) getMe(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	c.JSON(http.StatusOK, userMap(user))
}

func (a *App) signAccessToken(user account.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"email":    user.Email,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(accessTokenTTL).Unix(),
	}
	if a.cfg.JWTAudience != "" {
		claims["aud"] = a.cfg.JWTAudience
	}
	if a.cfg.JWTIssuer != "" {
		claims["iss"] = a.cfg.JWTIssuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.JWTSecret))
}

func (a *App) signResetToken(user account.User) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     user.ID,
		"purpose": purposePasswordReset,
		"iat":     now.Unix(),
		"exp":     now.Add(resetTokenTTL).Unix(),
	})
	return token.SignedString([]byte(a.cfg.JWTSecret))
}

func (a *App) parseResetToken(tokenString string) (string, error) {
	token, err := jwt.Parse(strings.TrimSpace(tokenString), func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid reset token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid reset token payload")
	}
	if purpose, _ := claims["purpose"].(string); purpose != purposePasswordReset {
		return "", errors.New("token is not a reset token")
	}
	sub, _ := claims["sub"].(string)
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "", errors.New("reset token subject missing")
	}
	return sub, nil
}

func userMap(user account.User) gin.H {
	return gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"subscribed":    user.Subscribed,
		"message_count": user.MessageCount,
	}
}
