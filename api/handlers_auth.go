package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"carhut/adapters/oidc"
	"carhut/models"
)

// SSO登入流程中state與nonce在Redis中的保留時間
const ssoStateTTL = 10 * time.Minute

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID             uuid.UUID   `json:"id"`
	Username       string      `json:"username"`
	Email          string      `json:"email"`
	ProfilePicture string      `json:"profilePicture,omitempty"`
	Role           models.Role `json:"role"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		ProfilePicture: user.ProfilePicture,
		Role:           user.Role,
	}
}

// Register 註冊一般使用者帳號
// (POST /v1/auth/register)
func (impl *ServerImpl) Register(c *gin.Context) {
	const op = "Register"
	var request credentialsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Username and password are required")
		return
	}
	if len(request.Password) < 8 {
		respondError(c, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to hash password, err=%w", op, err))
		return
	}
	user := models.User{
		Username: strings.TrimSpace(request.Username),
		Email:    strings.TrimSpace(request.Email),
		Password: string(hash),
		Role:     models.RoleUser,
	}
	if result := impl.db.WithContext(c.Request.Context()).Create(&user); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			respondError(c, http.StatusConflict, "Username already taken")
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to create user, err=%w", op, result.Error))
		return
	}
	token, err := SignJWT(impl.config.Auth, user.ID, user.Username, user.Role)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"token":   token,
		"user":    toUserResponse(user),
	})
}

// Login 以帳號密碼登入並簽發access token
// (POST /v1/auth/login)
func (impl *ServerImpl) Login(c *gin.Context) {
	const op = "Login"
	var request credentialsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Username and password are required")
		return
	}
	var user models.User
	result := impl.db.WithContext(c.Request.Context()).
		Where("username = ?", request.Username).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(request.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, err := SignJWT(impl.config.Auth, user.ID, user.Username, user.Role)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"user":    toUserResponse(user),
	})
}

// StaffLogin 後台人員登入
// 只有ADMIN角色的後台人員取得的token可以操作管理端點
// (POST /v1/auth/staff/login)
func (impl *ServerImpl) StaffLogin(c *gin.Context) {
	const op = "StaffLogin"
	var request credentialsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Username and password are required")
		return
	}
	var staff models.Staff
	result := impl.db.WithContext(c.Request.Context()).
		Where("username = ?", request.Username).First(&staff)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find staff, err=%w", op, result.Error))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.Password), []byte(request.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	role := models.RoleUser
	if staff.Role == models.StaffRoleAdmin {
		role = models.RoleAdmin
	}
	token, err := SignJWT(impl.config.Auth, staff.ID, staff.Username, role)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"staff": gin.H{
			"id":       staff.ID,
			"username": staff.Username,
			"role":     staff.Role,
		},
	})
}

type staffRegisterRequest struct {
	Username string           `json:"username" binding:"required"`
	Email    string           `json:"email"`
	Password string           `json:"password" binding:"required"`
	Role     models.StaffRole `json:"role"`
}

// StaffRegister 建立後台人員帳號，僅限管理員操作
// (POST /v1/auth/staff/register)
func (impl *ServerImpl) StaffRegister(c *gin.Context) {
	const op = "StaffRegister"
	var request staffRegisterRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Username and password are required")
		return
	}
	if request.Role == "" {
		request.Role = models.StaffRoleModerator
	}
	if request.Role != models.StaffRoleAdmin && request.Role != models.StaffRoleModerator {
		respondError(c, http.StatusBadRequest, "Invalid staff role")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to hash password, err=%w", op, err))
		return
	}
	staff := models.Staff{
		Username: strings.TrimSpace(request.Username),
		Email:    strings.TrimSpace(request.Email),
		Password: string(hash),
		Role:     request.Role,
	}
	if result := impl.db.WithContext(c.Request.Context()).Create(&staff); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			respondError(c, http.StatusConflict, "Username already taken")
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to create staff, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"staff": gin.H{
			"id":       staff.ID,
			"username": staff.Username,
			"role":     staff.Role,
		},
	})
}

// Me 回傳目前登入使用者的資訊
// (GET /v1/auth/me)
func (impl *ServerImpl) Me(c *gin.Context) {
	const op = "Me"
	var user models.User
	result := impl.db.WithContext(c.Request.Context()).
		First(&user, "id = ?", currentUserID(c))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    toUserResponse(user),
	})
}

// SSOLogin 轉導至SSO提供者的登入頁面
// state與nonce先存入Redis，callback時用來驗證回應的合法性
// (GET /v1/auth/sso/:provider/login)
func (impl *ServerImpl) SSOLogin(c *gin.Context) {
	const op = "SSOLogin"
	provider, ok := impl.oidcProviders[c.Param("provider")]
	if !ok {
		respondError(c, http.StatusNotFound, "Unknown SSO provider")
		return
	}
	redirectURL := c.Query("redirectUrl")
	if redirectURL == "" {
		respondError(c, http.StatusBadRequest, "redirectUrl is required")
		return
	}
	state, err := generateID("st")
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Unable to generate state, err=%w", op, err))
		return
	}
	nonce, err := generateID("n")
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Unable to generate nonce, err=%w", op, err))
		return
	}
	if err := impl.ssoStore.Save(c.Request.Context(), state, map[string]string{
		"nonce":       nonce,
		"redirectUrl": redirectURL,
	}); err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to save sso state, err=%w", op, err))
		return
	}
	c.Redirect(http.StatusFound, provider.AuthURL(state, nonce, redirectURL, []string{"email", "openid", "profile"}))
}

// SSOCallback 交換授權碼並簽發本地的access token
// 第一次透過SSO登入的使用者會自動建立本地帳號
// (GET /v1/auth/sso/:provider/callback)
func (impl *ServerImpl) SSOCallback(c *gin.Context) {
	const op = "SSOCallback"
	provider, ok := impl.oidcProviders[c.Param("provider")]
	if !ok {
		respondError(c, http.StatusNotFound, "Unknown SSO provider")
		return
	}
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		respondError(c, http.StatusBadRequest, "Missing state or code")
		return
	}
	// 取回login時儲存的state與nonce
	session, err := impl.ssoStore.Load(c.Request.Context(), state)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to load sso state, err=%w", op, err))
		return
	}
	nonce, hasNonce := session["nonce"]
	if !hasNonce {
		respondError(c, http.StatusBadRequest, "Unknown or expired state")
		return
	}
	verifier := provider.NewExchangeVerifier(state, nonce)
	token, err := provider.Exchange(c.Request.Context(), verifier, code, state, session["redirectUrl"])
	if errors.Is(err, oidc.ErrStateMismatch) || errors.Is(err, oidc.ErrNonceMismatch) {
		respondError(c, http.StatusBadRequest, "State or nonce mismatch")
		return
	}
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to exchange token, err=%w", op, err))
		return
	}
	// 以email關聯本地帳號，不存在時自動建立
	if token.IDToken.Email == "" {
		respondError(c, http.StatusBadRequest, "SSO provider did not return an email")
		return
	}
	var user models.User
	result := impl.db.WithContext(c.Request.Context()).
		Where("email = ?", token.IDToken.Email).First(&user)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		impl.internalError(c, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error))
		return
	}
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		username := token.IDToken.Name
		if username == "" {
			username = token.IDToken.Email
		}
		// SSO帳號沒有本地密碼，填入隨機值避免被密碼登入
		randomSecret, err := generateID("pw")
		if err != nil {
			impl.internalError(c, fmt.Errorf("[%s] Unable to generate placeholder password, err=%w", op, err))
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(randomSecret), bcrypt.DefaultCost)
		if err != nil {
			impl.internalError(c, fmt.Errorf("[%s] Fail to hash placeholder password, err=%w", op, err))
			return
		}
		user = models.User{
			Username:       username,
			Email:          token.IDToken.Email,
			Password:       string(hash),
			ProfilePicture: token.IDToken.Picture,
			Role:           models.RoleUser,
		}
		if result := impl.db.WithContext(c.Request.Context()).Create(&user); result.Error != nil {
			impl.internalError(c, fmt.Errorf("[%s] Fail to create user, err=%w", op, result.Error))
			return
		}
		slog.Info("Provisioned new user from SSO login",
			slog.String("provider", c.Param("provider")),
			slog.String("userID", user.ID.String()))
	}
	accessToken, err := SignJWT(impl.config.Auth, user.ID, user.Username, user.Role)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   accessToken,
		"user":    toUserResponse(user),
	})
}

// internalError 記錄伺服器內部錯誤並回傳500
func (impl *ServerImpl) internalError(c *gin.Context, err error) {
	slog.Error("Internal server error", slog.Any("error", err))
	respondError(c, http.StatusInternalServerError, "Internal server error")
}
