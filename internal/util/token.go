package util

import (
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/config"
	"github.com/aimd-lab/director/pkg/logutils"
)

type (
	JWTClaims struct {
		UserID      uint             `json:"ui"`
		Username    string           `json:"un"`
		Role        model.Role       `json:"rp"`
		ReviewRole  model.ReviewRole `json:"rr"`
		CanOverride bool             `json:"co"`
		jwt.RegisteredClaims
	}
	JWTMessage struct {
		UserID      uint             `json:"userID"`      // User ID
		Username    string           `json:"username"`    // Username
		Role        model.Role       `json:"role"`        // Role in platform (e.g. guest, user, admin)
		ReviewRole  model.ReviewRole `json:"reviewRole"`  // Approval role for stage authorization
		CanOverride bool             `json:"canOverride"` // Escalation authority over any stage
	}
)

type TokenManager struct {
	accessSecret    string
	refreshSecret   string
	accessTokenTTL  int
	refreshTokenTTL int
}

var (
	once     sync.Once
	tokenMgr *TokenManager
)

func GetTokenMgr() *TokenManager {
	once.Do(func() {
		tokenConfig := config.NewTokenConf()
		refreshSecret := tokenConfig.RefreshTokenSecret
		if refreshSecret == "" {
			refreshSecret = tokenConfig.AccessTokenSecret
		}
		tokenMgr = newTokenManager(tokenConfig.AccessTokenSecret,
			refreshSecret,
			tokenConfig.AccessTokenExpiryHour,
			tokenConfig.RefreshTokenExpiryHour,
		)
	})
	return tokenMgr
}

func newTokenManager(accessSecret, refreshSecret string, accessTokenTTL, refreshTokenTTL int) *TokenManager {
	return &TokenManager{
		accessSecret,
		refreshSecret,
		accessTokenTTL,
		refreshTokenTTL,
	}
}

func (tm *TokenManager) createToken(msg *JWTMessage, secret string, ttl int) (string, error) {
	expiresAt := time.Now().Add(time.Hour * time.Duration(ttl))

	claims := &JWTClaims{
		UserID:      msg.UserID,
		Username:    msg.Username,
		Role:        msg.Role,
		ReviewRole:  msg.ReviewRole,
		CanOverride: msg.CanOverride,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// CreateTokens creates a new access token and a new refresh token.
// The two token types are signed with separate secrets.
func (tm *TokenManager) CreateTokens(msg *JWTMessage) (
	accessToken string, refreshToken string, err error) {
	accessToken, err = tm.createToken(msg, tm.accessSecret, tm.accessTokenTTL)
	if err != nil {
		logutils.Log.Error(err)
		return "", "", err
	}
	refreshToken, err = tm.createToken(msg, tm.refreshSecret, tm.refreshTokenTTL)
	if err != nil {
		logutils.Log.Error(err)
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// CheckToken verifies an access token.
func (tm *TokenManager) CheckToken(requestToken string) (JWTMessage, error) {
	return tm.checkToken(requestToken, tm.accessSecret)
}

// CheckRefreshToken verifies a refresh token.
func (tm *TokenManager) CheckRefreshToken(requestToken string) (JWTMessage, error) {
	return tm.checkToken(requestToken, tm.refreshSecret)
}

func (tm *TokenManager) checkToken(requestToken, secret string) (JWTMessage, error) {
	claims := JWTClaims{}
	_, err := jwt.ParseWithClaims(requestToken, &claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	return JWTMessage{
		UserID:      claims.UserID,
		Username:    claims.Username,
		Role:        claims.Role,
		ReviewRole:  claims.ReviewRole,
		CanOverride: claims.CanOverride,
	}, err
}
