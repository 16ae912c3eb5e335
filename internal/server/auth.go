package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const vendorKey = "vendor"

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Vendor    string    `json:"vendor"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) listVendors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"vendors": s.accounts.Usernames()})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	if !s.accounts.Authenticate(req.Username, req.Password) {
		log.Warn().Str("vendor", req.Username).Msg("Rejected portal login")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Password salah"})
		return
	}

	expires := s.now().Add(s.cfg.TokenTTL)
	token, err := s.issueToken(req.Username, expires)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign portal token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	log.Info().Str("vendor", req.Username).Msg("Vendor logged in")
	c.JSON(http.StatusOK, loginResponse{Token: token, Vendor: req.Username, ExpiresAt: expires})
}

func (s *Server) issueToken(vendor string, expires time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   vendor,
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTSecret)
}

func (s *Server) parseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return s.cfg.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// requireVendor rejects requests without a valid bearer token and stores the
// vendor name on the context.
func (s *Server) requireVendor() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		vendor, err := s.parseToken(strings.TrimSpace(token))
		if err != nil {
			log.Debug().Err(err).Msg("Invalid portal token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(vendorKey, vendor)
		c.Next()
	}
}
