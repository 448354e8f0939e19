package services

import (
	"context"
	"fmt"
	"time"

	"flowforge/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ConnectionService is the credential store: it maps (user, provider) to
// stored OAuth tokens. The engine reads tokens at execution time; writes come
// from the OAuth callback surface, which is outside this core.
type ConnectionService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewConnectionService(db *gorm.DB, logger *logrus.Logger) *ConnectionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConnectionService{db: db, logger: logger}
}

// ConnectionUpsertRequest stores or refreshes a provider token.
type ConnectionUpsertRequest struct {
	Provider     string     `json:"provider" binding:"required"`
	AccessToken  string     `json:"access_token" binding:"required"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// List returns a user's connections (tokens are never serialized).
func (s *ConnectionService) List(ctx context.Context, userID uint) ([]models.UserConnection, error) {
	var list []models.UserConnection
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("provider ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return list, nil
}

// Upsert creates or replaces the (user, provider) connection.
func (s *ConnectionService) Upsert(ctx context.Context, userID uint, req *ConnectionUpsertRequest) (*models.UserConnection, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}

	var conn models.UserConnection
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, req.Provider).
		First(&conn).Error
	switch {
	case err == nil:
		conn.AccessToken = req.AccessToken
		conn.RefreshToken = req.RefreshToken
		conn.ExpiresAt = req.ExpiresAt
		conn.UpdatedAt = time.Now()
		if err := s.db.WithContext(ctx).Save(&conn).Error; err != nil {
			return nil, fmt.Errorf("failed to update connection: %w", err)
		}
	case err == gorm.ErrRecordNotFound:
		conn = models.UserConnection{
			UserID:       userID,
			Provider:     req.Provider,
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			ExpiresAt:    req.ExpiresAt,
		}
		if err := s.db.WithContext(ctx).Create(&conn).Error; err != nil {
			return nil, fmt.Errorf("failed to create connection: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	return &conn, nil
}

// AccessToken returns the stored access token for (user, provider), or ""
// when no connection exists. A missing credential is not an error here; the
// executor decides whether it can proceed without one.
func (s *ConnectionService) AccessToken(ctx context.Context, userID uint, provider string) string {
	var conn models.UserConnection
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&conn).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			s.logger.Warnf("connection lookup failed for user %d provider %s: %v", userID, provider, err)
		}
		return ""
	}
	return conn.AccessToken
}
