package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/rentora/escrow/internal/notification/domain"
	"github.com/rentora/escrow/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidRecipient = errors.New("invalid_recipient")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Email email.Provider `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	email email.Provider
}

func NewService(p Params) notificationdomain.Notifier {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		email: p.Email,
	}
}

// Create persists the notification. Email delivery piggybacks on the stored
// row and is best-effort on its own.
func (s *Service) Create(ctx context.Context, req notificationdomain.CreateRequest) error {
	if req.UserID == 0 {
		return ErrInvalidRecipient
	}

	row := &notificationdomain.Notification{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     req.Title,
		Content:   req.Content,
		Metadata:  datatypes.JSONMap(req.Metadata),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}

	if s.email != nil {
		go s.sendEmail(row)
	}
	return nil
}

func (s *Service) sendEmail(row *notificationdomain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Recipient resolution happens downstream of the user service; the
	// notification row is keyed by user id only, so address the mailbox
	// relay by id alias.
	to := []string{row.UserID.String() + "@users.rentora.dev"}
	if err := s.email.Send(ctx, to, row.Title, row.Content); err != nil {
		s.log.Warn("notification email failed",
			zap.String("user_id", row.UserID.String()),
			zap.String("type", string(row.Type)),
			zap.Error(err),
		)
	}
}
