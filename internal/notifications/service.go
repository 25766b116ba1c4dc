package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agencyhub-backend/pkg/errors"
	"github.com/angelmondragon/agencyhub-backend/pkg/pagination"
	"github.com/google/uuid"
)

// Service defines notification list/read operations.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Page       int
	Limit      int
	UnreadOnly bool
}

// NotificationDTO is the API shape of one notification.
type NotificationDTO struct {
	ID                uuid.UUID                  `json:"id"`
	Type              enums.NotificationType     `json:"type"`
	Priority          enums.NotificationPriority `json:"priority"`
	Title             string                     `json:"title"`
	Message           string                     `json:"message"`
	Link              *string                    `json:"link,omitempty"`
	RelatedContractID *uuid.UUID                 `json:"related_contract_id,omitempty"`
	ReadAt            *time.Time                 `json:"read_at,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
}

// ListResult wraps one page of notifications.
type ListResult struct {
	Items      []NotificationDTO `json:"items"`
	Pagination pagination.Page   `json:"pagination"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	page := pagination.Normalize(pagination.Params{Page: params.Page, Limit: params.Limit}, pagination.DefaultLimit, pagination.MaxLimit)
	rows, total, err := s.repo.List(ctx, listNotificationsParams{
		UserID:     params.UserID,
		Limit:      page.Limit,
		Offset:     page.Offset(),
		UnreadOnly: params.UnreadOnly,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, toDTO(row))
	}
	return &ListResult{
		Items:      items,
		Pagination: pagination.NewPage(page, total),
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func toDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:                n.ID,
		Type:              n.Type,
		Priority:          n.Priority,
		Title:             n.Title,
		Message:           n.Message,
		Link:              n.Link,
		RelatedContractID: n.RelatedContractID,
		ReadAt:            n.ReadAt,
		CreatedAt:         n.CreatedAt,
	}
}
