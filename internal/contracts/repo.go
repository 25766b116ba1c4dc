package contracts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
)

// Repository exposes persistence helpers for contracts and their history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contract *models.Contract) error
	AppendHistory(ctx context.Context, entries ...models.ContractHistory) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	FindView(ctx context.Context, id uuid.UUID) (*contractView, error)
	List(ctx context.Context, filters listQuery) ([]contractView, int64, error)
	UpdateColumns(ctx context.Context, id uuid.UUID, columns map[string]any) (int64, error)
	SoftDelete(ctx context.Context, id, userID uuid.UUID, now time.Time) (int64, error)
	History(ctx context.Context, contractID uuid.UUID) ([]historyView, error)
	ExpiringBetween(ctx context.Context, from, to datatypes.Date) ([]contractView, error)
	Stats(ctx context.Context) (*Stats, error)
	HighestNumber(ctx context.Context, prefix string) (string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a contracts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type listQuery struct {
	Limit        int
	Offset       int
	Status       enums.ContractStatus
	ContractType enums.ContractType
	ClientID     *uuid.UUID
	DJID         *uuid.UUID
	Search       string
}

const viewColumns = "contracts.*, " +
	"clients.name AS client_name, clients.email AS client_email, " +
	"djs.name AS dj_name, djs.email AS dj_email, " +
	"events.name AS event_name, events.event_date AS event_date"

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, contract *models.Contract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *repository) AppendHistory(ctx context.Context, entries ...models.ContractHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// FindByID loads a live contract; soft-deleted rows surface as gorm.ErrRecordNotFound.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// FindForUpdate loads a live contract and, on postgres, row-locks it for the
// rest of the transaction.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var contract models.Contract
	if err := query.Take(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// HighestNumber returns the largest contract number starting with prefix,
// soft-deleted rows included, or "" when none exists. Longer numbers sort
// first so a sequence past its zero padding still wins.
func (r *repository) HighestNumber(ctx context.Context, prefix string) (string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).
		Unscoped().
		Model(&models.Contract{}).
		Where("contract_number LIKE ?", prefix+"%").
		Order("LENGTH(contract_number) DESC, contract_number DESC").
		Limit(1).
		Pluck("contract_number", &numbers).Error
	if err != nil || len(numbers) == 0 {
		return "", err
	}
	return numbers[0], nil
}

func (r *repository) FindView(ctx context.Context, id uuid.UUID) (*contractView, error) {
	var view contractView
	err := r.viewQuery(ctx).
		Where("contracts.id = ?", id).
		Take(&view).Error
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (r *repository) List(ctx context.Context, q listQuery) ([]contractView, int64, error) {
	var total int64
	if err := applyListFilters(r.db.WithContext(ctx).Model(&models.Contract{}), q).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	views := make([]contractView, 0)
	if total == 0 || int64(q.Offset) >= total {
		return views, total, nil
	}

	err := applyListFilters(r.viewQuery(ctx), q).
		Order("contracts.created_at DESC, contracts.id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&views).Error
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// UpdateColumns writes columns to a live contract and reports the rows affected.
func (r *repository) UpdateColumns(ctx context.Context, id uuid.UUID, columns map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		Updates(columns)
	return result.RowsAffected, result.Error
}

func (r *repository) SoftDelete(ctx context.Context, id, userID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"deleted_at": now,
			"updated_by": userID,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// History returns every entry for the contract, newest first. Deleted contracts
// keep their history readable.
func (r *repository) History(ctx context.Context, contractID uuid.UUID) ([]historyView, error) {
	rows := make([]historyView, 0)
	err := r.db.WithContext(ctx).
		Model(&models.ContractHistory{}).
		Select("contract_history.*, users.email AS changed_by_name").
		Joins("LEFT JOIN users ON users.id = contract_history.changed_by").
		Where("contract_history.contract_id = ?", contractID).
		Order("contract_history.created_at DESC, contract_history.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ExpiringBetween(ctx context.Context, from, to datatypes.Date) ([]contractView, error) {
	views := make([]contractView, 0)
	err := r.viewQuery(ctx).
		Where("contracts.status = ?", enums.ContractStatusActive).
		Where("contracts.expiration_date IS NOT NULL").
		Where("contracts.expiration_date >= ? AND contracts.expiration_date <= ?", from, to).
		Order("contracts.expiration_date ASC, contracts.id ASC").
		Find(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (r *repository) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Select(
			"COUNT(*) AS total, "+
				"COUNT(CASE WHEN status = ? THEN 1 END) AS draft, "+
				"COUNT(CASE WHEN status = ? THEN 1 END) AS pending_signature, "+
				"COUNT(CASE WHEN status = ? THEN 1 END) AS signed, "+
				"COUNT(CASE WHEN status = ? THEN 1 END) AS active, "+
				"COUNT(CASE WHEN status = ? THEN 1 END) AS expired, "+
				"COUNT(CASE WHEN signed_by_party_a AND signed_by_party_b THEN 1 END) AS fully_signed, "+
				"COALESCE(AVG(total_amount), 0) AS avg_amount, "+
				"COALESCE(SUM(total_amount), 0) AS total_amount",
			enums.ContractStatusDraft,
			enums.ContractStatusPendingSignature,
			enums.ContractStatusSigned,
			enums.ContractStatusActive,
			enums.ContractStatusExpired,
		).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *repository) viewQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Select(viewColumns).
		Joins("LEFT JOIN clients ON clients.id = contracts.client_id").
		Joins("LEFT JOIN djs ON djs.id = contracts.dj_id").
		Joins("LEFT JOIN events ON events.id = contracts.event_id")
}

func applyListFilters(query *gorm.DB, q listQuery) *gorm.DB {
	if q.Status != "" {
		query = query.Where("contracts.status = ?", q.Status)
	}
	if q.ContractType != "" {
		query = query.Where("contracts.contract_type = ?", q.ContractType)
	}
	if q.ClientID != nil {
		query = query.Where("contracts.client_id = ?", *q.ClientID)
	}
	if q.DJID != nil {
		query = query.Where("contracts.dj_id = ?", *q.DJID)
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		query = query.Where(
			"(LOWER(contracts.title) LIKE ? ESCAPE '\\' OR LOWER(contracts.party_b_name) LIKE ? ESCAPE '\\' OR LOWER(contracts.contract_number) LIKE ? ESCAPE '\\')",
			pattern, pattern, pattern,
		)
	}
	return query
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
