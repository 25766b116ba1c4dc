package contracts

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/agencyhub-backend/api/middleware"
	"github.com/angelmondragon/agencyhub-backend/api/responses"
	"github.com/angelmondragon/agencyhub-backend/api/validators"
	"github.com/angelmondragon/agencyhub-backend/internal/contracts"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agencyhub-backend/pkg/errors"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
)

const (
	contractIDParam    = "contractId"
	maxUserAgentLength = 500
	maxExpiringDays    = 365
	maxQueryInt        = 1 << 20
)

// SignRequest is the body of POST /contracts/{contractId}/sign. The caller
// address, user agent and timestamp are captured server side.
type SignRequest struct {
	Party     enums.SigningParty `json:"party"`
	Signature string             `json:"signature"`
}

// Create handles POST /api/v1/contracts.
func Create(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input contracts.CreateContractInput
		if err := validators.DecodeJSON(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.CreatedBy = middleware.UserUUIDFromContext(r.Context())

		contract, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, contract)
	}
}

// List handles GET /api/v1/contracts.
func List(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.GetAll(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseListFilters(r *http.Request) (contracts.ListFilters, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, maxQueryInt)
	if err != nil {
		return contracts.ListFilters{}, err
	}
	// Oversized limits are clamped by the service rather than rejected.
	limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxQueryInt)
	if err != nil {
		return contracts.ListFilters{}, err
	}
	clientID, err := validators.ParseQueryUUID(r, "client_id")
	if err != nil {
		return contracts.ListFilters{}, err
	}
	djID, err := validators.ParseQueryUUID(r, "dj_id")
	if err != nil {
		return contracts.ListFilters{}, err
	}
	query := r.URL.Query()
	return contracts.ListFilters{
		Page:         page,
		Limit:        limit,
		Status:       enums.ContractStatus(strings.TrimSpace(query.Get("status"))),
		ContractType: enums.ContractType(strings.TrimSpace(query.Get("contract_type"))),
		ClientID:     clientID,
		DJID:         djID,
		Search:       validators.SanitizeString(query.Get("search"), 255),
	}, nil
}

// Stats handles GET /api/v1/contracts/stats.
func Stats(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// Expiring handles GET /api/v1/contracts/expiring. Omitting days uses the
// configured window.
func Expiring(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := validators.ParseQueryInt(r, "days", 0, 1, maxExpiringDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.GetExpiringSoon(r.Context(), days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// Get handles GET /api/v1/contracts/{contractId}.
func Get(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, contractIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contract, err := svc.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if contract == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found"))
			return
		}
		responses.WriteSuccess(w, contract)
	}
}

// Update handles PATCH /api/v1/contracts/{contractId}. Keys outside the
// updatable set are ignored.
func Update(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, contractIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		raw, err := validators.DecodeJSONMap(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		update, err := contracts.ParseUpdateMap(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contract, err := svc.Update(r.Context(), id, update, middleware.UserUUIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contract)
	}
}

// Sign handles POST /api/v1/contracts/{contractId}/sign.
func Sign(svc contracts.Service, logg *logger.Logger, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, contractIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body SignRequest
		if err := validators.DecodeJSON(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID := middleware.UserUUIDFromContext(r.Context())
		signature := contracts.SignatureInput{
			Signature: body.Signature,
			IPAddress: middleware.ClientIP(r),
			UserAgent: validators.SanitizeString(r.UserAgent(), maxUserAgentLength),
			SignerID:  userID,
			Timestamp: now().UTC(),
		}
		contract, err := svc.Sign(r.Context(), id, body.Party, signature, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contract)
	}
}

// UpdateStatus handles POST /api/v1/contracts/{contractId}/status.
func UpdateStatus(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, contractIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input contracts.StatusChangeInput
		if err := validators.DecodeJSON(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contract, err := svc.UpdateStatus(r.Context(), id, input, middleware.UserUUIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, contract)
	}
}

// Delete handles DELETE /api/v1/contracts/{contractId}.
func Delete(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, contractIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deleted, err := svc.Delete(r.Context(), id, middleware.UserUUIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !deleted {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found"))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// History handles GET /api/v1/contracts/{contractId}/history.
func History(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, contractIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.GetHistory(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}
