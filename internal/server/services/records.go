package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/dbx"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/repomanager"
)

// Data keys the server stamps itself.
const (
	fieldCompanyID = "companyId"
	fieldCreatedBy = "createdBy"
)

// RecordService serves company-scoped record collections. Every call acts
// on behalf of a token identity; rows of other companies are invisible.
type RecordService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewRecordService(db *sql.DB, m repomanager.RepositoryManager) *RecordService {
	return &RecordService{db: db, repomanager: m, now: time.Now}
}

func checkType(recordType string) error {
	if !models.ValidTypeName(recordType) {
		return fmt.Errorf("%w: invalid collection %q", common.ErrorValidation, recordType)
	}
	return nil
}

func canWrite(id models.Identity) error {
	if id.Role == models.RoleViewer {
		return fmt.Errorf("%w: role %s is read-only", common.ErrorForbidden, id.Role)
	}
	return nil
}

func (s *RecordService) List(ctx context.Context, id models.Identity, recordType string) ([]*models.Record, error) {
	if err := checkType(recordType); err != nil {
		return nil, err
	}
	return s.repomanager.Records(s.db).List(ctx, id.CompanyID, recordType)
}

func (s *RecordService) Get(ctx context.Context, id models.Identity, recordType, recordID string) (*models.Record, error) {
	if err := checkType(recordType); err != nil {
		return nil, err
	}
	return s.repomanager.Records(s.db).Get(ctx, id.CompanyID, recordType, recordID)
}

// Create stores doc as a new record. A missing or device-local id is
// replaced by a fresh uuid; a client createdAt is kept so records made
// offline retain their creation time.
func (s *RecordService) Create(ctx context.Context, id models.Identity, recordType string, doc map[string]any) (*models.Record, error) {
	if err := checkType(recordType); err != nil {
		return nil, err
	}
	if err := canWrite(id); err != nil {
		return nil, err
	}

	recordID, _ := doc[models.FieldID].(string)
	if recordID == "" || strings.HasPrefix(recordID, common.LocalIDPrefix) {
		recordID = uuid.NewString()
	}

	now := s.now().UTC()
	createdAt := now
	if raw, ok := doc[models.FieldCreatedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil && !t.After(now) {
			createdAt = t.UTC()
		}
	}

	data := models.StripReserved(doc)
	data[fieldCompanyID] = id.CompanyID
	if _, ok := data[fieldCreatedBy]; !ok {
		data[fieldCreatedBy] = id.UserID
	}

	rec := &models.Record{
		ID:        recordID,
		CompanyID: id.CompanyID,
		Type:      recordType,
		Data:      data,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	if err := s.repomanager.Records(s.db).Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges fields into the stored record. Reserved keys and the
// owning company cannot be changed.
func (s *RecordService) Update(ctx context.Context, id models.Identity, recordType, recordID string, fields map[string]any) (*models.Record, error) {
	if err := checkType(recordType); err != nil {
		return nil, err
	}
	if err := canWrite(id); err != nil {
		return nil, err
	}

	var out *models.Record
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Records(tx)

		rec, err := repo.GetForUpdate(ctx, id.CompanyID, recordType, recordID)
		if err != nil {
			return err
		}

		for k, v := range models.StripReserved(fields) {
			if k == fieldCompanyID {
				continue
			}
			rec.Data[k] = v
		}
		rec.UpdatedAt = s.now().UTC()

		if err := repo.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RecordService) Delete(ctx context.Context, id models.Identity, recordType, recordID string) error {
	if err := checkType(recordType); err != nil {
		return err
	}
	if err := canWrite(id); err != nil {
		return err
	}
	return s.repomanager.Records(s.db).Delete(ctx, id.CompanyID, recordType, recordID)
}
