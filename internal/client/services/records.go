package services

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/bizsync/internal/client/connectivity"
	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
	"github.com/dmitrijs2005/bizsync/internal/client/syncer"
	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/logging"
)

// Engine is the part of the sync engine the façade needs.
type Engine interface {
	StageCreate(ctx context.Context, t models.EntityType, rec *models.Record) (*models.Record, error)
	StageUpdate(ctx context.Context, t models.EntityType, id string, partial map[string]any) (*models.Record, error)
	StageDelete(ctx context.Context, t models.EntityType, id string) error
	Refresh(ctx context.Context, t models.EntityType) error
	Kick()
	Store() store.Store
	Oracle() connectivity.Oracle
}

var _ Engine = (*syncer.Engine)(nil)

// RecordService is the CRUD façade for one entity type. Every method
// returns once the local step is done; syncing happens in the background.
type RecordService interface {
	EntityType() models.EntityType
	Create(ctx context.Context, fields map[string]any) (*models.Record, error)
	// GetByID returns common.ErrorNotFound for missing or hidden records.
	GetByID(ctx context.Context, id string) (*models.Record, error)
	GetAll(ctx context.Context, opts ListOptions) ([]*models.Record, error)
	Update(ctx context.Context, id string, partial map[string]any) (*models.Record, error)
	Delete(ctx context.Context, id string) error
	// Refresh pulls the type from the server and waits for the merge.
	Refresh(ctx context.Context) error
	// Wait blocks until background refreshes started by reads finish.
	Wait()
}

type Option func(*recordService)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(s *recordService) { s.policy = p }
}

func WithLogger(l logging.Logger) Option {
	return func(s *recordService) { s.logger = l }
}

// WithBackgroundRefresh toggles the server refresh kicked off by reads.
func WithBackgroundRefresh(on bool) Option {
	return func(s *recordService) { s.backgroundRefresh = on }
}

type recordService struct {
	t       models.EntityType
	engine  Engine
	session models.SessionContext
	policy  Policy
	logger  logging.Logger

	backgroundRefresh bool
	refreshing        atomic.Bool
	wg                sync.WaitGroup
}

// NewRecordService builds the façade for t acting as session.
func NewRecordService(t models.EntityType, e Engine, session models.SessionContext, opts ...Option) (RecordService, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	s := &recordService{
		t:                 t,
		engine:            e,
		session:           session,
		policy:            DefaultPolicy(),
		logger:            logging.Nop(),
		backgroundRefresh: true,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("module", "services", "type", string(t))
	return s, nil
}

func mustService(t models.EntityType, e Engine, session models.SessionContext, opts ...Option) RecordService {
	s, err := NewRecordService(t, e, session, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func Invoices(e Engine, session models.SessionContext, opts ...Option) RecordService {
	return mustService(models.Invoices, e, session, opts...)
}

func Parties(e Engine, session models.SessionContext, opts ...Option) RecordService {
	return mustService(models.Parties, e, session, opts...)
}

func Expenses(e Engine, session models.SessionContext, opts ...Option) RecordService {
	return mustService(models.Expenses, e, session, opts...)
}

func (s *recordService) EntityType() models.EntityType { return s.t }

func (s *recordService) Create(ctx context.Context, fields map[string]any) (*models.Record, error) {
	rec := models.NewRecord(maps.Clone(fields))
	if id, ok := rec.Fields[models.FieldID].(string); ok {
		rec.ID = id
		delete(rec.Fields, models.FieldID)
	}
	if s.session.CompanyID != "" {
		rec.Fields[models.FieldCompanyID] = s.session.CompanyID
	}
	if _, ok := rec.Fields[models.FieldCreatedBy]; !ok && s.session.UserID != "" {
		rec.Fields[models.FieldCreatedBy] = s.session.UserID
	}

	staged, err := s.engine.StageCreate(ctx, s.t, rec)
	if err != nil {
		return nil, err
	}
	s.kick()
	return staged, nil
}

func (s *recordService) GetByID(ctx context.Context, id string) (*models.Record, error) {
	rec, err := s.visible(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshInBackground(ctx)
	return rec, nil
}

func (s *recordService) visible(ctx context.Context, id string) (*models.Record, error) {
	rec, err := s.engine.Store().Records().Get(ctx, s.t, id)
	if err != nil {
		return nil, fmt.Errorf("error reading record: %w", err)
	}
	if rec == nil || !s.policy.Allow(s.session, rec) {
		return nil, fmt.Errorf("%s %s: %w", s.t, id, common.ErrorNotFound)
	}
	return rec, nil
}

func (s *recordService) GetAll(ctx context.Context, opts ListOptions) ([]*models.Record, error) {
	recs, err := s.engine.Store().Records().GetAll(ctx, s.t)
	if err != nil {
		return nil, fmt.Errorf("error reading records: %w", err)
	}
	s.refreshInBackground(ctx)
	return applyListOptions(Filter(s.policy, s.session, recs), opts), nil
}

func (s *recordService) Update(ctx context.Context, id string, partial map[string]any) (*models.Record, error) {
	if _, err := s.visible(ctx, id); err != nil {
		return nil, err
	}
	partial = maps.Clone(partial)
	for _, k := range []string{models.FieldID, models.FieldCompanyID, models.FieldCreatedBy, models.FieldCreatedAt} {
		delete(partial, k)
	}

	rec, err := s.engine.StageUpdate(ctx, s.t, id, partial)
	if err != nil {
		return nil, err
	}
	s.kick()
	return rec, nil
}

// Delete is idempotent for missing ids. Records hidden by the policy
// cannot be deleted.
func (s *recordService) Delete(ctx context.Context, id string) error {
	rec, err := s.engine.Store().Records().Get(ctx, s.t, id)
	if err != nil {
		return fmt.Errorf("error reading record: %w", err)
	}
	if rec != nil && !s.policy.Allow(s.session, rec) {
		return fmt.Errorf("%s %s: %w", s.t, id, common.ErrorForbidden)
	}

	if err := s.engine.StageDelete(ctx, s.t, id); err != nil {
		return err
	}
	s.kick()
	return nil
}

func (s *recordService) Refresh(ctx context.Context) error {
	return s.engine.Refresh(ctx, s.t)
}

func (s *recordService) Wait() {
	s.wg.Wait()
}

func (s *recordService) kick() {
	if s.engine.Oracle().IsOnline() {
		s.engine.Kick()
	}
}

// refreshInBackground starts at most one refresh at a time. The caller's
// cancellation does not abort it.
func (s *recordService) refreshInBackground(ctx context.Context) {
	if !s.backgroundRefresh || !s.engine.Oracle().IsOnline() {
		return
	}
	if !s.refreshing.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.refreshing.Store(false)

		ctx := context.WithoutCancel(ctx)
		if err := s.engine.Refresh(ctx, s.t); err != nil {
			s.logger.Warn(ctx, "background refresh failed", "error", err)
		}
	}()
}
