package auth

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// Service wires every component over one database
type Service struct {
	DB           *bun.DB
	Repo         RepositoryManager
	Hasher       *PBKDF2Hasher
	Codes        *CodeRegistry
	Registration *RegistrationWorkflow
	Sessions     *SessionManager
	Admin        *AccountAdmin
	Metrics      *Metrics
	Logger       Logger
}

// ServiceOption customizes NewService
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger     Logger
	registerer prometheus.Registerer
	now        func() time.Time
	policies   RolePolicies
	db         *bun.DB
}

// WithServiceLogger overrides the logger built from the logging options
func WithServiceLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = l
	}
}

// WithServiceRegisterer registers metrics on reg
func WithServiceRegisterer(reg prometheus.Registerer) ServiceOption {
	return func(o *serviceOptions) {
		o.registerer = reg
	}
}

// WithServiceClock injects a clock into every component
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.now = now
	}
}

// WithServicePolicies replaces the default role policy table
func WithServicePolicies(p RolePolicies) ServiceOption {
	return func(o *serviceOptions) {
		o.policies = p
	}
}

// WithServiceDB uses an already open database instead of opening Storage.DSN
func WithServiceDB(db *bun.DB) ServiceOption {
	return func(o *serviceOptions) {
		o.db = db
	}
}

// NewService opens the store, creates the schema and builds every component
func NewService(ctx context.Context, opts Options, options ...ServiceOption) (*Service, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	so := &serviceOptions{now: time.Now}
	for _, opt := range options {
		if opt != nil {
			opt(so)
		}
	}
	if so.policies == nil {
		so.policies = DefaultRolePolicies()
	}

	logger := so.logger
	if logger == nil {
		logger = NewLogger(opts.Logging)
	}

	db := so.db
	if db == nil {
		var err error
		if db, err = OpenDatabase(ctx, opts.Storage.DSN); err != nil {
			return nil, err
		}
	}

	if err := CreateSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	metrics, err := NewMetrics(so.registerer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	repo := NewRepositoryManager(db)
	repo.MustValidate()

	hasher := NewPBKDF2Hasher(opts.Credentials)
	activity := repo.Activity()

	codes := NewCodeRegistry(repo).
		WithConfig(opts).
		WithGenerateAttempts(opts.Codes.GenerateAttempts).
		WithPolicies(so.policies).
		WithClock(so.now).
		WithLogger(logger).
		WithActivitySink(activity).
		WithMetrics(metrics)

	registration := NewRegistrationWorkflow(repo, codes).
		WithHasher(hasher).
		WithPolicies(so.policies).
		WithClock(so.now).
		WithLogger(logger).
		WithActivitySink(activity).
		WithMetrics(metrics)

	sessions := NewSessionManager(repo).
		WithConfig(opts).
		WithHasher(hasher).
		WithPolicies(so.policies).
		WithClock(so.now).
		WithLogger(logger).
		WithActivitySink(activity).
		WithMetrics(metrics)

	admin := NewAccountAdmin(repo).
		WithHasher(hasher).
		WithPolicies(so.policies).
		WithClock(so.now).
		WithLogger(logger).
		WithActivitySink(activity)

	return &Service{
		DB:           db,
		Repo:         repo,
		Hasher:       hasher,
		Codes:        codes,
		Registration: registration,
		Sessions:     sessions,
		Admin:        admin,
		Metrics:      metrics,
		Logger:       logger,
	}, nil
}

// Close ends the live session and closes the database
func (s *Service) Close() error {
	if s.Sessions != nil {
		s.Sessions.Close()
	}
	if z, ok := s.Logger.(*ZapLogger); ok {
		_ = z.Sync()
	}
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
