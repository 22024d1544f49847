package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"lampiran/api/internal/agenda"
	"lampiran/api/internal/archive"
	"lampiran/api/internal/auth"
	"lampiran/api/internal/classify"
	"lampiran/api/internal/config"
	"lampiran/api/internal/email"
	"lampiran/api/internal/export"
	"lampiran/api/internal/permit"
	"lampiran/api/internal/rbac"
	"lampiran/api/internal/ref"
	"lampiran/api/internal/search"
	"lampiran/api/internal/sheet"
	"lampiran/api/internal/store"
)

type Session struct {
	Token     string
	UserName  string
	Role      rbac.Role
	JTI       string
	ExpiresAt time.Time
}

type dataStore interface {
	CreateRun(context.Context, store.Run, []store.CategoryRow) error
	GetRun(context.Context, string) (store.Run, error)
	ListRuns(context.Context, int) ([]store.Run, error)
	ListRecords(context.Context, string, int) ([]store.CategoryRow, error)
	SetArchiveCommit(context.Context, string, string) error
	Ping(context.Context) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexRun(string, []search.RecordDoc)
}

type agendaCache interface {
	GetOrParse(context.Context, string, func() (*agenda.Index, error)) (*agenda.Index, bool, error)
}

type blobStore interface {
	Put(context.Context, string, []byte, string) error
}

type archiver interface {
	Record(archive.Snapshot) (archive.Commit, error)
	History(string, int) ([]archive.Commit, error)
	ReportAt(string) (archive.Snapshot, archive.Commit, error)
	Periods() ([]string, error)
}

type notifier interface {
	IsConfigured() bool
	SendRunSummary([]string, email.RunSummary) error
}

type exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

// Deps are the collaborators of the service. Cache, Blobs, Archive and Mail
// are optional and must be left as nil interfaces when not configured.
type Deps struct {
	Store    dataStore
	Search   searchService
	Cache    agendaCache
	Blobs    blobStore
	Archive  archiver
	Mail     notifier
	Export   exporter
	OCR      agenda.Recognizer
	Accounts *auth.Accounts
	Logger   *zap.Logger
}

type Service struct {
	cfg      config.Config
	norm     *ref.Normalizer
	engine   *classify.Engine
	enricher *permit.Enricher
	sheets   *sheet.Reader
	deps     Deps
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg config.Config, norm *ref.Normalizer, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Accounts == nil {
		deps.Accounts, _ = auth.ParseAccounts("")
	}
	return &Service{
		cfg:      cfg,
		norm:     norm,
		engine:   classify.New(norm),
		enricher: permit.NewEnricher(norm),
		sheets:   sheet.NewReader(norm.Vocabulary(), logger),
		deps:     deps,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) Login(name, password string) (Session, error) {
	account, err := s.deps.Accounts.Authenticate(name, password)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid name or password", nil)
	}
	claims := auth.NewClaims(account, s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("session issued", zap.String("user", account.Name), zap.String("role", string(account.Role)))
	return Session{
		Token:     token,
		UserName:  account.Name,
		Role:      account.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserName:  claims.Name,
		Role:      rbac.Normalize(claims.Role),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.deps.Store.Ping(ctx)
}

// Search looks up stored rows across runs.
func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
	}
	if s.deps.Search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.deps.Search.Search(ctx, q), nil
}
