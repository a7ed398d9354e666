package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/joysparks/internal/metrics"
	"github.com/hitoshi/joysparks/internal/model"
	"github.com/hitoshi/joysparks/internal/repository"
)

// Resolver は検証済みの外部IdPクレームをローカルアカウント1件に対応付ける。
//
// 処理はsubject IDでの検索、ユーザー名（メールアドレス）での検索と紐付け、
// 新規作成の順に進み、1回の呼び出しで行う更新は高々1件。
// 一意制約の競合で書き込みに負けた場合のみ、検索からやり直す再試行を1回だけ行う。
type Resolver struct {
	accounts repository.AccountRepository
	metrics  metrics.MetricsCollector
	now      func() time.Time
	newID    func() string
}

// NewResolver はResolverを生成する。collectorはnilでもよい。
func NewResolver(accounts repository.AccountRepository, collector metrics.MetricsCollector) *Resolver {
	if collector == nil {
		collector = (*metrics.Collector)(nil)
	}
	return &Resolver{
		accounts: accounts,
		metrics:  collector,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Resolve はクレームに対応するアカウントを返す。
//
// メールアドレスまたはsubject IDが空のクレームはストアに触れずにINVALID_CLAIMで拒否する。
// 競合による再試行を使い切った場合はRESOLUTION_CONFLICTを返す。
// その他のストレージエラーはラップして返す。
func (r *Resolver) Resolve(ctx context.Context, claim model.FederatedClaim) (*model.Account, error) {
	claim.Email = strings.TrimSpace(claim.Email)
	claim.SubjectID = strings.TrimSpace(claim.SubjectID)

	if claim.Email == "" {
		r.metrics.RecordResolution(metrics.ResolutionInvalidClaim)
		return nil, model.NewInvalidClaimError("email")
	}
	if claim.SubjectID == "" {
		r.metrics.RecordResolution(metrics.ResolutionInvalidClaim)
		return nil, model.NewInvalidClaimError("sub")
	}

	account, outcome, err := r.resolveOnce(ctx, claim)
	if errors.Is(err, repository.ErrConflict) {
		slog.Info("identity resolution lost a write race, retrying",
			slog.String("subject_id", claim.SubjectID),
		)
		account, outcome, err = r.resolveOnce(ctx, claim)
		if errors.Is(err, repository.ErrConflict) {
			r.metrics.RecordResolution(metrics.ResolutionConflict)
			slog.Warn("identity resolution conflict persisted after retry",
				slog.String("subject_id", claim.SubjectID),
			)
			return nil, model.NewResolutionConflictError()
		}
	}
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			r.metrics.RecordResolution(metrics.ResolutionRejected)
			return nil, err
		}
		r.metrics.RecordResolution(metrics.ResolutionError)
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}

	r.metrics.RecordResolution(outcome)
	return account, nil
}

// resolveOnce は検索・紐付け・作成を1回だけ試みる。
// 書き込みが一意制約に負けた場合はrepository.ErrConflictをラップしたエラーを返す。
func (r *Resolver) resolveOnce(ctx context.Context, claim model.FederatedClaim) (*model.Account, string, error) {
	account, err := r.accounts.FindBySubjectID(ctx, claim.SubjectID)
	if err != nil {
		return nil, "", err
	}
	if account != nil {
		return account, metrics.ResolutionExisting, nil
	}

	account, err = r.accounts.FindByUsername(ctx, claim.Email)
	if err != nil {
		return nil, "", err
	}
	if account != nil {
		linked, err := r.link(ctx, account, claim)
		if err != nil {
			return nil, "", err
		}
		return linked, metrics.ResolutionLinked, nil
	}

	created, err := r.create(ctx, claim)
	if err != nil {
		return nil, "", err
	}
	return created, metrics.ResolutionCreated, nil
}

// link は既存アカウントにクレームのsubject IDを設定する。
// 既に別のsubjectと紐付いたアカウントは上書きせず、認証失敗として扱う。
func (r *Resolver) link(ctx context.Context, account *model.Account, claim model.FederatedClaim) (*model.Account, error) {
	if existing, ok := account.Credentials.SubjectID(); ok {
		if existing == claim.SubjectID {
			return account, nil
		}
		slog.Warn("account is already linked to another subject",
			slog.String("user_id", account.ID),
		)
		return nil, model.NewAuthenticationFailedError()
	}

	now := r.now()
	if err := r.accounts.LinkSubject(ctx, account.ID, claim.SubjectID, now); err != nil {
		return nil, err
	}

	linked := *account
	linked.Credentials = account.Credentials.WithSubject(claim.SubjectID)
	linked.UpdatedAt = now

	slog.Info("linked federated identity to existing account",
		slog.String("user_id", linked.ID),
	)
	return &linked, nil
}

// create はクレームから外部IdP認証のみのアカウントを作成する。
func (r *Resolver) create(ctx context.Context, claim model.FederatedClaim) (*model.Account, error) {
	first, last := model.SplitDisplayName(claim.DisplayName)
	now := r.now()

	account := &model.Account{
		ID:          r.newID(),
		Username:    claim.Email,
		Credentials: model.FederatedCredentials(claim.SubjectID),
		FirstName:   first,
		LastName:    last,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.accounts.Insert(ctx, account); err != nil {
		return nil, err
	}

	slog.Info("created account from federated identity",
		slog.String("user_id", account.ID),
	)
	return account, nil
}
