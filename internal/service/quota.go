package service

import (
	"context"
	"errors"
	"time"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/metrics"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/repository"
)

// Ledger answers admission-control questions against per-user resource
// ceilings. Usage is always derived from the source records (live
// instance rows, message rows in the current day window) rather than a
// mutable counter, so there is nothing to drift or reconcile.
//
// Admission is check-and-reserve: TryAdmit* takes the user's admission
// lock, checks usage, and on success returns a release closure that the
// caller holds until the admitted row is committed. Two concurrent
// admissions for the same user therefore serialize, and the second one
// sees the first one's committed row.
type Ledger struct {
	instances InstanceStore
	messages  MessageStore
	limits    LimitsStore
	users     UserStore
	defaults  models.UserLimits
	loc       *time.Location
	locks     *keyedLocks
	mets      *metrics.Metrics
}

// NewLedger creates a quota ledger. defaults apply to users without an
// explicit limits record; loc anchors the daily message window.
func NewLedger(
	instances InstanceStore,
	messages MessageStore,
	limits LimitsStore,
	users UserStore,
	defaults models.UserLimits,
	loc *time.Location,
	mets *metrics.Metrics,
) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{
		instances: instances,
		messages:  messages,
		limits:    limits,
		users:     users,
		defaults:  defaults,
		loc:       loc,
		locks:     newKeyedLocks(),
		mets:      mets,
	}
}

// TryAdmitInstance decides whether userID may create another instance.
// On admission the returned release must be called after the new row is
// committed (or the attempt abandoned). On denial release is nil and
// the error is a *QuotaExceededError.
func (l *Ledger) TryAdmitInstance(ctx context.Context, userID string) (func(), error) {
	release := l.locks.Acquire("instances:" + userID)

	limits, unlimited, err := l.limitsFor(ctx, userID)
	if err != nil {
		release()
		return nil, err
	}
	if unlimited {
		return release, nil
	}

	count, err := l.instances.CountByUser(ctx, userID)
	if err != nil {
		release()
		return nil, storageErr("count instances", err)
	}

	if count >= limits.MaxInstances {
		release()
		l.countDenial("instances")
		return nil, &QuotaExceededError{Kind: "instances", Limit: limits.MaxInstances, Current: count}
	}

	return release, nil
}

// TryAdmitMessage decides whether userID may send another message today.
// Same reserve contract as TryAdmitInstance: the caller holds release
// until the audit record for the attempt is written.
func (l *Ledger) TryAdmitMessage(ctx context.Context, userID string) (func(), error) {
	release := l.locks.Acquire("messages:" + userID)

	limits, unlimited, err := l.limitsFor(ctx, userID)
	if err != nil {
		release()
		return nil, err
	}
	if unlimited {
		return release, nil
	}

	count, err := l.messages.CountForUserSince(ctx, userID, l.startOfDay(time.Now()))
	if err != nil {
		release()
		return nil, storageErr("count messages", err)
	}

	if count >= limits.MaxMessagesPerDay {
		release()
		l.countDenial("messages")
		return nil, &QuotaExceededError{Kind: "messages", Limit: limits.MaxMessagesPerDay, Current: count}
	}

	return release, nil
}

// limitsFor resolves the effective ceilings for a user. Admins are
// unlimited; users without a limits record get the system defaults.
func (l *Ledger) limitsFor(ctx context.Context, userID string) (models.UserLimits, bool, error) {
	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.UserLimits{}, false, ErrNotFound
		}
		return models.UserLimits{}, false, storageErr("get user", err)
	}

	if user.Role == models.RoleAdmin {
		return models.UserLimits{}, true, nil
	}

	limits, err := l.limits.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			defaults := l.defaults
			defaults.UserID = userID
			return defaults, false, nil
		}
		return models.UserLimits{}, false, storageErr("get user limits", err)
	}

	return *limits, false, nil
}

// startOfDay returns local midnight in the configured timezone.
func (l *Ledger) startOfDay(now time.Time) time.Time {
	local := now.In(l.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.loc)
}

func (l *Ledger) countDenial(kind string) {
	if l.mets != nil {
		l.mets.QuotaDenials.WithLabelValues(kind).Inc()
	}
}
