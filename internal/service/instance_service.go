package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/repository"
)

// InstanceService owns the instance lifecycle: it combines quota
// admission, per-instance locking, transition validation, gateway calls
// and persistence. State is always re-read from the store under the
// instance lock before a transition is validated; nothing is trusted
// from memory across requests.
type InstanceService struct {
	instances      InstanceStore
	gateway        Gateway
	ledger         *Ledger
	locks          *keyedLocks
	defaultAdapter string
	gatewayTimeout time.Duration
}

// NewInstanceService creates the instance orchestrator.
func NewInstanceService(instances InstanceStore, gateway Gateway, ledger *Ledger, defaultAdapter string, gatewayTimeout time.Duration) *InstanceService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 30 * time.Second
	}
	return &InstanceService{
		instances:      instances,
		gateway:        gateway,
		ledger:         ledger,
		locks:          newKeyedLocks(),
		defaultAdapter: defaultAdapter,
		gatewayTimeout: gatewayTimeout,
	}
}

// gatewayCtx detaches a gateway call from the caller's context. A
// client disconnect must not abort a transition mid-flight; the bounded
// timeout is what keeps the call from hanging instead.
func (s *InstanceService) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
}

// instanceForActor loads an instance and enforces ownership. A record
// owned by someone else reads as absent, so ownership cannot be probed.
func instanceForActor(ctx context.Context, store InstanceStore, actor Actor, id string) (*models.Instance, error) {
	inst, err := store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get instance", err)
	}

	if !actor.IsAdmin() && inst.UserID != actor.UserID {
		return nil, ErrNotFound
	}

	return inst, nil
}

// Create provisions a new instance: quota admission, gateway create,
// then local persistence. The admission lock is held until the row is
// committed so concurrent creates cannot slip past the ceiling.
func (s *InstanceService) Create(ctx context.Context, actor Actor, req *models.CreateInstanceRequest) (*models.InstanceResponse, error) {
	adapter := req.Adapter
	if adapter == "" {
		adapter = s.defaultAdapter
	}

	// The gateway keys instances by name; refuse duplicates before
	// any remote call.
	if _, err := s.instances.GetByName(ctx, req.Name); err == nil {
		return nil, ErrNameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageErr("get instance by name", err)
	}

	release, err := s.ledger.TryAdmitInstance(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	created, err := s.gateway.CreateInstance(gctx, req.Name, adapter, req.Settings)
	if err != nil {
		return nil, err
	}

	inst := &models.Instance{
		ID:      uuid.New().String(),
		UserID:  actor.UserID,
		Name:    req.Name,
		Adapter: adapter,
		Token:   created.Token,
		Status:  models.StatusDisconnected,
	}
	if req.Settings != nil {
		inst.Settings = *req.Settings
	}
	inst.CreatedAt = time.Now()

	if err := s.instances.Create(ctx, inst); err != nil {
		// The gateway resource exists but we could not record it; clean
		// it up best-effort so the name is not orphaned remotely.
		cleanupCtx, cleanupCancel := s.gatewayCtx(context.Background())
		defer cleanupCancel()
		if derr := s.gateway.Delete(cleanupCtx, req.Name); derr != nil {
			log.Printf("[InstanceService] Warning: failed to clean up gateway instance %s after insert failure: %v", req.Name, derr)
		}
		return nil, storageErr("create instance", err)
	}

	log.Printf("[InstanceService] Instance %s created for user %s", inst.Name, inst.UserID)

	resp := s.toResponse(inst)
	resp.QRCode = created.QRCode
	return resp, nil
}

// Get returns a single instance the actor may see.
func (s *InstanceService) Get(ctx context.Context, actor Actor, id string) (*models.InstanceResponse, error) {
	inst, err := instanceForActor(ctx, s.instances, actor, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(inst), nil
}

// List returns instances visible to the actor: all of them for admins,
// the actor's own otherwise.
func (s *InstanceService) List(ctx context.Context, actor Actor, page, limit int) (*models.InstanceListResponse, error) {
	page, limit = normalizePage(page, limit)
	offset := (page - 1) * limit

	var (
		instances []*models.Instance
		total     int
		err       error
	)
	if actor.IsAdmin() {
		instances, total, err = s.instances.List(ctx, limit, offset)
	} else {
		instances, total, err = s.instances.ListByUser(ctx, actor.UserID, limit, offset)
	}
	if err != nil {
		return nil, storageErr("list instances", err)
	}

	resp := &models.InstanceListResponse{
		Pagination: paginate(page, limit, total),
	}
	for _, inst := range instances {
		resp.Instances = append(resp.Instances, s.toResponse(inst))
	}
	return resp, nil
}

// UpdateSettings persists new behavior flags and forwards them to the
// gateway best-effort. The local record is authoritative; a gateway
// forward failure is logged, not fatal.
func (s *InstanceService) UpdateSettings(ctx context.Context, actor Actor, id string, settings models.InstanceSettings) (*models.InstanceResponse, error) {
	inst, err := instanceForActor(ctx, s.instances, actor, id)
	if err != nil {
		return nil, err
	}

	if err := s.instances.UpdateSettings(ctx, inst.ID, settings); err != nil {
		return nil, storageErr("update settings", err)
	}
	inst.Settings = settings

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	if err := s.gateway.SetSettings(gctx, inst.Name, &settings); err != nil {
		log.Printf("[InstanceService] Warning: failed to forward settings for %s to gateway: %v", inst.Name, err)
	}

	return s.toResponse(inst), nil
}

// Connect asks the gateway to start pairing. Valid from Disconnected
// and Failed; rejected with ErrInstanceBusy while another operation is
// in flight.
func (s *InstanceService) Connect(ctx context.Context, actor Actor, id string) (*models.InstanceStatusResponse, error) {
	return s.transition(ctx, actor, id, opConnect, models.StatusConnecting, s.gateway.Connect)
}

// Disconnect logs the instance out. Valid from Connected only.
func (s *InstanceService) Disconnect(ctx context.Context, actor Actor, id string) (*models.InstanceStatusResponse, error) {
	return s.transition(ctx, actor, id, opDisconnect, models.StatusDisconnected, s.gateway.Logout)
}

// Restart restarts the instance on the gateway. Valid from any state.
func (s *InstanceService) Restart(ctx context.Context, actor Actor, id string) (*models.InstanceStatusResponse, error) {
	return s.transition(ctx, actor, id, opRestart, models.StatusConnecting, s.gateway.Restart)
}

// transition runs one guarded state-changing gateway operation under
// the instance lock: re-read, validate, call, commit. On gateway
// failure the instance is marked FAILED per the transition table and
// the typed gateway error is surfaced.
func (s *InstanceService) transition(ctx context.Context, actor Actor, id, op, successState string, call func(context.Context, string) error) (*models.InstanceStatusResponse, error) {
	inst, err := instanceForActor(ctx, s.instances, actor, id)
	if err != nil {
		return nil, err
	}

	release, ok := s.locks.TryAcquire(inst.ID)
	if !ok {
		return nil, ErrInstanceBusy
	}
	defer release()

	// Re-read under the lock; another operation may have committed
	// between the ownership check and here.
	inst, err = instanceForActor(ctx, s.instances, actor, id)
	if err != nil {
		return nil, err
	}

	if err := validateTransition(inst.Status, op); err != nil {
		return nil, err
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	if err := call(gctx, inst.Name); err != nil {
		if cerr := s.commitState(ctx, inst.ID, models.StatusFailed, nil); cerr != nil {
			log.Printf("[InstanceService] Failed to record FAILED state for %s: %v", inst.Name, cerr)
		}
		return nil, err
	}

	if err := s.commitState(ctx, inst.ID, successState, nil); err != nil {
		return nil, err
	}

	log.Printf("[InstanceService] Instance %s: %s -> %s (%s)", inst.Name, inst.Status, successState, op)

	return &models.InstanceStatusResponse{
		ID:         inst.ID,
		Name:       inst.Name,
		Status:     successState,
		Reconciled: true,
	}, nil
}

// GetStatus reconciles local state with the gateway's report. If a
// state-changing operation is in flight the stored state is returned
// as-is rather than queueing behind a slow gateway call.
func (s *InstanceService) GetStatus(ctx context.Context, actor Actor, id string) (*models.InstanceStatusResponse, error) {
	inst, err := instanceForActor(ctx, s.instances, actor, id)
	if err != nil {
		return nil, err
	}

	release, ok := s.locks.TryAcquire(inst.ID)
	if !ok {
		return &models.InstanceStatusResponse{
			ID:         inst.ID,
			Name:       inst.Name,
			Status:     inst.Status,
			Reconciled: false,
		}, nil
	}
	defer release()

	inst, err = instanceForActor(ctx, s.instances, actor, id)
	if err != nil {
		return nil, err
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	state, err := s.gateway.ConnectionState(gctx, inst.Name)
	if err != nil {
		// A single failed status read does not move the state machine;
		// the stored state stays authoritative.
		return nil, err
	}

	mapped := reconcileState(inst.Name, inst.Status, state.State)

	var phone *string
	if state.OwnerJID != "" {
		phone = &state.OwnerJID
	}

	if mapped != inst.Status || phone != nil {
		if err := s.commitState(ctx, inst.ID, mapped, phone); err != nil {
			return nil, err
		}
	}

	return &models.InstanceStatusResponse{
		ID:         inst.ID,
		Name:       inst.Name,
		Status:     mapped,
		QRCode:     state.QRCode,
		Reconciled: true,
	}, nil
}

// Delete removes the instance. The gateway-side delete is best-effort:
// the local record always goes away, since a dangling local row
// pointing at a gateway-gone instance is the worse failure mode.
// Deletes queue behind an in-flight operation instead of failing.
func (s *InstanceService) Delete(ctx context.Context, actor Actor, id string) error {
	inst, err := instanceForActor(ctx, s.instances, actor, id)
	if err != nil {
		return err
	}

	release := s.locks.Acquire(inst.ID)
	defer release()

	inst, err = instanceForActor(ctx, s.instances, actor, id)
	if err != nil {
		return err
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	if err := s.gateway.Delete(gctx, inst.Name); err != nil {
		log.Printf("[InstanceService] Warning: gateway delete failed for %s, removing local record anyway: %v", inst.Name, err)
	}

	if err := s.instances.Delete(context.WithoutCancel(ctx), inst.ID); err != nil {
		return storageErr("delete instance", err)
	}

	log.Printf("[InstanceService] Instance %s deleted", inst.Name)
	return nil
}

// commitState persists a transition result. Detached from the caller's
// context: once the gateway acted, the outcome must be recorded even if
// the caller went away.
func (s *InstanceService) commitState(ctx context.Context, id, status string, phone *string) error {
	if err := s.instances.UpdateState(context.WithoutCancel(ctx), id, status, phone); err != nil {
		return storageErr("update state", err)
	}
	return nil
}

func (s *InstanceService) toResponse(inst *models.Instance) *models.InstanceResponse {
	return &models.InstanceResponse{
		ID:          inst.ID,
		UserID:      inst.UserID,
		Name:        inst.Name,
		Adapter:     inst.Adapter,
		Status:      inst.Status,
		PhoneNumber: inst.PhoneNumber,
		Settings:    inst.Settings,
		CreatedAt:   inst.CreatedAt.Format(time.RFC3339),
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return page, limit
}

func paginate(page, limit, total int) models.Pagination {
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return models.Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}
