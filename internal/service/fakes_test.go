package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/client"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/repository"
)

// In-memory store fakes. They reproduce the repository contract the
// service layer relies on: repository.ErrNotFound for absent rows and
// committed-row visibility for the counting queries.

type fakeInstanceStore struct {
	mu        sync.Mutex
	instances map[string]*models.Instance
	createErr error
}

func newFakeInstanceStore() *fakeInstanceStore {
	return &fakeInstanceStore{instances: make(map[string]*models.Instance)}
}

func (f *fakeInstanceStore) Create(ctx context.Context, inst *models.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *inst
	f.instances[inst.ID] = &cp
	return nil
}

func (f *fakeInstanceStore) GetByID(ctx context.Context, id string) (*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (f *fakeInstanceStore) GetByName(ctx context.Context, name string) (*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.instances {
		if inst.Name == name {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeInstanceStore) List(ctx context.Context, limit, offset int) ([]*models.Instance, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*models.Instance
	for _, inst := range f.instances {
		cp := *inst
		all = append(all, &cp)
	}
	return window(all, limit, offset), len(all), nil
}

func (f *fakeInstanceStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Instance, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owned []*models.Instance
	for _, inst := range f.instances {
		if inst.UserID == userID {
			cp := *inst
			owned = append(owned, &cp)
		}
	}
	return window(owned, limit, offset), len(owned), nil
}

func (f *fakeInstanceStore) CountByUser(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, inst := range f.instances {
		if inst.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeInstanceStore) UpdateSettings(ctx context.Context, id string, s models.InstanceSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[id]
	if !ok {
		return repository.ErrNotFound
	}
	inst.Settings = s
	return nil
}

func (f *fakeInstanceStore) UpdateState(ctx context.Context, id, status string, phoneNumber *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[id]
	if !ok {
		return repository.ErrNotFound
	}
	inst.Status = status
	if phoneNumber != nil {
		inst.PhoneNumber = phoneNumber
	}
	return nil
}

func (f *fakeInstanceStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.instances[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.instances, id)
	return nil
}

func window(items []*models.Instance, limit, offset int) []*models.Instance {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User)}
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserStore) List(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*models.User
	for _, user := range f.users {
		cp := *user
		all = append(all, &cp)
	}
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (f *fakeUserStore) Update(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

type fakeLimitsStore struct {
	mu     sync.Mutex
	limits map[string]*models.UserLimits
}

func newFakeLimitsStore() *fakeLimitsStore {
	return &fakeLimitsStore{limits: make(map[string]*models.UserLimits)}
}

func (f *fakeLimitsStore) GetByUserID(ctx context.Context, userID string) (*models.UserLimits, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	limits, ok := f.limits[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *limits
	return &cp, nil
}

func (f *fakeLimitsStore) Upsert(ctx context.Context, limits *models.UserLimits) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *limits
	f.limits[limits.UserID] = &cp
	return nil
}

func (f *fakeLimitsStore) Delete(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.limits, userID)
	return nil
}

// fakeMessageStore mirrors the production join: CountForUserSince counts
// records whose instance belongs to the user, so each record's owner
// must be registered via owners.
type fakeMessageStore struct {
	mu       sync.Mutex
	messages []*models.Message
	owners   map[string]string // instance id -> user id
	nextID   int
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{owners: make(map[string]string)}
}

func (f *fakeMessageStore) own(instanceID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[instanceID] = userID
}

func (f *fakeMessageStore) Insert(ctx context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *msg
	if cp.ID == "" {
		f.nextID++
		cp.ID = fmt.Sprintf("msg-%d", f.nextID)
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeMessageStore) CountForUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, msg := range f.messages {
		if f.owners[msg.InstanceID] == userID && !msg.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageStore) ListByInstance(ctx context.Context, instanceID string, limit, offset int) ([]*models.Message, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*models.Message
	for _, msg := range f.messages {
		if msg.InstanceID == instanceID {
			cp := *msg
			matched = append(matched, &cp)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (f *fakeMessageStore) byStatus(status string) []*models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*models.Message
	for _, msg := range f.messages {
		if msg.Status == status {
			matched = append(matched, msg)
		}
	}
	return matched
}

// fakeGateway scripts gateway behavior per operation and counts calls.
// Nil funcs succeed with zero values.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	createFn   func(ctx context.Context, name, adapter string, settings *models.InstanceSettings) (*client.CreateInstanceResult, error)
	stateFn    func(ctx context.Context, name string) (*client.ConnectionState, error)
	connectFn  func(ctx context.Context, name string) error
	logoutFn   func(ctx context.Context, name string) error
	restartFn  func(ctx context.Context, name string) error
	deleteFn   func(ctx context.Context, name string) error
	sendFn     func(ctx context.Context, name, number, text, mediaURL string) (string, error)
	checkFn    func(ctx context.Context, name string, numbers []string) ([]client.NumberCheck, error)
	settingsFn func(ctx context.Context, name string, settings *models.InstanceSettings) error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(map[string]int)}
}

func (f *fakeGateway) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeGateway) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGateway) CreateInstance(ctx context.Context, name, adapter string, settings *models.InstanceSettings) (*client.CreateInstanceResult, error) {
	f.record("create")
	if f.createFn != nil {
		return f.createFn(ctx, name, adapter, settings)
	}
	return &client.CreateInstanceResult{Token: "tok-" + name, QRCode: "qr-" + name}, nil
}

func (f *fakeGateway) ConnectionState(ctx context.Context, name string) (*client.ConnectionState, error) {
	f.record("state")
	if f.stateFn != nil {
		return f.stateFn(ctx, name)
	}
	return &client.ConnectionState{State: "close"}, nil
}

func (f *fakeGateway) Connect(ctx context.Context, name string) error {
	f.record("connect")
	if f.connectFn != nil {
		return f.connectFn(ctx, name)
	}
	return nil
}

func (f *fakeGateway) Logout(ctx context.Context, name string) error {
	f.record("logout")
	if f.logoutFn != nil {
		return f.logoutFn(ctx, name)
	}
	return nil
}

func (f *fakeGateway) Restart(ctx context.Context, name string) error {
	f.record("restart")
	if f.restartFn != nil {
		return f.restartFn(ctx, name)
	}
	return nil
}

func (f *fakeGateway) Delete(ctx context.Context, name string) error {
	f.record("delete")
	if f.deleteFn != nil {
		return f.deleteFn(ctx, name)
	}
	return nil
}

func (f *fakeGateway) SendText(ctx context.Context, name, number, text, mediaURL string) (string, error) {
	f.record("send")
	if f.sendFn != nil {
		return f.sendFn(ctx, name, number, text, mediaURL)
	}
	return "wamid-1", nil
}

func (f *fakeGateway) CheckNumbers(ctx context.Context, name string, numbers []string) ([]client.NumberCheck, error) {
	f.record("check")
	if f.checkFn != nil {
		return f.checkFn(ctx, name, numbers)
	}
	var results []client.NumberCheck
	for _, n := range numbers {
		results = append(results, client.NumberCheck{JID: n + "@s.whatsapp.net", Exists: true})
	}
	return results, nil
}

func (f *fakeGateway) SetSettings(ctx context.Context, name string, settings *models.InstanceSettings) error {
	f.record("settings")
	if f.settingsFn != nil {
		return f.settingsFn(ctx, name, settings)
	}
	return nil
}

// testEnv wires the fakes into a full service stack with one CLIENT
// user and one ADMIN user pre-created.
type testEnv struct {
	instances *fakeInstanceStore
	users     *fakeUserStore
	limits    *fakeLimitsStore
	messages  *fakeMessageStore
	gateway   *fakeGateway
	ledger    *Ledger

	instanceService *InstanceService
	messageService  *MessageService
	userService     *UserService
}

var (
	testClient = Actor{UserID: "user-1", Role: models.RoleClient}
	testAdmin  = Actor{UserID: "admin-1", Role: models.RoleAdmin}
)

func newTestEnv(defaults models.UserLimits) *testEnv {
	env := &testEnv{
		instances: newFakeInstanceStore(),
		users:     newFakeUserStore(),
		limits:    newFakeLimitsStore(),
		messages:  newFakeMessageStore(),
		gateway:   newFakeGateway(),
	}

	env.users.users[testClient.UserID] = &models.User{
		ID: testClient.UserID, Name: "Client", Email: "client@example.com",
		Role: models.RoleClient, IsActive: true,
	}
	env.users.users[testAdmin.UserID] = &models.User{
		ID: testAdmin.UserID, Name: "Admin", Email: "admin@example.com",
		Role: models.RoleAdmin, IsActive: true,
	}

	env.ledger = NewLedger(env.instances, env.messages, env.limits, env.users, defaults, time.UTC, nil)
	env.instanceService = NewInstanceService(env.instances, env.gateway, env.ledger, models.AdapterBaileys, time.Second)
	env.messageService = NewMessageService(env.instances, env.messages, env.gateway, env.ledger, time.Second, nil)
	env.userService = NewUserService(env.users, env.limits, env.instances, defaults)
	return env
}

// seedInstance commits an instance row directly, bypassing admission.
func (env *testEnv) seedInstance(id, userID, name, status string) *models.Instance {
	inst := &models.Instance{
		ID: id, UserID: userID, Name: name,
		Adapter: models.AdapterBaileys, Token: "tok-" + name,
		Status: status, CreatedAt: time.Now(),
	}
	env.instances.instances[id] = inst
	env.messages.own(id, userID)
	return inst
}
