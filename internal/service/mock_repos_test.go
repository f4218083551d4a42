package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"plan-nat/backend/internal/model"
	"plan-nat/backend/internal/repository"
	pkgerrors "plan-nat/backend/pkg/errors"
)

// ── 内存存储（所有 mock repo 共享） ──

type memStore struct {
	mu            sync.Mutex
	users         map[string]*model.User
	categories    map[string]*model.Category
	slots         map[string]*model.Slot
	enrollments   map[string]*model.Enrollment
	notifications map[string]*model.Notification
	seq           int
	clock         time.Time

	// fail 按 "Repo.Method" 注入错误
	fail map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*model.User),
		categories:    make(map[string]*model.Category),
		slots:         make(map[string]*model.Slot),
		enrollments:   make(map[string]*model.Enrollment),
		notifications: make(map[string]*model.Notification),
		clock:         time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		fail:          make(map[string]error),
	}
}

func (s *memStore) repository() *repository.Repository {
	return &repository.Repository{
		User:         &mockUserRepo{s},
		Category:     &mockCategoryRepo{s},
		Slot:         &mockSlotRepo{s},
		Enrollment:   &mockEnrollmentRepo{s},
		Notification: &mockNotificationRepo{s},
	}
}

// 调用方需持有 s.mu
func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// 调用方需持有 s.mu；每次调用时间前进 1 秒，保证 created_at 严格递增
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) failure(op string) error {
	return s.fail[op]
}

// ── 测试数据辅助 ──

func (s *memStore) addCategory(code string, weeklyLimit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[code] = &model.Category{Code: code, Name: code, WeeklyLimit: weeklyLimit}
}

func (s *memStore) addUser(id, category string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &model.User{
		UserID:   id,
		Name:     "会员" + id,
		Email:    id + "@club.test",
		Role:     model.RoleMember,
		IsActive: true,
	}
	if category != "" {
		c := category
		u.Category = &c
	}
	s.users[id] = u
	return u
}

func (s *memStore) addSlot(capacity int, categories ...string) *model.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := &model.Slot{
		SlotID:            s.nextID("slot"),
		Name:              "周二晚训",
		DayOfWeek:         2,
		StartTime:         "19:00:00",
		EndTime:           "20:30:00",
		Capacity:          capacity,
		AllowedCategories: model.StringArray(categories),
		IsActive:          true,
	}
	slot.Version = 1
	slot.CreatedAt = s.tick()
	s.slots[slot.SlotID] = slot
	return slot
}

// seed 直接写入报名记录，pos 为 0 表示已报名
func (s *memStore) seed(userID, slotID string, pos int) *model.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &model.Enrollment{
		EnrollmentID: s.nextID("enr"),
		UserID:       userID,
		SlotID:       slotID,
		Status:       model.EnrollmentStatusEnrolled,
	}
	if pos > 0 {
		p := pos
		e.Status = model.EnrollmentStatusWaiting
		e.WaitPosition = &p
	}
	e.CreatedAt = s.tick()
	s.enrollments[e.EnrollmentID] = e
	return e
}

// snapshot 返回时段的已报名用户集合与 用户→候补位次
func (s *memStore) snapshot(slotID string) (map[string]bool, map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrolled := make(map[string]bool)
	waiting := make(map[string]int)
	for _, e := range s.enrollments {
		if e.SlotID != slotID {
			continue
		}
		if e.Status == model.EnrollmentStatusEnrolled {
			enrolled[e.UserID] = true
		} else {
			waiting[e.UserID] = *e.WaitPosition
		}
	}
	return enrolled, waiting
}

func cloneEnrollment(e *model.Enrollment) model.Enrollment {
	c := *e
	if e.WaitPosition != nil {
		p := *e.WaitPosition
		c.WaitPosition = &p
	}
	return c
}

// ── Mock UserRepository ──

type mockUserRepo struct{ s *memStore }

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("User.GetByID"); err != nil {
		return nil, err
	}
	if u, ok := m.s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock CategoryRepository ──

type mockCategoryRepo struct{ s *memStore }

func (m *mockCategoryRepo) GetByCode(_ context.Context, code string) (*model.Category, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if c, ok := m.s.categories[code]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCategoryRepo) List(_ context.Context) ([]model.Category, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var list []model.Category
	for _, c := range m.s.categories {
		list = append(list, *c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list, nil
}

// ── Mock SlotRepository ──

type mockSlotRepo struct{ s *memStore }

func (m *mockSlotRepo) Create(_ context.Context, slot *model.Slot) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if slot.SlotID == "" {
		slot.SlotID = m.s.nextID("slot")
	}
	slot.Version = 1
	slot.CreatedAt = m.s.tick()
	slot.UpdatedAt = slot.CreatedAt
	c := *slot
	m.s.slots[slot.SlotID] = &c
	return nil
}

func (m *mockSlotRepo) GetByID(_ context.Context, id string) (*model.Slot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("Slot.GetByID"); err != nil {
		return nil, err
	}
	if sl, ok := m.s.slots[id]; ok {
		c := *sl
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSlotRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Slot, error) {
	return m.GetByID(ctx, id)
}

func (m *mockSlotRepo) List(_ context.Context, filter repository.SlotFilter) ([]model.Slot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var list []model.Slot
	for _, sl := range m.s.slots {
		if !filter.IncludeInactive && !sl.IsActive {
			continue
		}
		if filter.DayOfWeek != nil && sl.DayOfWeek != *filter.DayOfWeek {
			continue
		}
		list = append(list, *sl)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (m *mockSlotRepo) Update(_ context.Context, slot *model.Slot) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("Slot.Update"); err != nil {
		return err
	}
	cur, ok := m.s.slots[slot.SlotID]
	if !ok || cur.Version != slot.Version {
		return pkgerrors.ErrOptimisticLock
	}
	slot.Version++
	c := *slot
	m.s.slots[slot.SlotID] = &c
	return nil
}

func (m *mockSlotRepo) UpdateCapacity(_ context.Context, id string, capacity int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("Slot.UpdateCapacity"); err != nil {
		return err
	}
	if sl, ok := m.s.slots[id]; ok {
		sl.Capacity = capacity
		sl.Version++
	}
	return nil
}

func (m *mockSlotRepo) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, e := range m.s.enrollments {
		if e.SlotID == id {
			return &pgconn.PgError{Code: "23503"}
		}
	}
	delete(m.s.slots, id)
	return nil
}

// ── Mock EnrollmentRepository ──

type mockEnrollmentRepo struct{ s *memStore }

// 调用方需持有 s.mu
func (m *mockEnrollmentRepo) withUser(e *model.Enrollment) model.Enrollment {
	c := cloneEnrollment(e)
	if u, ok := m.s.users[e.UserID]; ok {
		uc := *u
		c.User = &uc
	}
	return c
}

// 调用方需持有 s.mu
func (m *mockEnrollmentRepo) filter(pred func(e *model.Enrollment) bool) []model.Enrollment {
	var list []model.Enrollment
	for _, e := range m.s.enrollments {
		if pred(e) {
			list = append(list, m.withUser(e))
		}
	}
	return list
}

func (m *mockEnrollmentRepo) Create(_ context.Context, e *model.Enrollment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("Enrollment.Create"); err != nil {
		return err
	}
	for _, existing := range m.s.enrollments {
		if existing.UserID == e.UserID && existing.SlotID == e.SlotID {
			return &pgconn.PgError{Code: "23505", ConstraintName: "uq_enrollments_user_slot"}
		}
	}
	e.EnrollmentID = m.s.nextID("enr")
	e.CreatedAt = m.s.tick()
	e.UpdatedAt = e.CreatedAt
	c := cloneEnrollment(e)
	m.s.enrollments[e.EnrollmentID] = &c
	return nil
}

func (m *mockEnrollmentRepo) GetByUserAndSlot(_ context.Context, userID, slotID string) (*model.Enrollment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, e := range m.s.enrollments {
		if e.UserID == userID && e.SlotID == slotID {
			c := cloneEnrollment(e)
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEnrollmentRepo) ListBySlot(_ context.Context, slotID string) ([]model.Enrollment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	list := m.filter(func(e *model.Enrollment) bool { return e.SlotID == slotID })
	sort.Slice(list, func(i, j int) bool {
		if list[i].Status != list[j].Status {
			return list[i].Status < list[j].Status
		}
		if list[i].WaitPosition != nil && list[j].WaitPosition != nil && *list[i].WaitPosition != *list[j].WaitPosition {
			return *list[i].WaitPosition < *list[j].WaitPosition
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (m *mockEnrollmentRepo) ListByUser(_ context.Context, userID string) ([]model.Enrollment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var list []model.Enrollment
	for _, e := range m.s.enrollments {
		if e.UserID != userID {
			continue
		}
		c := cloneEnrollment(e)
		if sl, ok := m.s.slots[e.SlotID]; ok {
			sc := *sl
			c.Slot = &sc
		}
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (m *mockEnrollmentRepo) ListEnrolledNewest(_ context.Context, slotID string, limit int) ([]model.Enrollment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	list := m.filter(func(e *model.Enrollment) bool {
		return e.SlotID == slotID && e.Status == model.EnrollmentStatusEnrolled
	})
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *mockEnrollmentRepo) ListWaiting(_ context.Context, slotID string) ([]model.Enrollment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("Enrollment.ListWaiting"); err != nil {
		return nil, err
	}
	list := m.filter(func(e *model.Enrollment) bool {
		return e.SlotID == slotID && e.Status == model.EnrollmentStatusWaiting
	})
	sort.Slice(list, func(i, j int) bool {
		if *list[i].WaitPosition != *list[j].WaitPosition {
			return *list[i].WaitPosition < *list[j].WaitPosition
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (m *mockEnrollmentRepo) CountBySlot(_ context.Context, slotID, status string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("Enrollment.CountBySlot"); err != nil {
		return 0, err
	}
	var n int64
	for _, e := range m.s.enrollments {
		if e.SlotID == slotID && (status == "" || e.Status == status) {
			n++
		}
	}
	return n, nil
}

func (m *mockEnrollmentRepo) CountByUser(_ context.Context, userID string, statuses ...string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, e := range m.s.enrollments {
		if e.UserID != userID {
			continue
		}
		if len(statuses) == 0 {
			n++
			continue
		}
		for _, st := range statuses {
			if e.Status == st {
				n++
				break
			}
		}
	}
	return n, nil
}

func (m *mockEnrollmentRepo) MaxWaitPosition(_ context.Context, slotID string) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	max := 0
	for _, e := range m.s.enrollments {
		if e.SlotID == slotID && e.WaitPosition != nil && *e.WaitPosition > max {
			max = *e.WaitPosition
		}
	}
	return max, nil
}

func (m *mockEnrollmentRepo) UpdateStatus(_ context.Context, id, status string, position *int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("Enrollment.UpdateStatus"); err != nil {
		return err
	}
	e, ok := m.s.enrollments[id]
	if !ok {
		return nil
	}
	e.Status = status
	e.WaitPosition = nil
	if position != nil {
		p := *position
		e.WaitPosition = &p
	}
	return nil
}

func (m *mockEnrollmentRepo) ShiftWaitPositions(_ context.Context, slotID string, after int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, e := range m.s.enrollments {
		if e.SlotID == slotID && e.Status == model.EnrollmentStatusWaiting && *e.WaitPosition > after {
			*e.WaitPosition--
		}
	}
	return nil
}

func (m *mockEnrollmentRepo) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.enrollments, id)
	return nil
}

func (m *mockEnrollmentRepo) DeleteBySlot(_ context.Context, slotID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, e := range m.s.enrollments {
		if e.SlotID == slotID {
			delete(m.s.enrollments, id)
			n++
		}
	}
	return n, nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct{ s *memStore }

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n.NotificationID = m.s.nextID("ntf")
	n.CreatedAt = m.s.tick()
	c := *n
	m.s.notifications[n.NotificationID] = &c
	return nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, offset, limit int) ([]model.Notification, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var all []model.Notification
	for _, n := range m.s.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			all = append(all, *n)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockNotificationRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, x := range m.s.notifications {
		if x.UserID == userID && !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n, ok := m.s.notifications[id]
	if !ok || n.UserID != userID {
		return 0, nil
	}
	n.IsRead = true
	return 1, nil
}

func (m *mockNotificationRepo) MarkAllRead(_ context.Context, userID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, n := range m.s.notifications {
		if n.UserID == userID {
			n.IsRead = true
		}
	}
	return nil
}

// ── Mock Notifier ──

type mockNotifier struct {
	mu   sync.Mutex
	msgs []NotifyMessage
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, msg NotifyMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return m.err
}

func (m *mockNotifier) sent() []NotifyMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]NotifyMessage(nil), m.msgs...)
}
