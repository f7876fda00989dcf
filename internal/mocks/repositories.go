package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/field-worklog-bot/internal/models"
	"github.com/field-worklog-bot/internal/repository"
)

// Verify interface compliance
var (
	_ repository.UserRepository      = (*MockUserRepository)(nil)
	_ repository.ReferenceRepository = (*MockReferenceRepository)(nil)
	_ repository.ReportRepository    = (*MockReportRepository)(nil)
	_ repository.MirrorRepository    = (*MockMirrorRepository)(nil)
	_ repository.SinkRepository      = (*MockSinkRepository)(nil)
)

// NewRepositories returns in-memory repositories seeded with the default reference lists
func NewRepositories() *repository.Repositories {
	return &repository.Repositories{
		User:      NewMockUserRepository(),
		Reference: NewMockReferenceRepository(),
		Report:    NewMockReportRepository(),
		Mirror:    NewMockMirrorRepository(),
		Sink:      NewMockSinkRepository(),
	}
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mu         sync.Mutex
	Users      map[int64]*models.User
	Roles      map[int64]models.Role
	Brigadiers map[int64]bool
	RoleErr    error
	UpsertErr  error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users:      make(map[int64]*models.User),
		Roles:      make(map[int64]models.Role),
		Brigadiers: make(map[int64]bool),
	}
}

func (m *MockUserRepository) Upsert(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if prev, ok := m.Users[user.ID]; ok && user.Timezone == "" {
		user.Timezone = prev.Timezone
	}
	u := *user
	m.Users[user.ID] = &u
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (m *MockUserRepository) AssignedRole(ctx context.Context, id int64) (models.Role, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RoleErr != nil {
		return "", false, m.RoleErr
	}
	role, ok := m.Roles[id]
	return role, ok, nil
}

func (m *MockUserRepository) IsBrigadier(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Brigadiers[id], nil
}

// MockReferenceRepository serves fixed reference lists
type MockReferenceRepository struct {
	LocationList    []models.Location
	ActivityList    []models.Activity
	MachineKindList []models.MachineKind
	MachineList     []models.Machine
	CropList        []models.Crop
}

// Reference ids used by tests
const (
	KindTractor int64 = 1
	KindCombine int64 = 2
	KindTruck   int64 = 3

	LocNorthField int64 = 1
	LocSouthField int64 = 2
	LocGrainYard  int64 = 3

	ActWeeding      int64 = 1
	ActSorting      int64 = 2
	ActPloughing    int64 = 3
	ActHarvesting   int64 = 4
	ActGrainHauling int64 = 5

	MachineMTZ    int64 = 1
	MachineAcros  int64 = 2
	MachineKamaz  int64 = 3
	MachineKamaz2 int64 = 4

	CropCorn  int64 = 1
	CropWheat int64 = 2
)

func NewMockReferenceRepository() *MockReferenceRepository {
	return &MockReferenceRepository{
		LocationList: []models.Location{
			{ID: LocNorthField, Name: "North Field", Group: "Fields"},
			{ID: LocSouthField, Name: "South Field", Group: "Fields"},
			{ID: LocGrainYard, Name: "Grain Yard", Group: "Yards"},
		},
		ActivityList: []models.Activity{
			{ID: ActWeeding, Name: "Weeding", Group: "Field work", Kind: models.WorkManual},
			{ID: ActSorting, Name: "Sorting", Group: "Yard work", Kind: models.WorkManual},
			{ID: ActPloughing, Name: "Ploughing", Group: "Soil", Kind: models.WorkTechnique, MachineKindID: KindTractor},
			{ID: ActHarvesting, Name: "Harvesting", Group: "Harvest", Kind: models.WorkTechnique, MachineKindID: KindCombine},
			{ID: ActGrainHauling, Name: "Grain hauling", Group: "Harvest", Kind: models.WorkTechnique, MachineKindID: KindTruck},
		},
		MachineKindList: []models.MachineKind{
			{ID: KindTractor, Name: "Tractor"},
			{ID: KindCombine, Name: "Combine"},
			{ID: KindTruck, Name: "Truck", IsTruck: true},
		},
		MachineList: []models.Machine{
			{ID: MachineMTZ, Name: "MTZ-82", KindID: KindTractor},
			{ID: MachineAcros, Name: "Acros 595", KindID: KindCombine},
			{ID: MachineKamaz, Name: "KAMAZ-1", KindID: KindTruck},
			{ID: MachineKamaz2, Name: "KAMAZ-2", KindID: KindTruck},
		},
		CropList: []models.Crop{
			{ID: CropCorn, Name: "Corn"},
			{ID: CropWheat, Name: "Wheat"},
		},
	}
}

func (m *MockReferenceRepository) Locations(ctx context.Context) ([]models.Location, error) {
	return m.LocationList, nil
}

func (m *MockReferenceRepository) Location(ctx context.Context, id int64) (*models.Location, error) {
	for _, l := range m.LocationList {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, nil
}

func (m *MockReferenceRepository) Activities(ctx context.Context, kind models.WorkKind, machineKindID int64) ([]models.Activity, error) {
	var out []models.Activity
	for _, a := range m.ActivityList {
		if a.Kind == kind && (machineKindID == 0 || a.MachineKindID == machineKindID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockReferenceRepository) Activity(ctx context.Context, id int64) (*models.Activity, error) {
	for _, a := range m.ActivityList {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *MockReferenceRepository) MachineKinds(ctx context.Context) ([]models.MachineKind, error) {
	return m.MachineKindList, nil
}

func (m *MockReferenceRepository) MachineKind(ctx context.Context, id int64) (*models.MachineKind, error) {
	for _, k := range m.MachineKindList {
		if k.ID == id {
			return &k, nil
		}
	}
	return nil, nil
}

func (m *MockReferenceRepository) MachineKindByName(ctx context.Context, name string) (*models.MachineKind, error) {
	for _, k := range m.MachineKindList {
		if k.Name == name {
			return &k, nil
		}
	}
	return nil, nil
}

func (m *MockReferenceRepository) Machines(ctx context.Context, kindID int64) ([]models.Machine, error) {
	var out []models.Machine
	for _, mc := range m.MachineList {
		if mc.KindID == kindID {
			out = append(out, mc)
		}
	}
	return out, nil
}

func (m *MockReferenceRepository) Machine(ctx context.Context, id int64) (*models.Machine, error) {
	for _, mc := range m.MachineList {
		if mc.ID == id {
			return &mc, nil
		}
	}
	return nil, nil
}

func (m *MockReferenceRepository) Crops(ctx context.Context) ([]models.Crop, error) {
	return m.CropList, nil
}

func (m *MockReferenceRepository) Crop(ctx context.Context, id int64) (*models.Crop, error) {
	for _, c := range m.CropList {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

// MockReportRepository keeps reports in memory and enforces the daily cap
// the same way the SQL statements do
type MockReportRepository struct {
	mu      sync.Mutex
	Reports map[int64]*models.Report
	nextID  int64
	last    time.Time

	Clock       func() time.Time
	CreateCalls int
	UpdateCalls int
	InsertError error
}

func NewMockReportRepository() *MockReportRepository {
	return &MockReportRepository{
		Reports: make(map[int64]*models.Report),
		nextID:  1,
		Clock:   time.Now,
	}
}

// stamp returns the clock's time, nudged forward when it repeats the previous stamp
func (m *MockReportRepository) stamp() time.Time {
	now := m.Clock()
	if now.Equal(m.last) {
		now = m.last.Add(time.Microsecond)
	}
	m.last = now
	return now
}

func (m *MockReportRepository) sum(userID int64, date time.Time, excludeID int64) int {
	total := 0
	day := date.Format(models.DateLayout)
	for _, r := range m.Reports {
		if r.CreatorID == userID && r.ID != excludeID && r.WorkDate.Format(models.DateLayout) == day {
			total += r.Hours
		}
	}
	return total
}

func (m *MockReportRepository) Create(ctx context.Context, report *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.InsertError != nil {
		return m.InsertError
	}

	used := m.sum(report.CreatorID, report.WorkDate, 0)
	if used+report.Hours > models.MaxDailyHours {
		return &models.CapError{Remaining: models.MaxDailyHours - used}
	}

	report.ID = m.nextID
	m.nextID++
	report.CreatedAt = m.stamp()
	report.UpdatedAt = report.CreatedAt
	r := *report
	m.Reports[r.ID] = &r
	return nil
}

func (m *MockReportRepository) Update(ctx context.Context, report *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++

	existing, ok := m.Reports[report.ID]
	if !ok {
		return models.ErrReportNotFound
	}
	used := m.sum(existing.CreatorID, report.WorkDate, report.ID)
	if used+report.Hours > models.MaxDailyHours {
		return &models.CapError{Remaining: models.MaxDailyHours - used}
	}

	report.UpdatedAt = m.stamp()
	r := *report
	r.MachineKind = existing.MachineKind
	r.CreatedAt = existing.CreatedAt
	m.Reports[r.ID] = &r
	return nil
}

func (m *MockReportRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Reports[id]; !ok {
		return models.ErrReportNotFound
	}
	delete(m.Reports, id)
	return nil
}

func (m *MockReportRepository) GetByID(ctx context.Context, id int64) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.Reports[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (m *MockReportRepository) SumHours(ctx context.Context, userID int64, date time.Time, excludeID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sum(userID, date, excludeID), nil
}

func (m *MockReportRepository) Recent(ctx context.Context, userID int64, since time.Time) ([]*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Report
	for _, r := range m.Reports {
		if r.CreatorID == userID && !r.CreatedAt.Before(since) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MockReportRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Reports), nil
}

func (m *MockReportRepository) StreamAll(ctx context.Context, callback func(*models.Report) error) error {
	m.mu.Lock()
	all := make([]*models.Report, 0, len(m.Reports))
	for _, r := range m.Reports {
		c := *r
		all = append(all, &c)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].WorkDate.Equal(all[j].WorkDate) {
			return all[i].WorkDate.Before(all[j].WorkDate)
		}
		return all[i].ID < all[j].ID
	})
	for _, r := range all {
		if err := callback(r); err != nil {
			return err
		}
	}
	return nil
}

// MockMirrorRepository keeps mirror entries in memory
type MockMirrorRepository struct {
	mu        sync.Mutex
	Entries   map[int64]*models.MirrorEntry
	RemoveErr error
}

func NewMockMirrorRepository() *MockMirrorRepository {
	return &MockMirrorRepository{Entries: make(map[int64]*models.MirrorEntry)}
}

func (m *MockMirrorRepository) All(ctx context.Context) ([]*models.MirrorEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.MirrorEntry, 0, len(m.Entries))
	for _, e := range m.Entries {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ObjectID != out[j].ObjectID {
			return out[i].ObjectID < out[j].ObjectID
		}
		return out[i].RowNumber < out[j].RowNumber
	})
	return out, nil
}

func (m *MockMirrorRepository) Create(ctx context.Context, entry *models.MirrorEntry) error {
	// writes fail on a cancelled context as they do through database/sql
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *entry
	m.Entries[e.ReportID] = &e
	return nil
}

func (m *MockMirrorRepository) Touch(ctx context.Context, reportID int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.Entries[reportID]; ok {
		e.LastSyncedAt = at
	}
	return nil
}

func (m *MockMirrorRepository) Remove(ctx context.Context, entry *models.MirrorEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	delete(m.Entries, entry.ReportID)
	for _, e := range m.Entries {
		if e.ObjectID == entry.ObjectID && e.RowNumber > entry.RowNumber {
			e.RowNumber--
		}
	}
	return nil
}

// Get returns a copy of the entry for a report, if any
func (m *MockMirrorRepository) Get(reportID int64) (models.MirrorEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Entries[reportID]
	if !ok {
		return models.MirrorEntry{}, false
	}
	return *e, true
}

// MockSinkRepository keeps monthly sink records in memory
type MockSinkRepository struct {
	mu    sync.Mutex
	Sinks map[models.Period]*models.MonthlySink
}

func NewMockSinkRepository() *MockSinkRepository {
	return &MockSinkRepository{Sinks: make(map[models.Period]*models.MonthlySink)}
}

func (m *MockSinkRepository) Get(ctx context.Context, period models.Period) (*models.MonthlySink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Sinks[period]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (m *MockSinkRepository) Create(ctx context.Context, sink *models.MonthlySink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *sink
	m.Sinks[s.Period()] = &s
	return nil
}

func (m *MockSinkRepository) List(ctx context.Context) ([]*models.MonthlySink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.MonthlySink, 0, len(m.Sinks))
	for _, s := range m.Sinks {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period().Before(out[j].Period()) })
	return out, nil
}
