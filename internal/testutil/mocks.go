package testutil

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockUserRepository is a mock implementation of domain.UserRepository
type MockUserRepository struct {
	mu       sync.Mutex
	Users    map[string]*domain.User
	ByID     map[uuid.UUID]*domain.User
	CreateFn func(auth0ID, email string, name, pictureURL *string) (*domain.User, error)
	StatsErr error
}

// NewMockUserRepository creates a new MockUserRepository
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.User),
		ByID:  make(map[uuid.UUID]*domain.User),
	}
}

// GetByID retrieves a user by ID
func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.ByID[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, domain.ErrUserNotFound
}

// GetByAuth0ID retrieves a user by Auth0 ID
func (m *MockUserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.Users[auth0ID]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, domain.ErrUserNotFound
}

// CreateOrGetByAuth0ID creates or retrieves a user by Auth0 ID
func (m *MockUserRepository) CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name, pictureURL *string) (*domain.User, error) {
	if m.CreateFn != nil {
		return m.CreateFn(auth0ID, email, name, pictureURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.Users[auth0ID]; ok {
		return user, nil
	}
	user := &domain.User{
		ID:         uuid.New(),
		Auth0ID:    auth0ID,
		Email:      email,
		Name:       name,
		PictureURL: pictureURL,
		Currency:   domain.DefaultCurrency,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	m.Users[auth0ID] = user
	m.ByID[user.ID] = user
	return user, nil
}

// UpdateProfile changes the name and/or currency of a user
func (m *MockUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name *string, currency *string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.ByID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if name != nil {
		user.Name = name
	}
	if currency != nil {
		user.Currency = *currency
	}
	user.UpdatedAt = time.Now()
	copied := *user
	return &copied, nil
}

// UpdateStats overwrites the cached stats of a user
func (m *MockUserRepository) UpdateStats(ctx context.Context, id uuid.UUID, stats domain.UserStats) error {
	if m.StatsErr != nil {
		return m.StatsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.ByID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Stats = stats
	return nil
}

// AddUser adds a user to the mock repository
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[user.Auth0ID] = user
	m.ByID[user.ID] = user
}

// MockExpenseRepository is an in-memory ledger of expenses
type MockExpenseRepository struct {
	mu       sync.Mutex
	Expenses map[int32]*domain.Expense
	nextID   int32
	SumErr   error
}

// NewMockExpenseRepository creates a new MockExpenseRepository
func NewMockExpenseRepository() *MockExpenseRepository {
	return &MockExpenseRepository{
		Expenses: make(map[int32]*domain.Expense),
		nextID:   1,
	}
}

func copyExpense(e *domain.Expense) *domain.Expense {
	c := *e
	return &c
}

// Create stores a new expense
func (m *MockExpenseRepository) Create(ctx context.Context, expense *domain.Expense) (*domain.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expense.ID = m.nextID
	m.nextID++
	expense.CreatedAt = time.Now()
	expense.UpdatedAt = expense.CreatedAt
	m.Expenses[expense.ID] = copyExpense(expense)
	return copyExpense(expense), nil
}

// GetByID retrieves an expense owned by userID
func (m *MockExpenseRepository) GetByID(ctx context.Context, userID uuid.UUID, id int32) (*domain.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Expenses[id]
	if !ok || e.UserID != userID {
		return nil, domain.ErrExpenseNotFound
	}
	return copyExpense(e), nil
}

// List returns a filtered, paginated page of expenses, newest first
func (m *MockExpenseRepository) List(ctx context.Context, userID uuid.UUID, filters *domain.ExpenseFilters) (*domain.PaginatedExpenses, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*domain.Expense
	for _, e := range m.Expenses {
		if e.UserID != userID {
			continue
		}
		if filters.Category != nil && e.Category != *filters.Category {
			continue
		}
		if filters.Status != nil && e.Status != *filters.Status {
			continue
		}
		if filters.StartDate != nil && e.ExpenseDate.Before(*filters.StartDate) {
			continue
		}
		if filters.EndDate != nil && e.ExpenseDate.After(*filters.EndDate) {
			continue
		}
		matched = append(matched, copyExpense(e))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ExpenseDate.Equal(matched[j].ExpenseDate) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].ExpenseDate.After(matched[j].ExpenseDate)
	})

	total := int64(len(matched))
	start := int((filters.Page - 1) * filters.PageSize)
	if start > len(matched) {
		start = len(matched)
	}
	end := start + int(filters.PageSize)
	if end > len(matched) {
		end = len(matched)
	}

	totalPages := int32(0)
	if total > 0 {
		totalPages = int32((total + int64(filters.PageSize) - 1) / int64(filters.PageSize))
	}

	return &domain.PaginatedExpenses{
		Data:       matched[start:end],
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// Update replaces the mutable fields of an expense
func (m *MockExpenseRepository) Update(ctx context.Context, expense *domain.Expense) (*domain.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Expenses[expense.ID]
	if !ok || existing.UserID != expense.UserID {
		return nil, domain.ErrExpenseNotFound
	}
	expense.CreatedAt = existing.CreatedAt
	expense.UpdatedAt = time.Now()
	m.Expenses[expense.ID] = copyExpense(expense)
	return copyExpense(expense), nil
}

// Delete removes an expense
func (m *MockExpenseRepository) Delete(ctx context.Context, userID uuid.UUID, id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Expenses[id]
	if !ok || e.UserID != userID {
		return domain.ErrExpenseNotFound
	}
	delete(m.Expenses, id)
	return nil
}

// SetReceipt attaches receipt metadata to an expense
func (m *MockExpenseRepository) SetReceipt(ctx context.Context, userID uuid.UUID, id int32, receipt *domain.Receipt) (*domain.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Expenses[id]
	if !ok || e.UserID != userID {
		return nil, domain.ErrExpenseNotFound
	}
	e.Receipt = receipt
	return copyExpense(e), nil
}

// SumCompleted sums completed expenses in scope and window
func (m *MockExpenseRepository) SumCompleted(ctx context.Context, userID uuid.UUID, scope domain.BudgetScope, window domain.Window) (decimal.Decimal, error) {
	if m.SumErr != nil {
		return decimal.Zero, m.SumErr
	}
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, e := range m.Expenses {
		if e.UserID == userID && e.Counts() && scope.Matches(e.Category) && window.Contains(e.ExpenseDate) {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

// SumCompletedByMonth groups completed expenses in [from, to] by month
func (m *MockExpenseRepository) SumCompletedByMonth(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.MonthlyExpenseTotal, error) {
	if m.SumErr != nil {
		return nil, m.SumErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	window := domain.Window{Start: domain.TruncateDay(from), End: domain.TruncateDay(to)}
	byMonth := make(map[[2]int]decimal.Decimal)
	for _, e := range m.Expenses {
		if e.UserID != userID || !e.Counts() || !window.Contains(e.ExpenseDate) {
			continue
		}
		key := [2]int{e.ExpenseDate.Year(), int(e.ExpenseDate.Month())}
		byMonth[key] = byMonth[key].Add(e.Amount)
	}

	result := make([]*domain.MonthlyExpenseTotal, 0, len(byMonth))
	for key, total := range byMonth {
		result = append(result, &domain.MonthlyExpenseTotal{Year: key[0], Month: key[1], Total: total})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Month < result[j].Month
	})
	return result, nil
}

// SumAllCompleted sums every completed expense of a user
func (m *MockExpenseRepository) SumAllCompleted(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if m.SumErr != nil {
		return decimal.Zero, m.SumErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, e := range m.Expenses {
		if e.UserID == userID && e.Counts() {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

// AddExpense inserts an expense directly, bypassing any aggregate update
func (m *MockExpenseRepository) AddExpense(expense *domain.Expense) *domain.Expense {
	created, _ := m.Create(context.Background(), expense)
	return created
}

// MockBudgetRepository is an in-memory budget store with optimistic versioning
type MockBudgetRepository struct {
	mu      sync.Mutex
	Budgets map[int32]*domain.Budget
	nextID  int32

	// BeforeSave runs inside Save before the version check, letting tests
	// simulate a concurrent writer.
	BeforeSave func(budget *domain.Budget)
	SaveCalls  int
}

// NewMockBudgetRepository creates a new MockBudgetRepository
func NewMockBudgetRepository() *MockBudgetRepository {
	return &MockBudgetRepository{
		Budgets: make(map[int32]*domain.Budget),
		nextID:  1,
	}
}

func (m *MockBudgetRepository) overlapsLocked(userID uuid.UUID, scope domain.BudgetScope, w domain.Window, exclude int32) []*domain.Budget {
	var result []*domain.Budget
	for _, b := range m.Budgets {
		if b.ID == exclude || b.UserID != userID || !b.IsActive || b.Scope != scope {
			continue
		}
		if b.Window().Overlaps(w) {
			result = append(result, b.Clone())
		}
	}
	return result
}

// Create stores a budget, rejecting overlapping active budgets like the
// database exclusion constraint does
func (m *MockBudgetRepository) Create(ctx context.Context, budget *domain.Budget) (*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if budget.IsActive && len(m.overlapsLocked(budget.UserID, budget.Scope, budget.Window(), 0)) > 0 {
		return nil, domain.ErrBudgetOverlap
	}
	stored := budget.Clone()
	stored.ID = m.nextID
	m.nextID++
	stored.Version = 1
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.Budgets[stored.ID] = stored
	return stored.Clone(), nil
}

// GetByID retrieves a budget owned by userID
func (m *MockBudgetRepository) GetByID(ctx context.Context, userID uuid.UUID, id int32) (*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Budgets[id]
	if !ok || b.UserID != userID {
		return nil, domain.ErrBudgetNotFound
	}
	return b.Clone(), nil
}

// ListByUser returns a user's budgets ordered by start date descending
func (m *MockBudgetRepository) ListByUser(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Budget
	for _, b := range m.Budgets {
		if b.UserID != userID || (activeOnly && !b.IsActive) {
			continue
		}
		result = append(result, b.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartDate.After(result[j].StartDate)
	})
	return result, nil
}

// FindOverlapping returns active budgets of the same scope overlapping w
func (m *MockBudgetRepository) FindOverlapping(ctx context.Context, userID uuid.UUID, scope domain.BudgetScope, w domain.Window) ([]*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapsLocked(userID, scope, w, 0), nil
}

// FindCovering returns active budgets that an expense on date in category counts toward
func (m *MockBudgetRepository) FindCovering(ctx context.Context, userID uuid.UUID, category domain.ExpenseCategory, date time.Time) ([]*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Budget
	for _, b := range m.Budgets {
		if b.UserID == userID && b.IsActive && b.Scope.Matches(category) && b.Window().Contains(date) {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Save writes the budget if its stored version equals expectedVersion
func (m *MockBudgetRepository) Save(ctx context.Context, budget *domain.Budget, expectedVersion int32) (*domain.Budget, error) {
	if m.BeforeSave != nil {
		m.BeforeSave(budget)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	existing, ok := m.Budgets[budget.ID]
	if !ok || existing.UserID != budget.UserID {
		return nil, domain.ErrBudgetNotFound
	}
	if existing.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}
	stored := budget.Clone()
	stored.Version = expectedVersion + 1
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	m.Budgets[stored.ID] = stored
	return stored.Clone(), nil
}

// Deactivate soft-deletes a budget
func (m *MockBudgetRepository) Deactivate(ctx context.Context, userID uuid.UUID, id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Budgets[id]
	if !ok || b.UserID != userID || !b.IsActive {
		return domain.ErrBudgetNotFound
	}
	b.IsActive = false
	b.Version++
	return nil
}

// ListDueForRenewal returns active auto-renew budgets that ended before now
// and have not been renewed yet
func (m *MockBudgetRepository) ListDueForRenewal(ctx context.Context, now time.Time) ([]*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Budget
	for _, b := range m.Budgets {
		if b.IsActive && b.AutoRenew && b.RenewedAt == nil && b.Window().Ended(now) {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListActive returns every active budget
func (m *MockBudgetRepository) ListActive(ctx context.Context) ([]*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Budget
	for _, b := range m.Budgets {
		if b.IsActive {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AddBudget stores a budget directly, bypassing overlap checks
func (m *MockBudgetRepository) AddBudget(budget *domain.Budget) *domain.Budget {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := budget.Clone()
	if stored.ID == 0 {
		stored.ID = m.nextID
		m.nextID++
	} else if stored.ID >= m.nextID {
		m.nextID = stored.ID + 1
	}
	if stored.Version == 0 {
		stored.Version = 1
	}
	m.Budgets[stored.ID] = stored
	return stored.Clone()
}

// Get returns the stored copy of a budget without ownership checks
func (m *MockBudgetRepository) Get(id int32) *domain.Budget {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.Budgets[id]; ok {
		return b.Clone()
	}
	return nil
}

// MockIncomeRepository is an in-memory store of income sources
type MockIncomeRepository struct {
	mu      sync.Mutex
	Sources map[int32]*domain.IncomeSource
	nextID  int32
	ListErr error
}

// NewMockIncomeRepository creates a new MockIncomeRepository
func NewMockIncomeRepository() *MockIncomeRepository {
	return &MockIncomeRepository{
		Sources: make(map[int32]*domain.IncomeSource),
		nextID:  1,
	}
}

func copyIncome(s *domain.IncomeSource) *domain.IncomeSource {
	c := *s
	return &c
}

// Create stores a new income source
func (m *MockIncomeRepository) Create(ctx context.Context, source *domain.IncomeSource) (*domain.IncomeSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	source.ID = m.nextID
	m.nextID++
	source.CreatedAt = time.Now()
	source.UpdatedAt = source.CreatedAt
	m.Sources[source.ID] = copyIncome(source)
	return copyIncome(source), nil
}

// GetByID retrieves an income source owned by userID
func (m *MockIncomeRepository) GetByID(ctx context.Context, userID uuid.UUID, id int32) (*domain.IncomeSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sources[id]
	if !ok || s.UserID != userID {
		return nil, domain.ErrIncomeNotFound
	}
	return copyIncome(s), nil
}

// ListByUser returns a user's income sources ordered by ID
func (m *MockIncomeRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.IncomeSource, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.IncomeSource
	for _, s := range m.Sources {
		if s.UserID == userID {
			result = append(result, copyIncome(s))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Update replaces an income source
func (m *MockIncomeRepository) Update(ctx context.Context, source *domain.IncomeSource) (*domain.IncomeSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Sources[source.ID]
	if !ok || existing.UserID != source.UserID {
		return nil, domain.ErrIncomeNotFound
	}
	source.CreatedAt = existing.CreatedAt
	source.UpdatedAt = time.Now()
	m.Sources[source.ID] = copyIncome(source)
	return copyIncome(source), nil
}

// Delete removes an income source
func (m *MockIncomeRepository) Delete(ctx context.Context, userID uuid.UUID, id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sources[id]
	if !ok || s.UserID != userID {
		return domain.ErrIncomeNotFound
	}
	delete(m.Sources, id)
	return nil
}

// ListOverdueExpectations returns active recurring sources expected before now
func (m *MockIncomeRepository) ListOverdueExpectations(ctx context.Context, now time.Time) ([]*domain.IncomeSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := domain.TruncateDay(now)
	var result []*domain.IncomeSource
	for _, s := range m.Sources {
		if s.IsActive && s.IsRecurring && s.NextExpectedDate != nil && s.NextExpectedDate.Before(today) {
			result = append(result, copyIncome(s))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AddSource inserts an income source directly
func (m *MockIncomeRepository) AddSource(source *domain.IncomeSource) *domain.IncomeSource {
	created, _ := m.Create(context.Background(), source)
	return created
}

// MockGoalRepository is an in-memory goal store with optimistic versioning
type MockGoalRepository struct {
	mu            sync.Mutex
	Goals         map[int32]*domain.Goal
	nextID        int32
	nextContribID int32

	// BeforeAppend runs inside AppendContribution before the version check
	BeforeAppend func(goal *domain.Goal)
	// FailGoals makes AppendContribution fail for the listed goal IDs
	FailGoals map[int32]error
}

// NewMockGoalRepository creates a new MockGoalRepository
func NewMockGoalRepository() *MockGoalRepository {
	return &MockGoalRepository{
		Goals:         make(map[int32]*domain.Goal),
		nextID:        1,
		nextContribID: 1,
		FailGoals:     make(map[int32]error),
	}
}

// Create stores a new goal
func (m *MockGoalRepository) Create(ctx context.Context, goal *domain.Goal) (*domain.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := goal.Clone()
	stored.ID = m.nextID
	m.nextID++
	stored.Version = 1
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.Goals[stored.ID] = stored
	return stored.Clone(), nil
}

// GetByID retrieves a goal with its contribution log
func (m *MockGoalRepository) GetByID(ctx context.Context, userID uuid.UUID, id int32) (*domain.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.Goals[id]
	if !ok || g.UserID != userID {
		return nil, domain.ErrGoalNotFound
	}
	return g.Clone(), nil
}

// ListByUser returns a user's goals ordered by deadline
func (m *MockGoalRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Goal
	for _, g := range m.Goals {
		if g.UserID == userID {
			result = append(result, g.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Deadline.Equal(result[j].Deadline) {
			return result[i].ID < result[j].ID
		}
		return result[i].Deadline.Before(result[j].Deadline)
	})
	return result, nil
}

// Update persists goal metadata under a version check
func (m *MockGoalRepository) Update(ctx context.Context, goal *domain.Goal, expectedVersion int32) (*domain.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Goals[goal.ID]
	if !ok || existing.UserID != goal.UserID {
		return nil, domain.ErrGoalNotFound
	}
	if existing.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}
	stored := goal.Clone()
	stored.Contributions = existing.Contributions
	stored.Version = expectedVersion + 1
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	m.Goals[stored.ID] = stored
	return stored.Clone(), nil
}

// AppendContribution appends to the log and saves derived fields atomically
func (m *MockGoalRepository) AppendContribution(ctx context.Context, goal *domain.Goal, c *domain.Contribution, expectedVersion int32) (*domain.Goal, error) {
	if m.BeforeAppend != nil {
		m.BeforeAppend(goal)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailGoals[goal.ID]; ok {
		return nil, err
	}
	existing, ok := m.Goals[goal.ID]
	if !ok || existing.UserID != goal.UserID {
		return nil, domain.ErrGoalNotFound
	}
	if existing.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}

	entry := *c
	entry.ID = m.nextContribID
	m.nextContribID++
	entry.GoalID = goal.ID

	stored := existing.Clone()
	stored.CurrentAmount = goal.CurrentAmount
	stored.IsCompleted = goal.IsCompleted
	stored.CompletedAt = goal.CompletedAt
	stored.AutoSave = goal.AutoSave
	stored.Contributions = append(stored.Contributions, entry)
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = time.Now()
	m.Goals[stored.ID] = stored
	return stored.Clone(), nil
}

// Delete removes a goal and its log
func (m *MockGoalRepository) Delete(ctx context.Context, userID uuid.UUID, id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.Goals[id]
	if !ok || g.UserID != userID {
		return domain.ErrGoalNotFound
	}
	delete(m.Goals, id)
	return nil
}

// ListAutoSaveDue returns incomplete goals whose auto-save is due at now
func (m *MockGoalRepository) ListAutoSaveDue(ctx context.Context, now time.Time) ([]*domain.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Goal
	for _, g := range m.Goals {
		next := g.AutoSave.NextContributionDate
		if g.AutoSave.Enabled && !g.IsCompleted && next != nil && !next.After(now) {
			result = append(result, g.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AddGoal stores a goal directly
func (m *MockGoalRepository) AddGoal(goal *domain.Goal) *domain.Goal {
	created, _ := m.Create(context.Background(), goal)
	return created
}

// Get returns the stored copy of a goal without ownership checks
func (m *MockGoalRepository) Get(id int32) *domain.Goal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.Goals[id]; ok {
		return g.Clone()
	}
	return nil
}

// MockReceiptStore is an in-memory object store for receipts
type MockReceiptStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	PutErr  error
	Deleted []string
}

// NewMockReceiptStore creates a new MockReceiptStore
func NewMockReceiptStore() *MockReceiptStore {
	return &MockReceiptStore{Objects: make(map[string][]byte)}
}

// Put stores the object bytes under key
func (m *MockReceiptStore) Put(ctx context.Context, key string, data io.Reader, contentType string, size int64) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = buf
	return key, nil
}

// Delete removes an object
func (m *MockReceiptStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, key)
	m.Deleted = append(m.Deleted, key)
	return nil
}

// PresignGet returns a fake signed URL
func (m *MockReceiptStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://receipts.test/" + key + "?expires=" + expiry.String(), nil
}

// Keys returns the stored object keys
func (m *MockReceiptStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.Objects))
	for k := range m.Objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
