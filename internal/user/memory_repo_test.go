package user

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/repository"
)

// memoryUserRepo はメールアドレスの一意制約を持つインメモリのユーザーリポジトリ。
type memoryUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	seq    int
	clock  time.Time
	failOn string
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		users: make(map[string]*model.User),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memoryUserRepo) fail(op string) error {
	if r.failOn == op {
		return fmt.Errorf("%s: connection reset", op)
	}
	return nil
}

func clone(u *model.User) *model.User {
	c := *u
	return &c
}

func (r *memoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("FindByID"); err != nil {
		return nil, err
	}
	if u, ok := r.users[id]; ok {
		return clone(u), nil
	}
	return nil, nil
}

func (r *memoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("FindByEmail"); err != nil {
		return nil, err
	}
	for _, u := range r.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) EmailTaken(_ context.Context, email, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryUserRepo) emailUsedLocked(email, exceptID string) bool {
	for _, u := range r.users {
		if u.Email == email && u.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *memoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("Create"); err != nil {
		return err
	}
	if r.emailUsedLocked(user.Email, "") {
		return repository.ErrDuplicateEmail
	}
	r.seq++
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", r.seq)
	}
	// 作成順に1分ずつずらす
	user.CreatedAt = r.clock.Add(time.Duration(r.seq) * time.Minute)
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = clone(user)
	return nil
}

func (r *memoryUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, _ *model.ExternalIdentity) error {
	return r.Create(ctx, user)
}

func (r *memoryUserRepo) Update(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	if r.emailUsedLocked(user.Email, user.ID) {
		return repository.ErrDuplicateEmail
	}
	r.users[user.ID] = clone(user)
	return nil
}

func (r *memoryUserRepo) SetActive(_ context.Context, id string, active bool) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	u.IsActive = active
	return clone(u), nil
}

func (r *memoryUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("Delete"); err != nil {
		return err
	}
	delete(r.users, id)
	return nil
}

func (r *memoryUserRepo) List(_ context.Context, q model.UserListQuery) (*model.UserPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*model.User
	needle := strings.ToLower(q.Filter)
	for _, u := range r.users {
		if q.HasFilter() &&
			!strings.Contains(strings.ToLower(u.FirstName), needle) &&
			!strings.Contains(strings.ToLower(u.LastName), needle) &&
			!strings.Contains(strings.ToLower(u.Email), needle) {
			continue
		}
		matched = append(matched, clone(u))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	page := &model.UserPage{TotalPages: model.TotalPages(int64(len(matched)), q.PageSize)}
	start := q.Offset()
	if start < len(matched) {
		end := start + q.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		page.Users = matched[start:end]
	}
	return page, nil
}

func (r *memoryUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

var _ repository.UserRepository = (*memoryUserRepo)(nil)
