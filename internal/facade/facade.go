// Package facade is the single choke point between business logic and
// storage. Every read goes cache-first with the Badger store as fallback;
// every write goes store-first and only touches the cache after the store
// acknowledges, so a failed write can never plant a false cache entry.
package facade

import (
	"context"
	"log/slog"
	"time"

	"github.com/teamfold/teamfold-server/internal/cache"
	"github.com/teamfold/teamfold-server/internal/domain"
	"github.com/teamfold/teamfold-server/internal/store"
)

// WriteRecorder is notified after every successful mutating operation.
// The system state machine implements this to invalidate the cached
// competition summary.
type WriteRecorder interface {
	RecordWrite()
}

// NoopWriteRecorder ignores write notifications. Used in tests.
type NoopWriteRecorder struct{}

// RecordWrite implements WriteRecorder as a no-op.
func (NoopWriteRecorder) RecordWrite() {}

// Facade owns the caches and the coherence rules between them and the store.
type Facade struct {
	store  *store.Store
	logger *slog.Logger
	writes WriteRecorder

	// Entity caches. Users are cached as denormalized views.
	hardware *cache.Cache[domain.Hardware]
	teams    *cache.Cache[domain.Team]
	users    *cache.Cache[domain.UserView]

	// Stats caches, independent from the entity caches and each other.
	initialStats *cache.Cache[domain.UserStats]
	totalStats   *cache.Cache[domain.UserStats]
	offsets      *cache.Cache[domain.OffsetTcStats]
	latestHourly *cache.Cache[domain.UserTcStats]
	retiredStats *cache.Cache[domain.RetiredUserTcStats]
}

// New creates a facade with freshly constructed (empty) caches.
func New(s *store.Store, logger *slog.Logger, writes WriteRecorder) *Facade {
	if writes == nil {
		writes = NoopWriteRecorder{}
	}
	return &Facade{
		store:        s,
		logger:       logger,
		writes:       writes,
		hardware:     cache.New[domain.Hardware](),
		teams:        cache.New[domain.Team](),
		users:        cache.New[domain.UserView](),
		initialStats: cache.New[domain.UserStats](),
		totalStats:   cache.New[domain.UserStats](),
		offsets:      cache.New[domain.OffsetTcStats](),
		latestHourly: cache.New[domain.UserTcStats](),
		retiredStats: cache.New[domain.RetiredUserTcStats](),
	}
}

// --- Hardware ---

// CreateHardware persists new hardware, then caches it.
func (f *Facade) CreateHardware(ctx context.Context, hw domain.Hardware) error {
	if err := f.store.Hardware.Create(ctx, &hw); err != nil {
		return err
	}
	f.hardware.Put(hw.ID, hw)
	f.writes.RecordWrite()
	return nil
}

// GetHardware returns hardware by ID, populating the cache on a miss.
func (f *Facade) GetHardware(ctx context.Context, id string) (domain.Hardware, error) {
	if hw, ok := f.hardware.Get(id); ok {
		return hw, nil
	}

	hw, err := f.store.Hardware.Get(ctx, id)
	if err != nil {
		return domain.Hardware{}, err
	}
	f.hardware.Put(hw.ID, *hw)
	return *hw, nil
}

// GetAllHardware returns all hardware. An empty cache is treated as an
// unconditional miss - "no cached entries" is indistinguishable from
// "nothing cached yet", so the store is always consulted in that case.
func (f *Facade) GetAllHardware(ctx context.Context) ([]domain.Hardware, error) {
	if f.hardware.Len() > 0 {
		return f.hardware.GetAll(), nil
	}

	all, err := f.store.Hardware.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Hardware, 0, len(all))
	batch := make(map[string]domain.Hardware, len(all))
	for _, hw := range all {
		result = append(result, *hw)
		batch[hw.ID] = *hw
	}
	f.hardware.PutAll(batch)
	return result, nil
}

// UpdateHardware persists the change, refreshes the hardware cache, and
// refreshes every cached user view that references this hardware. The
// views are denormalized, so skipping this step is a correctness bug for
// multiplier changes, not just staleness.
func (f *Facade) UpdateHardware(ctx context.Context, hw domain.Hardware) error {
	if err := f.store.Hardware.Update(ctx, &hw); err != nil {
		return err
	}
	f.hardware.Put(hw.ID, hw)

	for _, view := range f.users.GetAll() {
		if view.User.HardwareID == hw.ID {
			view.Hardware = hw
			f.users.Put(view.User.ID, view)
		}
	}

	f.writes.RecordWrite()
	return nil
}

// DeleteHardware removes hardware from the store and the cache.
// Policy checks (no users still referencing it) live in the validation
// layer in front of this facade.
func (f *Facade) DeleteHardware(ctx context.Context, id string) error {
	if err := f.store.Hardware.Delete(ctx, id); err != nil {
		return err
	}
	f.hardware.Evict(id)
	f.writes.RecordWrite()
	return nil
}

// --- Teams ---

// CreateTeam persists a new team, then caches it.
func (f *Facade) CreateTeam(ctx context.Context, team domain.Team) error {
	if err := f.store.Teams.Create(ctx, &team); err != nil {
		return err
	}
	f.teams.Put(team.ID, team)
	f.writes.RecordWrite()
	return nil
}

// GetTeam returns a team by ID, populating the cache on a miss.
func (f *Facade) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	if team, ok := f.teams.Get(id); ok {
		return team, nil
	}

	team, err := f.store.Teams.Get(ctx, id)
	if err != nil {
		return domain.Team{}, err
	}
	f.teams.Put(team.ID, *team)
	return *team, nil
}

// GetAllTeams returns all teams, treating an empty cache as a miss.
func (f *Facade) GetAllTeams(ctx context.Context) ([]domain.Team, error) {
	if f.teams.Len() > 0 {
		return f.teams.GetAll(), nil
	}

	all, err := f.store.Teams.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Team, 0, len(all))
	batch := make(map[string]domain.Team, len(all))
	for _, team := range all {
		result = append(result, *team)
		batch[team.ID] = *team
	}
	f.teams.PutAll(batch)
	return result, nil
}

// UpdateTeam persists the change and refreshes cached user views
// referencing the team, mirroring UpdateHardware.
func (f *Facade) UpdateTeam(ctx context.Context, team domain.Team) error {
	if err := f.store.Teams.Update(ctx, &team); err != nil {
		return err
	}
	f.teams.Put(team.ID, team)

	for _, view := range f.users.GetAll() {
		if view.User.TeamID == team.ID {
			view.Team = team
			f.users.Put(view.User.ID, view)
		}
	}

	f.writes.RecordWrite()
	return nil
}

// DeleteTeam removes a team from the store and the cache.
func (f *Facade) DeleteTeam(ctx context.Context, id string) error {
	if err := f.store.Teams.Delete(ctx, id); err != nil {
		return err
	}
	f.teams.Evict(id)
	f.writes.RecordWrite()
	return nil
}

// --- Users ---

// CreateUser persists a new user after resolving its hardware and team
// references (a missing reference surfaces as NotFound), then caches the
// denormalized view.
func (f *Facade) CreateUser(ctx context.Context, user domain.User) (domain.UserView, error) {
	view, err := f.buildView(ctx, user)
	if err != nil {
		return domain.UserView{}, err
	}

	if err := f.store.Users.Create(ctx, &user); err != nil {
		return domain.UserView{}, err
	}
	f.users.Put(user.ID, view)
	f.writes.RecordWrite()
	return view, nil
}

// GetUser returns a user view by ID, populating the cache on a miss.
func (f *Facade) GetUser(ctx context.Context, id string) (domain.UserView, error) {
	if view, ok := f.users.Get(id); ok {
		return view, nil
	}

	user, err := f.store.Users.Get(ctx, id)
	if err != nil {
		return domain.UserView{}, err
	}

	view, err := f.buildView(ctx, *user)
	if err != nil {
		return domain.UserView{}, err
	}
	f.users.Put(user.ID, view)
	return view, nil
}

// GetAllUsers returns all user views, treating an empty cache as a miss.
func (f *Facade) GetAllUsers(ctx context.Context) ([]domain.UserView, error) {
	if f.users.Len() > 0 {
		return f.users.GetAll(), nil
	}

	all, err := f.store.Users.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.UserView, 0, len(all))
	batch := make(map[string]domain.UserView, len(all))
	for _, user := range all {
		view, err := f.buildView(ctx, *user)
		if err != nil {
			return nil, err
		}
		result = append(result, view)
		batch[user.ID] = view
	}
	f.users.PutAll(batch)
	return result, nil
}

// GetUsersOnTeam returns the user views for one team, via the team index.
func (f *Facade) GetUsersOnTeam(ctx context.Context, teamID string) ([]domain.UserView, error) {
	users, err := f.store.Users.GetAllByIndex(ctx, "team", teamID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.UserView, 0, len(users))
	for _, user := range users {
		view, err := f.buildView(ctx, *user)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// GetUsersOnHardware returns the user views referencing one hardware entry.
func (f *Facade) GetUsersOnHardware(ctx context.Context, hardwareID string) ([]domain.UserView, error) {
	users, err := f.store.Users.GetAllByIndex(ctx, "hardware", hardwareID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.UserView, 0, len(users))
	for _, user := range users {
		view, err := f.buildView(ctx, *user)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// UpdateUser persists the change and refreshes the cached view.
func (f *Facade) UpdateUser(ctx context.Context, user domain.User) (domain.UserView, error) {
	view, err := f.buildView(ctx, user)
	if err != nil {
		return domain.UserView{}, err
	}

	if err := f.store.Users.Update(ctx, &user); err != nil {
		return domain.UserView{}, err
	}
	f.users.Put(user.ID, view)
	f.writes.RecordWrite()
	return view, nil
}

// DeleteUser removes the user from the store, then evicts it from the
// entity cache and from every per-user stats cache - a deleted user's
// stats entries are orphans and must not linger.
func (f *Facade) DeleteUser(ctx context.Context, id string) error {
	if err := f.store.Users.Delete(ctx, id); err != nil {
		return err
	}

	f.users.Evict(id)
	f.initialStats.Evict(id)
	f.totalStats.Evict(id)
	f.offsets.Evict(id)
	f.latestHourly.Evict(id)

	f.writes.RecordWrite()
	return nil
}

// buildView resolves a user's hardware and team references through the
// entity caches.
func (f *Facade) buildView(ctx context.Context, user domain.User) (domain.UserView, error) {
	hw, err := f.GetHardware(ctx, user.HardwareID)
	if err != nil {
		return domain.UserView{}, err
	}
	team, err := f.GetTeam(ctx, user.TeamID)
	if err != nil {
		return domain.UserView{}, err
	}
	return domain.UserView{User: user, Hardware: hw, Team: team}, nil
}

// --- Initial / total stats ---

// PersistInitialStats write-throughs the baseline snapshot for a user.
func (f *Facade) PersistInitialStats(ctx context.Context, stats domain.UserStats) error {
	if err := f.store.PersistInitialStats(ctx, stats); err != nil {
		return err
	}
	f.initialStats.Put(stats.UserID, stats)
	return nil
}

// GetInitialStats returns the user's baseline, or an empty baseline when
// none was ever recorded. The empty default is never cached.
func (f *Facade) GetInitialStats(ctx context.Context, userID string) (domain.UserStats, error) {
	if stats, ok := f.initialStats.Get(userID); ok {
		return stats, nil
	}

	stats, found, err := f.store.GetInitialStats(ctx, userID)
	if err != nil {
		return domain.UserStats{}, err
	}
	if !found {
		return domain.EmptyUserStats(userID), nil
	}
	f.initialStats.Put(userID, stats)
	return stats, nil
}

// PersistTotalStats write-throughs the latest raw snapshot for a user.
func (f *Facade) PersistTotalStats(ctx context.Context, stats domain.UserStats) error {
	if err := f.store.PersistTotalStats(ctx, stats); err != nil {
		return err
	}
	f.totalStats.Put(stats.UserID, stats)
	return nil
}

// GetTotalStats returns the user's last fetched raw snapshot.
// The found flag is false for a never-parsed user; the default is not cached.
func (f *Facade) GetTotalStats(ctx context.Context, userID string) (domain.UserStats, bool, error) {
	if stats, ok := f.totalStats.Get(userID); ok {
		return stats, true, nil
	}

	stats, found, err := f.store.GetTotalStats(ctx, userID)
	if err != nil {
		return domain.UserStats{}, false, err
	}
	if found {
		f.totalStats.Put(userID, stats)
	}
	return stats, found, nil
}

// --- Offsets ---

// AccumulateOffset stacks a correction on top of the user's existing
// offset. This is the manual-adjustment path.
func (f *Facade) AccumulateOffset(ctx context.Context, offset domain.OffsetTcStats) error {
	if err := f.store.CreateOrUpdateOffset(ctx, offset); err != nil {
		return err
	}

	// The store merged the value; re-read so the cache holds the merge
	// result rather than a locally recomputed one.
	merged, found, err := f.store.GetOffset(ctx, offset.UserID)
	if err != nil {
		return err
	}
	if found {
		f.offsets.Put(offset.UserID, merged)
	}

	f.writes.RecordWrite()
	return nil
}

// OverwriteOffset replaces the user's offset. This is the re-baseline path.
func (f *Facade) OverwriteOffset(ctx context.Context, offset domain.OffsetTcStats) error {
	if err := f.store.OverwriteOffset(ctx, offset); err != nil {
		return err
	}
	f.offsets.Put(offset.UserID, offset)
	f.writes.RecordWrite()
	return nil
}

// GetOffset returns the user's offset, defaulting to a zero offset when
// none exists. The zero default is never cached.
func (f *Facade) GetOffset(ctx context.Context, userID string) (domain.OffsetTcStats, error) {
	if offset, ok := f.offsets.Get(userID); ok {
		return offset, nil
	}

	offset, found, err := f.store.GetOffset(ctx, userID)
	if err != nil {
		return domain.OffsetTcStats{}, err
	}
	if !found {
		return domain.OffsetTcStats{UserID: userID}, nil
	}
	f.offsets.Put(userID, offset)
	return offset, nil
}

// DeleteAllOffsets clears every offset in the store and the offset cache.
func (f *Facade) DeleteAllOffsets(ctx context.Context) error {
	if err := f.store.DeleteAllOffsets(ctx); err != nil {
		return err
	}
	f.offsets.EvictAll()
	return nil
}

// --- Hourly series ---

// PersistHourlyTcStats appends an hourly record and refreshes the
// latest-record cache for the user.
func (f *Facade) PersistHourlyTcStats(ctx context.Context, stats domain.UserTcStats) error {
	if err := f.store.PersistHourlyTcStats(ctx, stats); err != nil {
		return err
	}
	f.latestHourly.Put(stats.UserID, stats)
	return nil
}

// GetLatestHourlyTcStats returns the newest hourly record for a user.
// The found flag is false for users with no recorded cycle.
func (f *Facade) GetLatestHourlyTcStats(ctx context.Context, userID string) (domain.UserTcStats, bool, error) {
	if stats, ok := f.latestHourly.Get(userID); ok {
		return stats, true, nil
	}

	stats, found, err := f.store.GetLatestHourlyTcStats(ctx, userID)
	if err != nil {
		return domain.UserTcStats{}, false, err
	}
	if found {
		f.latestHourly.Put(userID, stats)
	}
	return stats, found, nil
}

// --- Retired users ---

// CreateRetiredUserStats persists a retirement snapshot, then caches it.
func (f *Facade) CreateRetiredUserStats(ctx context.Context, retired domain.RetiredUserTcStats) error {
	if err := f.store.CreateRetiredUserStats(ctx, retired); err != nil {
		return err
	}
	f.retiredStats.Put(retired.ID, retired)
	f.writes.RecordWrite()
	return nil
}

// GetAllRetiredUserStats returns every retirement snapshot, treating an
// empty cache as a miss.
func (f *Facade) GetAllRetiredUserStats(ctx context.Context) ([]domain.RetiredUserTcStats, error) {
	if f.retiredStats.Len() > 0 {
		return f.retiredStats.GetAll(), nil
	}

	all, err := f.store.GetAllRetiredUserStats(ctx)
	if err != nil {
		return nil, err
	}

	batch := make(map[string]domain.RetiredUserTcStats, len(all))
	for _, r := range all {
		batch[r.ID] = r
	}
	f.retiredStats.PutAll(batch)
	return all, nil
}

// DeleteAllRetiredUserStats clears every retirement snapshot.
func (f *Facade) DeleteAllRetiredUserStats(ctx context.Context) error {
	if err := f.store.DeleteAllRetiredUserStats(ctx); err != nil {
		return err
	}
	f.retiredStats.EvictAll()
	return nil
}

// --- Monthly results and historic queries (never cached) ---

// CreateMonthlyResult freezes one month's standings. Pass-through: results
// are immutable once written, so caching buys nothing.
func (f *Facade) CreateMonthlyResult(ctx context.Context, result domain.MonthlyResult) error {
	return f.store.CreateMonthlyResult(ctx, result)
}

// GetMonthlyResult returns the frozen standings for one month.
func (f *Facade) GetMonthlyResult(ctx context.Context, year int, month time.Month) (domain.MonthlyResult, bool, error) {
	return f.store.GetMonthlyResult(ctx, year, month)
}

// Store exposes the underlying store for the historic diff engine, which
// reads the raw hourly series directly - those queries are high-volume,
// low-reuse, and deliberately uncached.
func (f *Facade) Store() *store.Store {
	return f.store
}

// --- Reset support ---

// EvictVolatileCaches empties the caches invalidated by a monthly reset:
// latest-hourly, total and retired. Initial stats are re-seeded by the
// reset rather than evicted, and entity caches are untouched.
func (f *Facade) EvictVolatileCaches() {
	f.latestHourly.EvictAll()
	f.totalStats.EvictAll()
	f.retiredStats.EvictAll()
	f.logger.Debug("volatile stats caches evicted")
}
