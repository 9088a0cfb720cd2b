package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/dealslot/internal/entity"
)

// fakeStore is an in-memory stand-in for the postgres layer. One mutex
// covers everything, so the conditional decrement inside Reserve is as
// atomic as the real single-statement update.
type fakeStore struct {
	mu sync.Mutex

	slots    map[int64]*entity.OfferSlot
	claims   map[int64]*entity.Claim
	waitlist map[int64]*entity.WaitlistEntry
	offers   map[int64]*entity.Offer
	users    map[int64]*entity.User

	nextSlotID     int64
	nextClaimID    int64
	nextWaitlistID int64

	// failExpireFor simulates a storage failure for specific claims
	failExpireFor map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		slots:         make(map[int64]*entity.OfferSlot),
		claims:        make(map[int64]*entity.Claim),
		waitlist:      make(map[int64]*entity.WaitlistEntry),
		offers:        make(map[int64]*entity.Offer),
		users:         make(map[int64]*entity.User),
		failExpireFor: make(map[int64]bool),
	}
}

func (s *fakeStore) addOffer(offer *entity.Offer) *entity.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offer.Status == "" {
		offer.Status = entity.OfferStatusActive
	}
	s.offers[offer.ID] = offer
	return offer
}

func (s *fakeStore) addUser(user *entity.User) *entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Role == "" {
		user.Role = entity.UserRoleCustomer
	}
	s.users[user.ID] = user
	return user
}

func (s *fakeStore) addSlot(slot *entity.OfferSlot) *entity.OfferSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSlotID++
	slot.ID = s.nextSlotID
	if slot.Mode == "" {
		slot.Mode = entity.SlotModeFlash
	}
	s.slots[slot.ID] = slot
	return slot
}

func (s *fakeStore) claim(id int64) *entity.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims[id]
}

func (s *fakeStore) slot(id int64) *entity.OfferSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[id]
}

func (s *fakeStore) entry(id int64) *entity.WaitlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitlist[id]
}

// ---- SlotRepository ----

type fakeSlotRepo struct{ store *fakeStore }

func (r *fakeSlotRepo) Create(ctx context.Context, slot *entity.OfferSlot) error {
	r.store.addSlot(slot)
	return nil
}

func (r *fakeSlotRepo) CreateBatch(ctx context.Context, slots []*entity.OfferSlot) error {
	for _, slot := range slots {
		r.store.addSlot(slot)
	}
	return nil
}

func (r *fakeSlotRepo) GetByID(ctx context.Context, id int64) (*entity.OfferSlot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	slot, ok := r.store.slots[id]
	if !ok {
		return nil, entity.ErrSlotNotFound
	}
	copied := *slot
	return &copied, nil
}

func (r *fakeSlotRepo) GetByOfferID(ctx context.Context, offerID int64) ([]*entity.OfferSlot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.OfferSlot
	for _, slot := range r.store.slots {
		if slot.OfferID == offerID {
			copied := *slot
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSlotRepo) Delete(ctx context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.slots[id]; !ok {
		return entity.ErrSlotNotFound
	}
	delete(r.store.slots, id)
	return nil
}

func (r *fakeSlotRepo) DecrementQty(ctx context.Context, slotID int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	slot, ok := r.store.slots[slotID]
	if !ok {
		return entity.ErrSlotNotFound
	}
	if slot.QtyRemaining <= 0 {
		return entity.ErrSoldOut
	}
	slot.QtyRemaining--
	return nil
}

func (r *fakeSlotRepo) IncrementQty(ctx context.Context, slotID int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	slot, ok := r.store.slots[slotID]
	if !ok {
		return entity.ErrSlotNotFound
	}
	if slot.QtyRemaining < slot.QtyTotal {
		slot.QtyRemaining++
	}
	return nil
}

func (r *fakeSlotRepo) FindLiveSlot(ctx context.Context, offerID int64, now time.Time) (*entity.OfferSlot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var best *entity.OfferSlot
	for _, slot := range r.store.slots {
		if slot.OfferID != offerID || !slot.IsLive(now) || slot.QtyRemaining <= 0 {
			continue
		}
		if best == nil || slot.EndsAt.Before(best.EndsAt) {
			best = slot
		}
	}
	if best == nil {
		return nil, entity.ErrSlotNotFound
	}
	copied := *best
	return &copied, nil
}

func (r *fakeSlotRepo) GetDripSlots(ctx context.Context, now time.Time) ([]*entity.OfferSlot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.OfferSlot
	for _, slot := range r.store.slots {
		if slot.Mode == entity.SlotModeDrip && now.After(slot.StartsAt) && now.Before(slot.EndsAt) {
			copied := *slot
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSlotRepo) ReleaseDrip(ctx context.Context, slotID int64, delta, prevReleased int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	slot, ok := r.store.slots[slotID]
	if !ok {
		return entity.ErrSlotNotFound
	}
	if slot.DripReleased != prevReleased || slot.DripReleased+delta > slot.QtyTotal {
		return entity.ErrConcurrentUpdate
	}
	slot.DripReleased += delta
	slot.QtyRemaining += delta
	if slot.QtyRemaining > slot.QtyTotal {
		slot.QtyRemaining = slot.QtyTotal
	}
	return nil
}

// ---- ClaimRepository ----

type fakeClaimRepo struct{ store *fakeStore }

func (r *fakeClaimRepo) Reserve(ctx context.Context, claim *entity.Claim) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	slot, ok := r.store.slots[claim.SlotID]
	if !ok {
		return entity.ErrSlotNotFound
	}
	if slot.QtyRemaining <= 0 {
		return entity.ErrSoldOut
	}
	slot.QtyRemaining--
	r.store.nextClaimID++
	claim.ID = r.store.nextClaimID
	copied := *claim
	r.store.claims[claim.ID] = &copied
	return nil
}

func (r *fakeClaimRepo) GetByID(ctx context.Context, id int64) (*entity.Claim, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	claim, ok := r.store.claims[id]
	if !ok {
		return nil, entity.ErrClaimNotFound
	}
	copied := *claim
	return &copied, nil
}

func (r *fakeClaimRepo) GetByUserID(ctx context.Context, userID int64) ([]*entity.Claim, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.Claim
	for _, claim := range r.store.claims {
		if claim.UserID == userID {
			copied := *claim
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeClaimRepo) FindByCredential(ctx context.Context, codeOrToken string) (*entity.Claim, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var match *entity.Claim
	for _, claim := range r.store.claims {
		if claim.SixCode != codeOrToken && claim.QRToken != codeOrToken {
			continue
		}
		// Reserved claims win over terminal ones with the same code
		if match == nil || (claim.Status == entity.ClaimStatusReserved && match.Status != entity.ClaimStatusReserved) {
			match = claim
		}
	}
	if match == nil {
		return nil, entity.ErrClaimNotFound
	}
	copied := *match
	return &copied, nil
}

func (r *fakeClaimRepo) Redeem(ctx context.Context, id int64, staffID int64, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	claim, ok := r.store.claims[id]
	if !ok {
		return entity.ErrClaimNotFound
	}
	if claim.Status != entity.ClaimStatusReserved {
		return entity.ErrClaimAlreadyTerminal
	}
	claim.Status = entity.ClaimStatusRedeemed
	claim.RedeemedAt = &at
	claim.StaffID = &staffID
	return nil
}

func (r *fakeClaimRepo) Expire(ctx context.Context, id, slotID int64, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failExpireFor[id] {
		return false, context.DeadlineExceeded
	}
	claim, ok := r.store.claims[id]
	if !ok {
		return false, entity.ErrClaimNotFound
	}
	if claim.Status != entity.ClaimStatusReserved {
		return false, nil
	}
	claim.Status = entity.ClaimStatusExpired
	if slot, ok := r.store.slots[slotID]; ok && slot.QtyRemaining < slot.QtyTotal {
		slot.QtyRemaining++
	}
	return true, nil
}

func (r *fakeClaimRepo) GetExpired(ctx context.Context, before time.Time) ([]*entity.ClaimExpiration, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.ClaimExpiration
	for _, claim := range r.store.claims {
		if claim.Status != entity.ClaimStatusReserved || claim.ExpiresAt.After(before) {
			continue
		}
		exp := &entity.ClaimExpiration{
			ClaimID:   claim.ID,
			OfferID:   claim.OfferID,
			SlotID:    claim.SlotID,
			UserID:    claim.UserID,
			SixCode:   claim.SixCode,
			ExpiresAt: claim.ExpiresAt,
		}
		if offer, ok := r.store.offers[claim.OfferID]; ok {
			exp.OfferTitle = offer.Title
			exp.VenueID = offer.VenueID
		}
		if user, ok := r.store.users[claim.UserID]; ok {
			exp.TelegramID = user.TelegramID
		}
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimID < out[j].ClaimID })
	return out, nil
}

func (r *fakeClaimRepo) CountActiveByOfferAndUser(ctx context.Context, offerID, userID int64) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, claim := range r.store.claims {
		if claim.OfferID == offerID && claim.UserID == userID && claim.Status != entity.ClaimStatusExpired {
			count++
		}
	}
	return count, nil
}

func (r *fakeClaimRepo) CountActiveByOffer(ctx context.Context, offerID int64) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, claim := range r.store.claims {
		if claim.OfferID == offerID && claim.Status != entity.ClaimStatusExpired {
			count++
		}
	}
	return count, nil
}

func (r *fakeClaimRepo) LastClaimAt(ctx context.Context, offerID, userID int64) (*time.Time, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var last *time.Time
	for _, claim := range r.store.claims {
		if claim.OfferID == offerID && claim.UserID == userID {
			at := claim.ReservedAt
			if last == nil || at.After(*last) {
				last = &at
			}
		}
	}
	return last, nil
}

func (r *fakeClaimRepo) CountActiveBySlot(ctx context.Context, slotID int64) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, claim := range r.store.claims {
		if claim.SlotID == slotID && claim.Status != entity.ClaimStatusExpired {
			count++
		}
	}
	return count, nil
}

// ---- WaitlistRepository ----

type fakeWaitlistRepo struct{ store *fakeStore }

func (r *fakeWaitlistRepo) Join(ctx context.Context, entry *entity.WaitlistEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	maxPos := 0
	for _, existing := range r.store.waitlist {
		if existing.OfferID != entry.OfferID || !existing.InQueue() {
			continue
		}
		if existing.UserID == entry.UserID {
			return entity.ErrAlreadyWaiting
		}
		if existing.Position > maxPos {
			maxPos = existing.Position
		}
	}
	r.store.nextWaitlistID++
	entry.ID = r.store.nextWaitlistID
	entry.Position = maxPos + 1
	entry.Status = entity.WaitlistStatusWaiting
	copied := *entry
	r.store.waitlist[entry.ID] = &copied
	return nil
}

func (r *fakeWaitlistRepo) Leave(ctx context.Context, offerID, userID int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, entry := range r.store.waitlist {
		if entry.OfferID == offerID && entry.UserID == userID && entry.InQueue() {
			pos := entry.Position
			delete(r.store.waitlist, id)
			r.renumberAfterLocked(offerID, pos)
			return nil
		}
	}
	return entity.ErrWaitlistEntryNotFound
}

func (r *fakeWaitlistRepo) renumberAfterLocked(offerID int64, pos int) {
	for _, entry := range r.store.waitlist {
		if entry.OfferID == offerID && entry.InQueue() && entry.Position > pos {
			entry.Position--
		}
	}
}

func (r *fakeWaitlistRepo) HeadWaiting(ctx context.Context, offerID int64) (*entity.WaitlistEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var head *entity.WaitlistEntry
	for _, entry := range r.store.waitlist {
		if entry.OfferID != offerID || entry.Status != entity.WaitlistStatusWaiting {
			continue
		}
		if head == nil || entry.Position < head.Position {
			head = entry
		}
	}
	if head == nil {
		return nil, entity.ErrWaitlistEntryNotFound
	}
	copied := *head
	return &copied, nil
}

func (r *fakeWaitlistRepo) Resolve(ctx context.Context, entryID int64, status entity.WaitlistStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry, ok := r.store.waitlist[entryID]
	if !ok {
		return entity.ErrWaitlistEntryNotFound
	}
	pos := entry.Position
	entry.Status = status
	entry.Position = 0
	r.renumberAfterLocked(entry.OfferID, pos)
	return nil
}

func (r *fakeWaitlistRepo) MarkNotified(ctx context.Context, entryID int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry, ok := r.store.waitlist[entryID]
	if !ok || entry.Status != entity.WaitlistStatusWaiting {
		return entity.ErrWaitlistEntryNotFound
	}
	entry.Status = entity.WaitlistStatusNotified
	return nil
}

func (r *fakeWaitlistRepo) GetByOfferAndUser(ctx context.Context, offerID, userID int64) (*entity.WaitlistEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, entry := range r.store.waitlist {
		if entry.OfferID == offerID && entry.UserID == userID && entry.InQueue() {
			copied := *entry
			return &copied, nil
		}
	}
	return nil, entity.ErrWaitlistEntryNotFound
}

func (r *fakeWaitlistRepo) GetQueue(ctx context.Context, offerID int64) ([]*entity.WaitlistEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.WaitlistEntry
	for _, entry := range r.store.waitlist {
		if entry.OfferID == offerID && entry.InQueue() {
			copied := *entry
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeWaitlistRepo) CountWaiting(ctx context.Context, offerID int64) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, entry := range r.store.waitlist {
		if entry.OfferID == offerID && entry.Status == entity.WaitlistStatusWaiting {
			count++
		}
	}
	return count, nil
}

// ---- OfferRepository / UserRepository ----

type fakeOfferRepo struct{ store *fakeStore }

func (r *fakeOfferRepo) GetByID(ctx context.Context, id int64) (*entity.Offer, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	offer, ok := r.store.offers[id]
	if !ok {
		return nil, entity.ErrOfferNotFound
	}
	copied := *offer
	return &copied, nil
}

func (r *fakeOfferRepo) GetVenue(ctx context.Context, id int64) (*entity.Venue, error) {
	return &entity.Venue{ID: id, Name: "venue"}, nil
}

type fakeUserRepo struct{ store *fakeStore }

func (r *fakeUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	user, ok := r.store.users[id]
	if !ok {
		return nil, entity.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// ---- TaskPublisher ----

type fakePublisher struct {
	mu    sync.Mutex
	tasks []*Task
}

func (p *fakePublisher) Publish(ctx context.Context, task *Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *fakePublisher) byType(taskType string) []*Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Task
	for _, task := range p.tasks {
		if task.Type == taskType {
			out = append(out, task)
		}
	}
	return out
}

// ---- test fixture ----

type fixture struct {
	store        *fakeStore
	slotRepo     *fakeSlotRepo
	claimRepo    *fakeClaimRepo
	waitlistRepo *fakeWaitlistRepo
	offerRepo    *fakeOfferRepo
	userRepo     *fakeUserRepo
	publisher    *fakePublisher

	reservation ReservationService
	redemption  RedemptionService
	waitlist    WaitlistService
	slots       SlotService
	sweeper     SweeperService
}

func newFixture(claimTTL time.Duration) *fixture {
	store := newFakeStore()
	f := &fixture{
		store:        store,
		slotRepo:     &fakeSlotRepo{store: store},
		claimRepo:    &fakeClaimRepo{store: store},
		waitlistRepo: &fakeWaitlistRepo{store: store},
		offerRepo:    &fakeOfferRepo{store: store},
		userRepo:     &fakeUserRepo{store: store},
		publisher:    &fakePublisher{},
	}

	// nil code store: generation happens without Redis
	f.reservation = NewReservationService(
		f.claimRepo, f.slotRepo, f.offerRepo, f.userRepo, f.waitlistRepo,
		nil, f.publisher, nil, claimTTL)
	f.waitlist = NewWaitlistService(
		f.waitlistRepo, f.offerRepo, f.userRepo, f.reservation, f.publisher)
	f.sweeper = NewSweeperService(
		f.claimRepo, f.offerRepo, f.userRepo, f.waitlist, nil, f.publisher, nil)
	f.slots = NewSlotService(f.slotRepo, f.claimRepo, f.offerRepo, f.waitlist)
	f.redemption = NewRedemptionService(
		f.claimRepo, f.offerRepo, f.userRepo, nil, nil)

	return f
}

func (f *fixture) liveSlot(offerID int64, qty int) *entity.OfferSlot {
	now := time.Now()
	return f.store.addSlot(&entity.OfferSlot{
		OfferID:      offerID,
		StartsAt:     now.Add(-time.Hour),
		EndsAt:       now.Add(time.Hour),
		QtyTotal:     qty,
		QtyRemaining: qty,
		Mode:         entity.SlotModeFlash,
	})
}
