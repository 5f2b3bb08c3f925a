/**
 * @description
 * In-memory implementation of the Repository interface. It is selected with
 * STORE_BACKEND=memory and backs the service-level tests. Every mutation runs
 * under a single lock, which gives it the same uniqueness guarantees the
 * PostgreSQL constraints give the production backend.
 */

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soullink/entitlement-service/internal/domain"
)

// MemoryRepository keeps every table in process memory.
type MemoryRepository struct {
	mu sync.RWMutex

	now func() time.Time

	nextBiodataID int64
	biodata       map[int64]*domain.Biodata

	payments     map[string]*domain.Payment
	paymentOrder []string

	requests     map[string]*memoryRequest // keyed by payment id
	requestOrder []string

	favorites []domain.Favorite
	stories   []domain.SuccessStory
}

type memoryRequest struct {
	domain.PremiumRequest
	seq int
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:      func() time.Time { return time.Now().UTC() },
		biodata:  make(map[int64]*domain.Biodata),
		payments: make(map[string]*domain.Payment),
		requests: make(map[string]*memoryRequest),
	}
}

func (m *MemoryRepository) ownerBiodataLocked(ownerEmail string) *domain.Biodata {
	for _, b := range m.biodata {
		if b.OwnerEmail == ownerEmail {
			return b
		}
	}
	return nil
}

func (m *MemoryRepository) CreateBiodata(ctx context.Context, b *domain.Biodata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ownerBiodataLocked(b.OwnerEmail) != nil {
		return ErrBiodataExists
	}

	m.nextBiodataID++
	now := m.now()
	b.BiodataID = m.nextBiodataID
	b.CreatedAt = now
	b.UpdatedAt = now
	b.ArchivedAt = nil

	stored := *b
	m.biodata[b.BiodataID] = &stored
	return nil
}

func (m *MemoryRepository) UpdateBiodata(ctx context.Context, b *domain.Biodata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.biodata[b.BiodataID]
	if !ok || existing.ArchivedAt != nil {
		return ErrBiodataNotFound
	}

	updated := *b
	updated.OwnerEmail = existing.OwnerEmail
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = m.now()
	updated.ArchivedAt = nil
	m.biodata[b.BiodataID] = &updated

	b.UpdatedAt = updated.UpdatedAt
	return nil
}

func (m *MemoryRepository) GetBiodata(ctx context.Context, biodataID int64) (*domain.Biodata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.biodata[biodataID]
	if !ok || b.ArchivedAt != nil {
		return nil, ErrBiodataNotFound
	}
	out := *b
	return &out, nil
}

func (m *MemoryRepository) FindBiodataByOwnerEmail(ctx context.Context, ownerEmail string) (*domain.Biodata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b := m.ownerBiodataLocked(ownerEmail)
	if b == nil || b.ArchivedAt != nil {
		return nil, ErrBiodataNotFound
	}
	out := *b
	return &out, nil
}

func (m *MemoryRepository) FindBiodataByIDs(ctx context.Context, biodataIDs []int64) (map[int64]domain.Biodata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[int64]domain.Biodata, len(biodataIDs))
	for _, id := range biodataIDs {
		if b, ok := m.biodata[id]; ok && b.ArchivedAt == nil {
			result[id] = *b
		}
	}
	return result, nil
}

func (m *MemoryRepository) ListBiodata(ctx context.Context, filter domain.BiodataFilter) ([]domain.Biodata, error) {
	m.mu.RLock()
	var profiles []domain.Biodata
	for _, b := range m.biodata {
		if b.ArchivedAt != nil {
			continue
		}
		if filter.BiodataType != "" && b.BiodataType != filter.BiodataType {
			continue
		}
		if filter.Division != "" && b.PermanentDivision != filter.Division {
			continue
		}
		if filter.MinAge > 0 && b.Age < filter.MinAge {
			continue
		}
		if filter.MaxAge > 0 && b.Age > filter.MaxAge {
			continue
		}
		profiles = append(profiles, *b)
	}
	m.mu.RUnlock()

	sort.Slice(profiles, func(i, j int) bool {
		a, b := profiles[i], profiles[j]
		switch filter.SortByAge {
		case "asc":
			if a.Age != b.Age {
				return a.Age < b.Age
			}
		case "desc":
			if a.Age != b.Age {
				return a.Age > b.Age
			}
		}
		return a.BiodataID < b.BiodataID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(profiles) {
			return nil, nil
		}
		profiles = profiles[filter.Offset:]
	}
	if filter.Limit > 0 && len(profiles) > filter.Limit {
		profiles = profiles[:filter.Limit]
	}
	return profiles, nil
}

func (m *MemoryRepository) ArchiveBiodata(ctx context.Context, ownerEmail string, archivedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.ownerBiodataLocked(ownerEmail)
	if b == nil || b.ArchivedAt != nil {
		return ErrBiodataNotFound
	}
	at := archivedAt
	b.ArchivedAt = &at
	b.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepository) InsertPayment(ctx context.Context, p *domain.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.payments[p.PaymentID]; ok {
		*p = *existing
		return false, nil
	}

	p.CreatedAt = m.now()
	stored := *p
	m.payments[p.PaymentID] = &stored
	m.paymentOrder = append(m.paymentOrder, p.PaymentID)
	return true, nil
}

func (m *MemoryRepository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

func (m *MemoryRepository) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payments := make([]domain.Payment, 0, len(m.paymentOrder))
	for _, id := range m.paymentOrder {
		payments = append(payments, *m.payments[id])
	}
	return payments, nil
}

func (m *MemoryRepository) approvedPairExistsLocked(payerEmail string, biodataID int64) bool {
	for _, r := range m.requests {
		if r.PayerEmail == payerEmail && r.TargetBiodataID == biodataID && r.IsApproved() {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) InsertPremiumRequest(ctx context.Context, req *domain.PremiumRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.requests[req.PaymentID]; ok {
		*req = existing.PremiumRequest
		return false, nil
	}
	if req.IsApproved() && m.approvedPairExistsLocked(req.PayerEmail, req.TargetBiodataID) {
		return false, ErrPairAlreadyApproved
	}

	req.CreatedAt = m.now()
	m.requests[req.PaymentID] = &memoryRequest{PremiumRequest: *req, seq: len(m.requestOrder)}
	m.requestOrder = append(m.requestOrder, req.PaymentID)
	return true, nil
}

func (m *MemoryRepository) ApprovePremiumRequest(ctx context.Context, paymentID string, approvedAt time.Time) (*domain.PremiumRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[paymentID]
	if !ok || r.Status != domain.PremiumStatusPending {
		return nil, nil
	}
	if m.approvedPairExistsLocked(r.PayerEmail, r.TargetBiodataID) {
		return nil, ErrPairAlreadyApproved
	}

	at := approvedAt
	r.Status = domain.PremiumStatusApproved
	r.ApprovedAt = &at
	out := r.PremiumRequest
	return &out, nil
}

func (m *MemoryRepository) GetPremiumRequestByPaymentID(ctx context.Context, paymentID string) (*domain.PremiumRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[paymentID]
	if !ok {
		return nil, ErrPremiumRequestNotFound
	}
	out := r.PremiumRequest
	return &out, nil
}

func (m *MemoryRepository) FindApprovedPremiumRequest(ctx context.Context, payerEmail string, biodataID int64) (*domain.PremiumRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.requests {
		if r.PayerEmail == payerEmail && r.TargetBiodataID == biodataID && r.IsApproved() {
			out := r.PremiumRequest
			return &out, nil
		}
	}
	return nil, ErrPremiumRequestNotFound
}

func (m *MemoryRepository) FindPendingPremiumRequest(ctx context.Context, payerEmail string, biodataID int64) (*domain.PremiumRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var oldest *memoryRequest
	for _, r := range m.requests {
		if r.PayerEmail != payerEmail || r.TargetBiodataID != biodataID || r.Status != domain.PremiumStatusPending {
			continue
		}
		if oldest == nil || r.seq < oldest.seq {
			oldest = r
		}
	}
	if oldest == nil {
		return nil, ErrPremiumRequestNotFound
	}
	out := oldest.PremiumRequest
	return &out, nil
}

func (m *MemoryRepository) ListPremiumRequests(ctx context.Context) ([]domain.PremiumRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requests := make([]domain.PremiumRequest, 0, len(m.requestOrder))
	for _, id := range m.requestOrder {
		requests = append(requests, m.requests[id].PremiumRequest)
	}
	return requests, nil
}

func (m *MemoryRepository) ListApprovedPremiumRequests(ctx context.Context, filter domain.PremiumRequestFilter) ([]domain.PremiumRequest, error) {
	m.mu.RLock()
	var approved []*memoryRequest
	for _, id := range m.requestOrder {
		r := m.requests[id]
		if !r.IsApproved() {
			continue
		}
		if filter.PayerEmail != "" && r.PayerEmail != filter.PayerEmail {
			continue
		}
		if filter.TargetBiodataID > 0 && r.TargetBiodataID != filter.TargetBiodataID {
			continue
		}
		cp := *r
		approved = append(approved, &cp)
	}
	m.mu.RUnlock()

	sort.SliceStable(approved, func(i, j int) bool {
		a, b := approved[i], approved[j]
		if !a.ApprovedAt.Equal(*b.ApprovedAt) {
			return a.ApprovedAt.Before(*b.ApprovedAt)
		}
		return a.seq < b.seq
	})

	out := make([]domain.PremiumRequest, 0, len(approved))
	for _, r := range approved {
		out = append(out, r.PremiumRequest)
	}
	return out, nil
}

func (m *MemoryRepository) InsertFavorite(ctx context.Context, f *domain.Favorite) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.favorites {
		if existing.OwnerEmail == f.OwnerEmail && existing.BiodataID == f.BiodataID {
			return false, nil
		}
	}
	f.CreatedAt = m.now()
	m.favorites = append(m.favorites, *f)
	return true, nil
}

func (m *MemoryRepository) DeleteFavorite(ctx context.Context, ownerEmail string, biodataID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.favorites {
		if existing.OwnerEmail == ownerEmail && existing.BiodataID == biodataID {
			m.favorites = append(m.favorites[:i], m.favorites[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) ListFavoritesByOwner(ctx context.Context, ownerEmail string) ([]domain.Favorite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var favorites []domain.Favorite
	for i := len(m.favorites) - 1; i >= 0; i-- {
		if m.favorites[i].OwnerEmail == ownerEmail {
			favorites = append(favorites, m.favorites[i])
		}
	}
	return favorites, nil
}

func (m *MemoryRepository) InsertSuccessStory(ctx context.Context, story *domain.SuccessStory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	story.CreatedAt = m.now()
	m.stories = append(m.stories, *story)
	return nil
}

func (m *MemoryRepository) ListSuccessStories(ctx context.Context, limit int) ([]domain.SuccessStory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stories []domain.SuccessStory
	for i := len(m.stories) - 1; i >= 0; i-- {
		if limit > 0 && len(stories) >= limit {
			break
		}
		stories = append(stories, m.stories[i])
	}
	return stories, nil
}

func (m *MemoryRepository) CountSiteStats(ctx context.Context) (domain.SiteStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats domain.SiteStats
	for _, b := range m.biodata {
		if b.ArchivedAt != nil {
			continue
		}
		stats.TotalBiodata++
		switch b.BiodataType {
		case domain.BiodataTypeMale:
			stats.MaleBiodata++
		case domain.BiodataTypeFemale:
			stats.FemaleBiodata++
		}
	}
	stats.Marriages = len(m.stories)
	return stats, nil
}
