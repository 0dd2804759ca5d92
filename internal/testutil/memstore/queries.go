package memstore

import (
	"context"
	"sort"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
)

func (q *Queries) CreateUser(_ context.Context, u *models.User) error {
	st, done := q.begin()
	defer done()
	for _, existing := range st.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return uniqueViolation("users_username_key")
		}
	}
	if _, ok := st.users[u.ID]; ok {
		return uniqueViolation("users_pkey")
	}
	u.CreatedAt = now()
	st.users[u.ID] = *u
	return nil
}

func (q *Queries) GetUser(_ context.Context, id uuid.UUID) (models.User, error) {
	st, done := q.begin()
	defer done()
	u, ok := st.users[id]
	if !ok {
		return models.User{}, errNoRows()
	}
	return u, nil
}

func (q *Queries) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	st, done := q.begin()
	defer done()
	for _, u := range st.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, errNoRows()
}

func (q *Queries) CreateProfile(_ context.Context, p *models.Profile) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.users[p.UserID]; !ok {
		return foreignKeyViolation("profiles_user_id_fkey")
	}
	if _, ok := st.profiles[p.UserID]; ok {
		return uniqueViolation("profiles_pkey")
	}
	p.CreatedAt, p.UpdatedAt = now(), now()
	st.profiles[p.UserID] = *p
	return nil
}

func (q *Queries) getProfile(userID uuid.UUID) (models.Profile, error) {
	st, done := q.begin()
	defer done()
	p, ok := st.profiles[userID]
	if !ok {
		return models.Profile{}, errNoRows()
	}
	return p, nil
}

func (q *Queries) GetProfile(_ context.Context, userID uuid.UUID) (models.Profile, error) {
	return q.getProfile(userID)
}

func (q *Queries) GetProfileForUpdate(_ context.Context, userID uuid.UUID) (models.Profile, error) {
	return q.getProfile(userID)
}

func (q *Queries) GetProfileForShare(_ context.Context, userID uuid.UUID) (models.Profile, error) {
	return q.getProfile(userID)
}

func (q *Queries) UpdateProfileStatus(_ context.Context, userID uuid.UUID, status domain.ValidationStatus) (int64, error) {
	st, done := q.begin()
	defer done()
	p, ok := st.profiles[userID]
	if !ok {
		return 0, nil
	}
	p.ValidationStatus = status
	p.UpdatedAt = now()
	st.profiles[userID] = p
	return 1, nil
}

func (q *Queries) IssueCredential(_ context.Context, userID uuid.UUID, credentialID string) (int64, error) {
	st, done := q.begin()
	defer done()
	p, ok := st.profiles[userID]
	if !ok || p.CredentialID != nil {
		return 0, nil
	}
	for _, other := range st.profiles {
		if other.CredentialID != nil && *other.CredentialID == credentialID {
			return 0, uniqueViolation("profiles_credential_id_key")
		}
	}
	id, ts := credentialID, now()
	p.CredentialID = &id
	p.CredentialIssuedAt = &ts
	p.UpdatedAt = ts
	st.profiles[userID] = p
	return 1, nil
}

func (q *Queries) CreateDocument(_ context.Context, d *models.Document) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.users[d.UserID]; !ok {
		return foreignKeyViolation("documents_user_id_fkey")
	}
	d.CreatedAt, d.UpdatedAt = now(), now()
	st.documents[d.ID] = *d
	st.documentOrder = append(st.documentOrder, d.ID)
	return nil
}

func (q *Queries) getDocument(id uuid.UUID) (models.Document, error) {
	st, done := q.begin()
	defer done()
	d, ok := st.documents[id]
	if !ok {
		return models.Document{}, errNoRows()
	}
	return d, nil
}

func (q *Queries) GetDocument(_ context.Context, id uuid.UUID) (models.Document, error) {
	return q.getDocument(id)
}

func (q *Queries) GetDocumentForUpdate(_ context.Context, id uuid.UUID) (models.Document, error) {
	return q.getDocument(id)
}

func (q *Queries) UpdateDocumentReview(_ context.Context, arg repository.UpdateDocumentReviewParams) (int64, error) {
	st, done := q.begin()
	defer done()
	d, ok := st.documents[arg.ID]
	if !ok || d.Status != domain.DocumentPending {
		return 0, nil
	}
	ts, reviewer := now(), arg.ReviewedBy
	d.Status = arg.Status
	d.RejectionReason = arg.RejectionReason
	d.ReviewedBy = &reviewer
	d.ReviewedAt = &ts
	d.UpdatedAt = ts
	st.documents[arg.ID] = d
	return 1, nil
}

func (q *Queries) ListLatestDocumentsByUser(_ context.Context, userID uuid.UUID) ([]models.Document, error) {
	st, done := q.begin()
	defer done()
	latest := map[string]models.Document{}
	for _, id := range st.documentOrder {
		d := st.documents[id]
		if d.UserID == userID {
			latest[d.Type] = d
		}
	}
	out := make([]models.Document, 0, len(latest))
	for _, d := range latest {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (q *Queries) ListDocumentsByUser(_ context.Context, userID uuid.UUID) ([]models.Document, error) {
	st, done := q.begin()
	defer done()
	var out []models.Document
	for i := len(st.documentOrder) - 1; i >= 0; i-- {
		if d := st.documents[st.documentOrder[i]]; d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (q *Queries) ListDocumentsByStatus(_ context.Context, status domain.DocumentStatus, limit, offset int32) ([]models.Document, error) {
	st, done := q.begin()
	defer done()
	var out []models.Document
	for _, id := range st.documentOrder {
		if d := st.documents[id]; d.Status == status {
			out = append(out, d)
		}
	}
	return page(out, limit, offset), nil
}

func (q *Queries) CreateAnnouncement(_ context.Context, a *models.Announcement) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.users[a.ClientID]; !ok {
		return foreignKeyViolation("announcements_client_id_fkey")
	}
	a.CreatedAt, a.UpdatedAt = now(), now()
	st.announcements[a.ID] = *a
	st.annOrder = append(st.annOrder, a.ID)
	return nil
}

func (q *Queries) getAnnouncement(id uuid.UUID) (models.Announcement, error) {
	st, done := q.begin()
	defer done()
	a, ok := st.announcements[id]
	if !ok {
		return models.Announcement{}, errNoRows()
	}
	return a, nil
}

func (q *Queries) GetAnnouncement(_ context.Context, id uuid.UUID) (models.Announcement, error) {
	return q.getAnnouncement(id)
}

func (q *Queries) GetAnnouncementForUpdate(_ context.Context, id uuid.UUID) (models.Announcement, error) {
	return q.getAnnouncement(id)
}

func (q *Queries) UpdateAnnouncementStatus(_ context.Context, id uuid.UUID, from, to domain.AnnouncementStatus) (int64, error) {
	st, done := q.begin()
	defer done()
	a, ok := st.announcements[id]
	if !ok || a.Status != from {
		return 0, nil
	}
	a.Status = to
	a.UpdatedAt = now()
	st.announcements[id] = a
	return 1, nil
}

func (q *Queries) listAnnouncements(limit, offset int32, match func(models.Announcement) bool) []models.Announcement {
	st, done := q.begin()
	defer done()
	var out []models.Announcement
	for i := len(st.annOrder) - 1; i >= 0; i-- {
		if a := st.announcements[st.annOrder[i]]; match(a) {
			out = append(out, a)
		}
	}
	return page(out, limit, offset)
}

func (q *Queries) ListAnnouncementsByStatus(_ context.Context, status domain.AnnouncementStatus, limit, offset int32) ([]models.Announcement, error) {
	return q.listAnnouncements(limit, offset, func(a models.Announcement) bool { return a.Status == status }), nil
}

func (q *Queries) ListAnnouncementsByClient(_ context.Context, clientID uuid.UUID, limit, offset int32) ([]models.Announcement, error) {
	return q.listAnnouncements(limit, offset, func(a models.Announcement) bool { return a.ClientID == clientID }), nil
}

func (q *Queries) CreateDelivery(_ context.Context, d *models.Delivery) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.announcements[d.AnnouncementID]; !ok {
		return foreignKeyViolation("deliveries_announcement_id_fkey")
	}
	for _, existing := range st.deliveries {
		if existing.AnnouncementID == d.AnnouncementID && existing.Status != domain.DeliveryCancelled {
			return uniqueViolation("uq_deliveries_active_announcement")
		}
	}
	d.CreatedAt, d.UpdatedAt = now(), now()
	st.deliveries[d.ID] = *d
	st.deliveryOrder = append(st.deliveryOrder, d.ID)
	return nil
}

func (q *Queries) getDelivery(id uuid.UUID) (models.Delivery, error) {
	st, done := q.begin()
	defer done()
	d, ok := st.deliveries[id]
	if !ok {
		return models.Delivery{}, errNoRows()
	}
	return d, nil
}

func (q *Queries) GetDelivery(_ context.Context, id uuid.UUID) (models.Delivery, error) {
	return q.getDelivery(id)
}

func (q *Queries) GetDeliveryForUpdate(_ context.Context, id uuid.UUID) (models.Delivery, error) {
	return q.getDelivery(id)
}

func (q *Queries) GetActiveDeliveryByAnnouncement(_ context.Context, announcementID uuid.UUID) (models.Delivery, error) {
	st, done := q.begin()
	defer done()
	for _, d := range st.deliveries {
		if d.AnnouncementID == announcementID && d.Status != domain.DeliveryCancelled {
			return d, nil
		}
	}
	return models.Delivery{}, errNoRows()
}

func (q *Queries) UpdateDeliveryStatus(_ context.Context, id uuid.UUID, from, to domain.DeliveryStatus) (int64, error) {
	st, done := q.begin()
	defer done()
	d, ok := st.deliveries[id]
	if !ok || d.Status != from {
		return 0, nil
	}
	ts := now()
	d.Status = to
	d.UpdatedAt = ts
	if to == domain.DeliveryCompleted {
		d.CompletedAt = &ts
	}
	st.deliveries[id] = d
	return 1, nil
}

func (q *Queries) ListDeliveriesByDeliverer(_ context.Context, delivererID uuid.UUID, limit, offset int32) ([]models.Delivery, error) {
	st, done := q.begin()
	defer done()
	var out []models.Delivery
	for i := len(st.deliveryOrder) - 1; i >= 0; i-- {
		if d := st.deliveries[st.deliveryOrder[i]]; d.DelivererID == delivererID {
			out = append(out, d)
		}
	}
	return page(out, limit, offset), nil
}

func (q *Queries) InsertDeliveryLog(_ context.Context, l *models.DeliveryLog) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.deliveries[l.DeliveryID]; !ok {
		return foreignKeyViolation("delivery_logs_delivery_id_fkey")
	}
	st.logSeq++
	l.ID = st.logSeq
	l.CreatedAt = now()
	st.logs = append(st.logs, *l)
	return nil
}

func (q *Queries) ListDeliveryLogs(_ context.Context, deliveryID uuid.UUID) ([]models.DeliveryLog, error) {
	st, done := q.begin()
	defer done()
	var out []models.DeliveryLog
	for _, l := range st.logs {
		if l.DeliveryID == deliveryID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (q *Queries) CreatePayment(_ context.Context, p *models.Payment) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.deliveries[p.DeliveryID]; !ok {
		return foreignKeyViolation("payments_delivery_id_fkey")
	}
	for _, existing := range st.payments {
		if existing.DeliveryID == p.DeliveryID {
			return uniqueViolation("payments_delivery_id_key")
		}
	}
	p.CreatedAt, p.UpdatedAt = now(), now()
	st.payments[p.ID] = *p
	return nil
}

func (q *Queries) getPayment(id uuid.UUID) (models.Payment, error) {
	st, done := q.begin()
	defer done()
	p, ok := st.payments[id]
	if !ok {
		return models.Payment{}, errNoRows()
	}
	return p, nil
}

func (q *Queries) GetPayment(_ context.Context, id uuid.UUID) (models.Payment, error) {
	return q.getPayment(id)
}

func (q *Queries) GetPaymentForUpdate(_ context.Context, id uuid.UUID) (models.Payment, error) {
	return q.getPayment(id)
}

func (q *Queries) GetPaymentByDelivery(_ context.Context, deliveryID uuid.UUID) (models.Payment, error) {
	st, done := q.begin()
	defer done()
	for _, p := range st.payments {
		if p.DeliveryID == deliveryID {
			return p, nil
		}
	}
	return models.Payment{}, errNoRows()
}

func (q *Queries) UpdatePaymentStatus(_ context.Context, id uuid.UUID, from, to domain.PaymentStatus, reason *string) (int64, error) {
	st, done := q.begin()
	defer done()
	p, ok := st.payments[id]
	if !ok || p.Status != from {
		return 0, nil
	}
	p.Status = to
	if reason != nil {
		r := *reason
		p.Reason = &r
	}
	p.UpdatedAt = now()
	st.payments[id] = p
	return 1, nil
}

func (q *Queries) CreateCommission(_ context.Context, c *models.Commission) error {
	st, done := q.begin()
	defer done()
	for _, existing := range st.commissions {
		if existing.PaymentID == c.PaymentID {
			return uniqueViolation("commissions_payment_id_key")
		}
	}
	c.CreatedAt = now()
	st.commissions[c.ID] = *c
	return nil
}
