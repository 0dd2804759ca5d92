package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/notify"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/ayo6706/delivery-marketplace/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentService is the verification gate: it collects documents, records
// admin reviews and derives each actor's aggregate validation status.
type DocumentService struct {
	store    QueryStore
	files    storage.ObjectStorage
	audit    *AuditService
	notifier *notify.Dispatcher
}

func NewDocumentService(store QueryStore, files storage.ObjectStorage, notifier *notify.Dispatcher) *DocumentService {
	return &DocumentService{
		store:    store,
		files:    files,
		audit:    NewAuditService(),
		notifier: notifier,
	}
}

type SubmitDocumentInput struct {
	Type        string
	FileName    string
	ContentType string
	Data        []byte
}

// SubmitDocument stores the file and records a PENDING document for the user.
func (s *DocumentService) SubmitDocument(ctx context.Context, userID uuid.UUID, in SubmitDocumentInput) (models.Document, error) {
	docType := strings.ToUpper(strings.TrimSpace(in.Type))
	if len(in.Data) == 0 {
		return models.Document{}, fmt.Errorf("%w: file is empty", domain.ErrValidation)
	}

	profile, err := s.store.Queries().GetProfile(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Document{}, fmt.Errorf("%w: account is not subject to verification", domain.ErrForbidden)
		}
		return models.Document{}, fmt.Errorf("load profile: %w", err)
	}
	if !domain.KnownDocumentType(profile.Role, docType) {
		return models.Document{}, fmt.Errorf("%w: document type %q is not accepted for %s", domain.ErrValidation, in.Type, profile.Role)
	}

	doc := models.Document{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        docType,
		Status:      domain.DocumentPending,
		FileName:    in.FileName,
		ContentType: in.ContentType,
	}
	doc.StorageKey = storage.DocumentKey(userID, doc.ID, in.FileName)
	if err := s.files.Upload(ctx, doc.StorageKey, in.Data, in.ContentType); err != nil {
		return models.Document{}, fmt.Errorf("store document file: %w", err)
	}

	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		p, err := qtx.GetProfileForUpdate(ctx, userID)
		if err != nil {
			return notFound(err, "profile")
		}
		if err := qtx.CreateDocument(ctx, &doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := s.audit.Write(ctx, qtx, entityDocument, doc.ID, &userID, "submitted", "", string(domain.DocumentPending), nil); err != nil {
			return err
		}
		_, _, err = s.recompute(ctx, qtx, p, userID)
		return err
	})
	if err != nil {
		if delErr := s.files.Delete(context.Background(), doc.StorageKey); delErr != nil {
			zap.L().Warn("failed to remove orphaned document file", zap.Error(delErr), zap.String("storage_key", doc.StorageKey))
		}
		return models.Document{}, err
	}
	return doc, nil
}

// ReviewDocument applies an admin decision to a PENDING document and returns
// the owner's recomputed profile.
func (s *DocumentService) ReviewDocument(ctx context.Context, adminID, documentID uuid.UUID, decision, reason string) (models.Profile, error) {
	var status domain.DocumentStatus
	switch strings.ToUpper(decision) {
	case domain.DecisionApprove:
		status = domain.DocumentApproved
	case domain.DecisionReject:
		status = domain.DocumentRejected
		if strings.TrimSpace(reason) == "" {
			return models.Profile{}, fmt.Errorf("%w: rejection reason is required", domain.ErrValidation)
		}
	default:
		return models.Profile{}, fmt.Errorf("%w: decision must be APPROVE or REJECT", domain.ErrValidation)
	}

	var (
		doc      models.Document
		profile  models.Profile
		approved bool
	)
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		doc, err = qtx.GetDocumentForUpdate(ctx, documentID)
		if err != nil {
			return notFound(err, "document")
		}
		if !doc.Status.CanTransition(status) {
			return fmt.Errorf("%w: document %s is already %s", domain.ErrConflict, doc.ID, doc.Status)
		}
		p, err := qtx.GetProfileForUpdate(ctx, doc.UserID)
		if err != nil {
			return notFound(err, "profile")
		}

		var rejection *string
		if status == domain.DocumentRejected {
			rejection = &reason
		}
		rows, err := qtx.UpdateDocumentReview(ctx, repository.UpdateDocumentReviewParams{
			ID:              doc.ID,
			Status:          status,
			RejectionReason: rejection,
			ReviewedBy:      adminID,
		})
		if err != nil {
			return fmt.Errorf("update document review: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: document %s was reviewed concurrently", domain.ErrConflict, doc.ID)
		}

		var metadata []byte
		if rejection != nil {
			metadata, _ = json.Marshal(map[string]string{"reason": reason})
		}
		if err := s.audit.Write(ctx, qtx, entityDocument, doc.ID, &adminID, "reviewed", string(doc.Status), string(status), metadata); err != nil {
			return err
		}

		profile, approved, err = s.recompute(ctx, qtx, p, adminID)
		return err
	})
	if err != nil {
		return models.Profile{}, err
	}

	events := []notify.Event{{
		Type:        notify.EventDocumentReviewed,
		RecipientID: doc.UserID,
		EntityID:    doc.ID,
		Data:        map[string]any{"type": doc.Type, "status": status},
	}}
	if approved {
		events = append(events, notify.Event{
			Type:        notify.EventProfileApproved,
			RecipientID: doc.UserID,
			EntityID:    doc.UserID,
		})
	}
	s.notifier.Dispatch(events...)
	return profile, nil
}

// recompute derives the aggregate status from the latest document of each
// required type. It is idempotent and reports whether the profile became
// APPROVED in this call. The credential is issued on the first approval only.
func (s *DocumentService) recompute(ctx context.Context, qtx repository.Querier, p models.Profile, actorID uuid.UUID) (models.Profile, bool, error) {
	latest, err := qtx.ListLatestDocumentsByUser(ctx, p.UserID)
	if err != nil {
		return models.Profile{}, false, fmt.Errorf("list latest documents: %w", err)
	}
	byType := make(map[string]domain.DocumentStatus, len(latest))
	for _, d := range latest {
		byType[d.Type] = d.Status
	}

	next := domain.ValidationApproved
	for _, required := range domain.RequiredDocuments(p.Role) {
		if byType[required] != domain.DocumentApproved {
			next = domain.ValidationPending
			break
		}
	}

	becameApproved := false
	if next != p.ValidationStatus {
		rows, err := qtx.UpdateProfileStatus(ctx, p.UserID, next)
		if err != nil {
			return models.Profile{}, false, fmt.Errorf("update profile status: %w", err)
		}
		if err := requireExactlyOne(rows, "update profile status"); err != nil {
			return models.Profile{}, false, err
		}
		if err := s.audit.Write(ctx, qtx, entityProfile, p.UserID, actor(actorID), "recomputed", string(p.ValidationStatus), string(next), nil); err != nil {
			return models.Profile{}, false, err
		}
		becameApproved = next == domain.ValidationApproved
		p.ValidationStatus = next
	}

	if p.ValidationStatus == domain.ValidationApproved && p.CredentialID == nil {
		credential, err := newCredentialID()
		if err != nil {
			return models.Profile{}, false, err
		}
		rows, err := qtx.IssueCredential(ctx, p.UserID, credential)
		if err != nil {
			return models.Profile{}, false, fmt.Errorf("issue credential: %w", err)
		}
		if rows == 1 {
			now := time.Now().UTC()
			p.CredentialID = &credential
			p.CredentialIssuedAt = &now
			if err := s.audit.Write(ctx, qtx, entityProfile, p.UserID, actor(actorID), "credential_issued", "", credential, nil); err != nil {
				return models.Profile{}, false, err
			}
		}
	}
	return p, becameApproved, nil
}

// RejectProfile records an explicit admin rejection. A later document review
// recomputes the status from documents again.
func (s *DocumentService) RejectProfile(ctx context.Context, adminID, userID uuid.UUID, reason string) (models.Profile, error) {
	if strings.TrimSpace(reason) == "" {
		return models.Profile{}, fmt.Errorf("%w: rejection reason is required", domain.ErrValidation)
	}
	var profile models.Profile
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		p, err := qtx.GetProfileForUpdate(ctx, userID)
		if err != nil {
			return notFound(err, "profile")
		}
		if p.ValidationStatus == domain.ValidationRejected {
			profile = p
			return nil
		}
		rows, err := qtx.UpdateProfileStatus(ctx, userID, domain.ValidationRejected)
		if err != nil {
			return fmt.Errorf("update profile status: %w", err)
		}
		if err := requireExactlyOne(rows, "reject profile"); err != nil {
			return err
		}
		metadata, _ := json.Marshal(map[string]string{"reason": reason})
		if err := s.audit.Write(ctx, qtx, entityProfile, userID, &adminID, "rejected", string(p.ValidationStatus), string(domain.ValidationRejected), metadata); err != nil {
			return err
		}
		p.ValidationStatus = domain.ValidationRejected
		profile = p
		return nil
	})
	if err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

func (s *DocumentService) GetProfile(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	p, err := s.store.Queries().GetProfile(ctx, userID)
	if err != nil {
		return models.Profile{}, notFound(err, "profile")
	}
	return p, nil
}

func (s *DocumentService) ListDocuments(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	docs, err := s.store.Queries().ListDocumentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// ListPendingDocuments is the admin review queue, oldest first.
func (s *DocumentService) ListPendingDocuments(ctx context.Context, page Page) ([]models.Document, error) {
	limit, offset := page.normalize()
	docs, err := s.store.Queries().ListDocumentsByStatus(ctx, domain.DocumentPending, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// DocumentURL returns a time-limited download link. Only the owner and
// admins may fetch a document.
func (s *DocumentService) DocumentURL(ctx context.Context, requesterID uuid.UUID, isAdmin bool, documentID uuid.UUID) (string, time.Time, error) {
	doc, err := s.store.Queries().GetDocument(ctx, documentID)
	if err != nil {
		return "", time.Time{}, notFound(err, "document")
	}
	if !isAdmin && doc.UserID != requesterID {
		return "", time.Time{}, fmt.Errorf("%w: document belongs to another user", domain.ErrForbidden)
	}
	url, expires, err := s.files.DownloadURL(ctx, doc.StorageKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign document: %w", err)
	}
	return url, expires, nil
}
