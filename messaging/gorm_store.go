package messaging

import (
	"context"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"

	"switchboard/models"
)

// GormStore persists conversations with gorm. Writes for one route key are
// serialized in process and run inside a single transaction; on postgres the
// conversation row is also locked (FOR UPDATE), and the partial unique index
// created by db.Migrate keeps one open conversation per route across instances.
type GormStore struct {
	db    *gorm.DB
	locks *keyedMutex
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, locks: newKeyedMutex()}
}

func (s *GormStore) AppendInbound(ctx context.Context, businessID, identity string, msg models.Message) (models.Message, models.Conversation, error) {
	unlock := s.locks.Lock(routeKey(businessID, identity))
	defer unlock()

	var stored models.Message
	var convID string
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var conv models.Conversation
		err := s.forUpdate(tx).
			Where("business_id = ? AND customer_identity = ? AND status <> ?", businessID, identity, models.CONVERSATION_STATUS_ARCHIVED).
			Order("created_at desc").
			First(&conv).Error
		switch {
		case gorm.IsRecordNotFoundError(err):
			conv = models.Conversation{
				ID:               uuid.NewString(),
				BusinessID:       businessID,
				CustomerIdentity: identity,
				Channel:          msg.Channel,
				Status:           models.CONVERSATION_STATUS_ACTIVE,
				CreatedAt:        msg.Timestamp,
				UpdatedAt:        msg.Timestamp,
			}
			if err := tx.Create(&conv).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}
		convID = conv.ID

		last, err := lastStoredMessage(tx, conv.ID)
		if err != nil {
			return err
		}
		stored = prepareAppend(conv.ID, msg, last)
		if err := tx.Create(&stored).Error; err != nil {
			return err
		}

		status := conv.Status
		if status == models.CONVERSATION_STATUS_CLOSED {
			status = models.CONVERSATION_STATUS_ACTIVE
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).UpdateColumns(map[string]any{
			"channel":    stored.Channel,
			"status":     status,
			"updated_at": stored.Timestamp,
		}).Error
	})
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	conv, err := s.load(s.db, convID)
	return stored, conv, err
}

func (s *GormStore) AppendReply(ctx context.Context, conversationID string, msg models.Message) (models.Message, models.Conversation, error) {
	route, err := s.routeOf(conversationID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	unlock := s.locks.Lock(routeKey(route.BusinessID, route.CustomerIdentity))
	defer unlock()

	var stored models.Message
	err = s.inTx(ctx, func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := s.forUpdate(tx).Where("id = ?", conversationID).First(&conv).Error; err != nil {
			return notFound(err)
		}
		if conv.IsArchived() {
			return ErrArchived
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Order("seq asc").Find(&conv.Messages).Error; err != nil {
			return err
		}
		if err := checkInReplyTo(conv, msg); err != nil {
			return err
		}

		msg.Channel = conv.Channel
		stored = prepareAppend(conv.ID, msg, lastMessage(&conv))
		if err := tx.Create(&stored).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			UpdateColumn("updated_at", stored.Timestamp).Error
	})
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}

	conv, err := s.load(s.db, conversationID)
	return stored, conv, err
}

func (s *GormStore) Get(_ context.Context, id string) (models.Conversation, error) {
	return s.load(s.db, id)
}

func (s *GormStore) List(_ context.Context, businessID string) ([]models.Conversation, error) {
	var list []models.Conversation
	err := s.db.
		Preload("Messages", orderBySeq).
		Where("business_id = ? AND status <> ?", businessID, models.CONVERSATION_STATUS_ARCHIVED).
		Order("updated_at desc").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Messages == nil {
			list[i].Messages = []models.Message{}
		}
	}
	sortByActivity(list)
	return list, nil
}

func (s *GormStore) MarkRead(_ context.Context, id string) (int, error) {
	if _, err := s.routeOf(id); err != nil {
		return 0, err
	}
	res := s.db.Model(&models.Message{}).
		Where("conversation_id = ? AND direction = ? AND status = ?", id, models.DIRECTION_INBOUND, models.MESSAGE_STATUS_UNREAD).
		UpdateColumn("status", models.MESSAGE_STATUS_READ)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, id string, transition Transition) (models.Conversation, error) {
	route, err := s.routeOf(id)
	if err != nil {
		return models.Conversation{}, err
	}
	unlock := s.locks.Lock(routeKey(route.BusinessID, route.CustomerIdentity))
	defer unlock()

	err = s.inTx(ctx, func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := s.forUpdate(tx).Where("id = ?", id).First(&conv).Error; err != nil {
			return notFound(err)
		}
		next, err := transition(conv.Status)
		if err != nil {
			return err
		}
		if next == conv.Status {
			return nil
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", id).UpdateColumn("status", next).Error
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return s.load(s.db, id)
}

// inTx runs fn in a transaction, rolling back on any error.
func (s *GormStore) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := s.db.BeginTx(ctx, nil)
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return err
	}
	return nil
}

// forUpdate locks the selected rows where the dialect supports it (sqlite locks the whole db anyway).
func (s *GormStore) forUpdate(tx *gorm.DB) *gorm.DB {
	if s.db.Dialect().GetName() == "postgres" {
		return tx.Set("gorm:query_option", "FOR UPDATE")
	}
	return tx
}

func (s *GormStore) routeOf(id string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Select("id, business_id, customer_identity").Where("id = ?", id).First(&conv).Error
	return conv, notFound(err)
}

func (s *GormStore) load(db *gorm.DB, id string) (models.Conversation, error) {
	var conv models.Conversation
	if err := db.Preload("Messages", orderBySeq).Where("id = ?", id).First(&conv).Error; err != nil {
		return models.Conversation{}, notFound(err)
	}
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	return conv, nil
}

func lastStoredMessage(tx *gorm.DB, conversationID string) (*models.Message, error) {
	var last models.Message
	err := tx.Where("conversation_id = ?", conversationID).Order("seq desc").First(&last).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}

func orderBySeq(db *gorm.DB) *gorm.DB {
	return db.Order("seq asc")
}

func notFound(err error) error {
	if gorm.IsRecordNotFoundError(err) {
		return ErrNotFound
	}
	return err
}
