package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/REPPL/itemdeck-server-go/internal/cardpool"
)

// CardSource reads the card collection from the cards table, written by
// scripts/import_cards.go. The pool is loaded once at startup; mechanics
// treat it as fixed afterwards.
type CardSource struct {
	db     *DB
	logger *zap.Logger
}

// NewCardSource builds a source over the shared pool.
func NewCardSource(db *DB, logger *zap.Logger) *CardSource {
	return &CardSource{db: db, logger: logger}
}

// LoadCards reads every card ordered by id.
func (s *CardSource) LoadCards(ctx context.Context) ([]cardpool.Card, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT id, title, fields FROM cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("repository: query cards: %w", err)
	}
	defer rows.Close()

	var cards []cardpool.Card
	for rows.Next() {
		var (
			card cardpool.Card
			raw  []byte
		)
		if err := rows.Scan(&card.ID, &card.Title, &raw); err != nil {
			return nil, fmt.Errorf("repository: scan card: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &card.Fields); err != nil {
				return nil, fmt.Errorf("repository: card %s fields: %w", card.ID, err)
			}
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterate cards: %w", err)
	}

	s.logger.Info("collection loaded from database", zap.Int("cards", len(cards)))
	return cards, nil
}
