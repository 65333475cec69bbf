package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/REPPL/itemdeck-server-go/internal/config"
)

// Integration tests run only against a scratch database.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("ITEMDECK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ITEMDECK_TEST_DATABASE_URL not set")
	}
	db, err := NewDB(context.Background(), config.DatabaseConfig{URL: url, MaxConns: 2}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestResultRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewResultRepository(db, zaptest.NewLogger(t))
	require.NoError(t, repo.EnsureSchema(ctx))

	_, err := db.Pool().Exec(ctx, `DELETE FROM game_results WHERE mechanic_id = 'it-test'`)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	saved := []Result{
		{MechanicID: "it-test", Outcome: "player", Detail: "old", Score: 10, Rounds: 3, Duration: 90 * time.Second, FinishedAt: now.Add(-2 * time.Hour)},
		{MechanicID: "it-test", Outcome: "cpu", Detail: "mid", Score: 20, Rounds: 5, Duration: time.Minute, FinishedAt: now.Add(-time.Hour)},
		{MechanicID: "it-test", Outcome: "draw", Detail: "new", Score: 30, Rounds: 7, Duration: 30 * time.Second, FinishedAt: now},
	}
	for _, res := range saved {
		require.NoError(t, repo.Save(ctx, res))
	}

	listed, err := repo.ListRecent(ctx, 100)
	require.NoError(t, err)

	var mine []Result
	for _, res := range listed {
		if res.MechanicID == "it-test" {
			mine = append(mine, res)
		}
	}
	require.Len(t, mine, 3)
	assert.Equal(t, "new", mine[0].Detail, "newest first")
	assert.Equal(t, "mid", mine[1].Detail)
	assert.Equal(t, "old", mine[2].Detail)
	assert.Equal(t, 30, mine[0].Score)
	assert.Equal(t, 30*time.Second, mine[0].Duration)
	assert.NotEmpty(t, mine[0].ID, "save assigns an id")
}

func TestCardSourceRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.Pool().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cards (
			id     TEXT PRIMARY KEY,
			title  TEXT NOT NULL,
			fields JSONB
		)
	`)
	require.NoError(t, err)

	for _, row := range [][3]string{
		{"it-card-1", "Test Card One", `{"power": "42", "weight_kg": "3.5"}`},
		{"it-card-2", "Test Card Two", `{"power": "17", "weight_kg": "1.2"}`},
	} {
		_, err := db.Pool().Exec(ctx, `
			INSERT INTO cards (id, title, fields) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET title = $2, fields = $3
		`, row[0], row[1], []byte(row[2]))
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		db.Pool().Exec(ctx, `DELETE FROM cards WHERE id LIKE 'it-card-%'`)
	})

	cards, err := NewCardSource(db, zaptest.NewLogger(t)).LoadCards(ctx)
	require.NoError(t, err)

	byID := make(map[string]int)
	for i, c := range cards {
		byID[c.ID] = i
	}
	require.Contains(t, byID, "it-card-1")
	require.Contains(t, byID, "it-card-2")

	one := cards[byID["it-card-1"]]
	assert.Equal(t, "Test Card One", one.Title)
	assert.Equal(t, "42", one.Fields["power"])
	assert.Equal(t, "3.5", one.Fields["weight_kg"])
}
