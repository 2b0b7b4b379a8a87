package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenchat/lumen/internal/log"
	"github.com/lumenchat/lumen/internal/session"
	"github.com/lumenchat/lumen/internal/testutil"
)

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	store := session.NewPostgresStore(db.Pool, log.NewNop())

	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("insert and find round trip", func(t *testing.T) {
		sess := &session.Session{
			ID:    "rt-1",
			Title: "Round trip",
			Messages: []session.Message{
				{Role: session.RoleUser, Content: "hello", Timestamp: now},
				{Role: session.RoleAssistant, Content: "hi there", Timestamp: now.Add(time.Millisecond)},
			},
			CreatedAt:   now,
			LastUpdated: now.Add(time.Millisecond),
		}
		if err := store.Insert(ctx, sess); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		got, err := store.Find(ctx, "rt-1")
		if err != nil {
			t.Fatalf("Find() error = %v", err)
		}
		if got.Title != "Round trip" {
			t.Errorf("title = %q", got.Title)
		}
		if len(got.Messages) != 2 {
			t.Fatalf("messages = %d, want 2", len(got.Messages))
		}
		if got.Messages[0].Role != session.RoleUser || got.Messages[1].Role != session.RoleAssistant {
			t.Errorf("roles = %q, %q", got.Messages[0].Role, got.Messages[1].Role)
		}
		if !got.Messages[1].Timestamp.After(got.Messages[0].Timestamp) {
			t.Error("message order lost in round trip")
		}
	})

	t.Run("find missing returns not found", func(t *testing.T) {
		_, err := store.Find(ctx, "no-such-session")
		if !errors.Is(err, session.ErrNotFound) {
			t.Errorf("Find() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("duplicate insert returns conflict", func(t *testing.T) {
		sess := &session.Session{ID: "dup-1", Title: "t", CreatedAt: now, LastUpdated: now}
		if err := store.Insert(ctx, sess); err != nil {
			t.Fatalf("first Insert() error = %v", err)
		}
		if err := store.Insert(ctx, sess); !errors.Is(err, session.ErrConflict) {
			t.Errorf("second Insert() error = %v, want ErrConflict", err)
		}
	})

	t.Run("update replaces document", func(t *testing.T) {
		sess := &session.Session{ID: "up-1", Title: "before", CreatedAt: now, LastUpdated: now}
		if err := store.Insert(ctx, sess); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		sess.Title = "after"
		sess.Messages = []session.Message{{Role: session.RoleUser, Content: "q", Timestamp: now}}
		sess.LastUpdated = now.Add(time.Second)
		if err := store.Update(ctx, sess); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		got, err := store.Find(ctx, "up-1")
		if err != nil {
			t.Fatalf("Find() error = %v", err)
		}
		if got.Title != "after" || len(got.Messages) != 1 {
			t.Errorf("document not replaced: %+v", got)
		}
	})

	t.Run("update missing returns not found", func(t *testing.T) {
		sess := &session.Session{ID: "ghost", Title: "t", CreatedAt: now, LastUpdated: now}
		if err := store.Update(ctx, sess); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("Update() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		sess := &session.Session{ID: "del-1", Title: "t", CreatedAt: now, LastUpdated: now}
		if err := store.Insert(ctx, sess); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		if err := store.Delete(ctx, "del-1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := store.Delete(ctx, "del-1"); err != nil {
			t.Fatalf("repeat Delete() error = %v", err)
		}
		if _, err := store.Find(ctx, "del-1"); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("Find() after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		base := now.Add(time.Hour)
		for i, id := range []string{"ls-old", "ls-mid", "ls-new"} {
			created := base.Add(time.Duration(i) * time.Minute)
			sess := &session.Session{ID: id, Title: id, CreatedAt: created, LastUpdated: created}
			if err := store.Insert(ctx, sess); err != nil {
				t.Fatalf("Insert(%s) error = %v", id, err)
			}
		}

		summaries, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}

		pos := make(map[string]int, len(summaries))
		for i, sum := range summaries {
			pos[sum.ID] = i
		}
		if !(pos["ls-new"] < pos["ls-mid"] && pos["ls-mid"] < pos["ls-old"]) {
			t.Errorf("list order wrong: %v", pos)
		}
	})
}
