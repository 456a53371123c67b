package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestRepo(t *testing.T) *NoteRepo {
	t.Helper()

	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return NewNoteRepo(db)
}

func testNote(id, title string, tags ...string) *Note {
	now := time.Now().UTC()
	return &Note{
		ID:        id,
		Title:     title,
		Body:      "body of " + title,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNoteRepo_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	note := testNote("n1", "First", "a", "b")
	if err := repo.Create(ctx, note); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got.Title != "First" {
		t.Errorf("Get() Title = %q, want %q", got.Title, "First")
	}
	if got.SyncStatus != StatusPending {
		t.Errorf("Get() SyncStatus = %q, want %q", got.SyncStatus, StatusPending)
	}
	if !got.UpdatedAt.Equal(note.UpdatedAt) {
		t.Errorf("Get() UpdatedAt = %v, want %v", got.UpdatedAt, note.UpdatedAt)
	}

	row, err := repo.GetRow(ctx, "n1")
	if err != nil {
		t.Fatalf("GetRow() error = %v", err)
	}
	if row.SyncAction != ActionCreate {
		t.Errorf("GetRow() SyncAction = %q, want %q", row.SyncAction, ActionCreate)
	}
	if row.IsDeleted {
		t.Error("GetRow() IsDeleted = true, want false")
	}
}

func TestNoteRepo_Create_DuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testNote("n1", "First")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := repo.Create(ctx, testNote("n1", "Second"))
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Create() error = %v, want ErrDuplicateID", err)
	}
}

func TestNoteRepo_TagRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{name: "ordered tags", tags: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "reverse order preserved", tags: []string{"b", "a"}, want: []string{"b", "a"}},
		{name: "nil tags become empty", tags: nil, want: []string{}},
		{name: "duplicates kept", tags: []string{"x", "x"}, want: []string{"x", "x"}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := string(rune('a' + i))
			note := testNote(id, "Tagged")
			note.Tags = tt.tags

			if err := repo.Create(ctx, note); err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			got, err := repo.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !reflect.DeepEqual(got.Tags, tt.want) {
				t.Errorf("Get() Tags = %v, want %v", got.Tags, tt.want)
			}
		})
	}
}

func TestNoteRepo_List(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	notes := []*Note{
		{ID: "n1", Title: "Shopping list", Body: "milk and eggs", Tags: []string{"home"}, CreatedAt: base, UpdatedAt: base},
		{ID: "n2", Title: "Meeting notes", Body: "quarterly review", Tags: []string{"work"}, CreatedAt: base, UpdatedAt: base.Add(time.Hour)},
		{ID: "n3", Title: "Ideas", Body: "milk frother startup", Tags: []string{"work", "home"}, CreatedAt: base, UpdatedAt: base.Add(2 * time.Hour)},
	}
	for _, n := range notes {
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("Create(%s) error = %v", n.ID, err)
		}
	}

	tests := []struct {
		name    string
		filter  NoteFilter
		wantIDs []string
	}{
		{
			name:    "no filter, newest first",
			filter:  NoteFilter{},
			wantIDs: []string{"n3", "n2", "n1"},
		},
		{
			name:    "text search matches title and body",
			filter:  NoteFilter{Search: "milk"},
			wantIDs: []string{"n3", "n1"},
		},
		{
			name:    "tag filter",
			filter:  NoteFilter{Tag: "work"},
			wantIDs: []string{"n3", "n2"},
		},
		{
			name:    "search then tag",
			filter:  NoteFilter{Search: "milk", Tag: "home"},
			wantIDs: []string{"n3", "n1"},
		},
		{
			name:    "no match",
			filter:  NoteFilter{Search: "nonexistent"},
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}

			var ids []string
			for _, n := range got {
				ids = append(ids, n.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("List() ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestNoteRepo_List_SubsecondOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Fractional seconds of differing widths; a trimmed-zero encoding would
	// make ".2Z" sort after ".25Z" in the TEXT column.
	base := time.Date(2026, 1, 10, 12, 0, 1, 0, time.UTC)
	notes := []*Note{
		{ID: "older", Title: "Older", UpdatedAt: base.Add(200 * time.Millisecond)},
		{ID: "newer", Title: "Newer", UpdatedAt: base.Add(250 * time.Millisecond)},
		{ID: "oldest", Title: "Oldest", UpdatedAt: base.Add(125 * time.Millisecond)},
	}
	for _, n := range notes {
		n.CreatedAt = base
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("Create(%s) error = %v", n.ID, err)
		}
	}

	got, err := repo.List(ctx, NoteFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	var ids []string
	for _, n := range got {
		ids = append(ids, n.ID)
	}
	want := []string{"newer", "older", "oldest"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("List() ids = %v, want %v", ids, want)
	}
}

func TestNoteRepo_List_SearchWildcardsAreLiteral(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	notes := []*Note{
		testNote("n1", "Progress 50%"),
		testNote("n2", "Build 505"),
		testNote("n3", "snake_case naming"),
		testNote("n4", "snakeXcase naming"),
	}
	for _, n := range notes {
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("Create(%s) error = %v", n.ID, err)
		}
	}

	tests := []struct {
		name    string
		search  string
		wantIDs []string
	}{
		{
			name:    "percent matches literally",
			search:  "50%",
			wantIDs: []string{"n1"},
		},
		{
			name:    "underscore matches literally",
			search:  "snake_case",
			wantIDs: []string{"n3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, NoteFilter{Search: tt.search})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}

			var ids []string
			for _, n := range got {
				ids = append(ids, n.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("List() ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestNoteRepo_List_ExcludesTombstones(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testNote("n1", "Visible")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, testNote("n2", "Doomed")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// Simulate a synced record so Delete tombstones instead of purging
	if err := repo.MarkSynced(ctx, "n2"); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
	if err := repo.Delete(ctx, "n2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, err := repo.List(ctx, NoteFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "n1" {
		t.Errorf("List() should only return n1, got %v", got)
	}

	if _, err := repo.Get(ctx, "n2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() tombstone error = %v, want ErrNotFound", err)
	}

	// The raw row is still there for the sync engine
	row, err := repo.GetRow(ctx, "n2")
	if err != nil {
		t.Fatalf("GetRow() error = %v", err)
	}
	if !row.IsDeleted || row.SyncAction != ActionDelete {
		t.Errorf("GetRow() = deleted=%v action=%q, want tombstone with delete action", row.IsDeleted, row.SyncAction)
	}
}

func TestNoteRepo_Update(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		setup      func(id string) error
		wantAction SyncAction
	}{
		{
			name: "never-synced note keeps create action",
			setup: func(id string) error {
				return repo.Create(ctx, testNote(id, "Draft"))
			},
			wantAction: ActionCreate,
		},
		{
			name: "synced note becomes update",
			setup: func(id string) error {
				if err := repo.Create(ctx, testNote(id, "Synced")); err != nil {
					return err
				}
				return repo.MarkSynced(ctx, id)
			},
			wantAction: ActionUpdate,
		},
		{
			name: "failed update keeps update action",
			setup: func(id string) error {
				if err := repo.Create(ctx, testNote(id, "Failing")); err != nil {
					return err
				}
				if err := repo.SetSyncState(ctx, id, StatusPending, ActionUpdate); err != nil {
					return err
				}
				return repo.MarkFailed(ctx, id)
			},
			wantAction: ActionUpdate,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := string(rune('a' + i))
			if err := tt.setup(id); err != nil {
				t.Fatalf("setup error = %v", err)
			}

			edited := testNote(id, "Edited")
			edited.UpdatedAt = time.Now().UTC().Add(time.Minute)
			if err := repo.Update(ctx, edited); err != nil {
				t.Fatalf("Update() error = %v", err)
			}

			row, err := repo.GetRow(ctx, id)
			if err != nil {
				t.Fatalf("GetRow() error = %v", err)
			}
			if row.Title != "Edited" {
				t.Errorf("Title = %q, want %q", row.Title, "Edited")
			}
			if row.SyncStatus != StatusPending {
				t.Errorf("SyncStatus = %q, want %q", row.SyncStatus, StatusPending)
			}
			if row.SyncAction != tt.wantAction {
				t.Errorf("SyncAction = %q, want %q", row.SyncAction, tt.wantAction)
			}
		})
	}
}

func TestNoteRepo_Update_Missing(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Update(context.Background(), testNote("ghost", "Ghost"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestNoteRepo_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("absent id is a no-op", func(t *testing.T) {
		if err := repo.Delete(ctx, "missing"); err != nil {
			t.Errorf("Delete() error = %v", err)
		}
	})

	t.Run("never-synced note is purged", func(t *testing.T) {
		if err := repo.Create(ctx, testNote("n1", "Ephemeral")); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := repo.Delete(ctx, "n1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		if _, err := repo.GetRow(ctx, "n1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetRow() error = %v, want ErrNotFound (row purged)", err)
		}

		// No tombstone means nothing to sync
		rows, err := repo.ListSyncable(ctx)
		if err != nil {
			t.Fatalf("ListSyncable() error = %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("ListSyncable() = %d rows, want 0", len(rows))
		}
	})

	t.Run("synced note becomes tombstone", func(t *testing.T) {
		if err := repo.Create(ctx, testNote("n2", "Persistent")); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := repo.MarkSynced(ctx, "n2"); err != nil {
			t.Fatalf("MarkSynced() error = %v", err)
		}
		before, err := repo.GetRow(ctx, "n2")
		if err != nil {
			t.Fatalf("GetRow() error = %v", err)
		}

		if err := repo.Delete(ctx, "n2"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		row, err := repo.GetRow(ctx, "n2")
		if err != nil {
			t.Fatalf("GetRow() error = %v", err)
		}
		if !row.IsDeleted {
			t.Error("IsDeleted = false, want true")
		}
		if row.SyncStatus != StatusPending || row.SyncAction != ActionDelete {
			t.Errorf("sync state = %q/%q, want pending/delete", row.SyncStatus, row.SyncAction)
		}
		if !row.UpdatedAt.After(before.UpdatedAt) {
			t.Errorf("UpdatedAt not refreshed: %v <= %v", row.UpdatedAt, before.UpdatedAt)
		}
	})
}

func TestNoteRepo_ListSyncable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// pending create
	if err := repo.Create(ctx, testNote("c1", "Create me")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// synced, excluded
	if err := repo.Create(ctx, testNote("s1", "Already synced")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.MarkSynced(ctx, "s1"); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
	// pending update
	if err := repo.Create(ctx, testNote("u1", "Update me")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.SetSyncState(ctx, "u1", StatusPending, ActionUpdate); err != nil {
		t.Fatalf("SetSyncState() error = %v", err)
	}
	// pending delete (tombstone)
	if err := repo.Create(ctx, testNote("d1", "Delete me")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.MarkSynced(ctx, "d1"); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
	if err := repo.Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// failed create, included
	if err := repo.Create(ctx, testNote("f1", "Failed create")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.MarkFailed(ctx, "f1"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	rows, err := repo.ListSyncable(ctx)
	if err != nil {
		t.Fatalf("ListSyncable() error = %v", err)
	}

	var ids []string
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	if len(ids) != 4 {
		t.Fatalf("ListSyncable() = %v, want 4 rows", ids)
	}

	// Soft-deletes first, then creates, then updates
	if ids[0] != "d1" {
		t.Errorf("ListSyncable() first = %q, want tombstone d1", ids[0])
	}
	if ids[3] != "u1" {
		t.Errorf("ListSyncable() last = %q, want update u1", ids[3])
	}
}

func TestNoteRepo_ReconcileID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testNote("local-1", "Mine")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, testNote("taken", "Other")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("rename succeeds", func(t *testing.T) {
		if err := repo.ReconcileID(ctx, "local-1", "server-1"); err != nil {
			t.Fatalf("ReconcileID() error = %v", err)
		}

		if _, err := repo.GetRow(ctx, "local-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("old id still resolves, error = %v", err)
		}
		row, err := repo.GetRow(ctx, "server-1")
		if err != nil {
			t.Fatalf("GetRow(server-1) error = %v", err)
		}
		if row.Title != "Mine" {
			t.Errorf("Title = %q, want %q", row.Title, "Mine")
		}
	})

	t.Run("rename onto existing id fails", func(t *testing.T) {
		err := repo.ReconcileID(ctx, "server-1", "taken")
		if !errors.Is(err, ErrIDConflict) {
			t.Errorf("ReconcileID() error = %v, want ErrIDConflict", err)
		}
	})

	t.Run("rename of missing id fails", func(t *testing.T) {
		err := repo.ReconcileID(ctx, "ghost", "anything")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ReconcileID() error = %v, want ErrNotFound", err)
		}
	})
}

func TestNoteRepo_MarkSynced(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("pending create becomes synced none", func(t *testing.T) {
		if err := repo.Create(ctx, testNote("n1", "Note")); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := repo.MarkSynced(ctx, "n1"); err != nil {
			t.Fatalf("MarkSynced() error = %v", err)
		}

		row, err := repo.GetRow(ctx, "n1")
		if err != nil {
			t.Fatalf("GetRow() error = %v", err)
		}
		if row.SyncStatus != StatusSynced || row.SyncAction != ActionNone {
			t.Errorf("sync state = %q/%q, want synced/none", row.SyncStatus, row.SyncAction)
		}
	})

	t.Run("tombstone is retired", func(t *testing.T) {
		if err := repo.Create(ctx, testNote("n2", "Doomed")); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := repo.MarkSynced(ctx, "n2"); err != nil {
			t.Fatalf("MarkSynced() error = %v", err)
		}
		if err := repo.Delete(ctx, "n2"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		if err := repo.MarkSynced(ctx, "n2"); err != nil {
			t.Fatalf("MarkSynced() error = %v", err)
		}
		if _, err := repo.GetRow(ctx, "n2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("tombstone not retired, error = %v", err)
		}
	})

	t.Run("missing id is a no-op", func(t *testing.T) {
		if err := repo.MarkSynced(ctx, "ghost"); err != nil {
			t.Errorf("MarkSynced() error = %v", err)
		}
	})
}

func TestNoteRepo_MarkFailed_PreservesAction(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testNote("n1", "Note")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.MarkFailed(ctx, "n1"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	row, err := repo.GetRow(ctx, "n1")
	if err != nil {
		t.Fatalf("GetRow() error = %v", err)
	}
	if row.SyncStatus != StatusFailed {
		t.Errorf("SyncStatus = %q, want %q", row.SyncStatus, StatusFailed)
	}
	if row.SyncAction != ActionCreate {
		t.Errorf("SyncAction = %q, want %q (retry preserves intent)", row.SyncAction, ActionCreate)
	}
}

func TestNoteRepo_InsertSynced(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	note := testNote("srv-1", "Imported", "remote")
	if err := repo.InsertSynced(ctx, note); err != nil {
		t.Fatalf("InsertSynced() error = %v", err)
	}

	row, err := repo.GetRow(ctx, "srv-1")
	if err != nil {
		t.Fatalf("GetRow() error = %v", err)
	}
	if row.SyncStatus != StatusSynced || row.SyncAction != ActionNone {
		t.Errorf("sync state = %q/%q, want synced/none", row.SyncStatus, row.SyncAction)
	}

	if err := repo.InsertSynced(ctx, note); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("InsertSynced() duplicate error = %v, want ErrDuplicateID", err)
	}
}

func TestNoteRepo_TimestampRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stamp := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	note := testNote("n1", "Precise")
	note.CreatedAt = stamp
	note.UpdatedAt = stamp

	if err := repo.Create(ctx, note); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.CreatedAt.Equal(stamp) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, stamp)
	}
	if !got.UpdatedAt.Equal(stamp) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, stamp)
	}
}
