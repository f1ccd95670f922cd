package room

import (
	"testing"
	"time"
)

func TestOrganizeBuildsTwoLevelThread(t *testing.T) {
	flat := []Comment{
		{CommentID: 1, ParentCommentID: 0, Content: "question one"},
		{CommentID: 2, ParentCommentID: 1, Content: "answer one"},
		{CommentID: 3, ParentCommentID: 0, Content: "question two"},
		{CommentID: 4, ParentCommentID: 1, Content: "answer two"},
	}

	roots := Organize(flat)
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}
	if roots[0].CommentID != 1 || roots[1].CommentID != 3 {
		t.Fatalf("unexpected root ordering: %d, %d", roots[0].CommentID, roots[1].CommentID)
	}
	if len(roots[0].Replies) != 2 {
		t.Fatalf("expected 2 replies under root 1, got %d", len(roots[0].Replies))
	}
	if len(roots[1].Replies) != 0 {
		t.Fatalf("expected no replies under root 3, got %d", len(roots[1].Replies))
	}
}

func TestOrganizeDropsOrphanReplies(t *testing.T) {
	flat := []Comment{
		{CommentID: 7, ParentCommentID: 0},
		{CommentID: 9, ParentCommentID: 42},
	}

	roots := Organize(flat)
	if len(roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(roots))
	}
	if ContainsComment(roots, 9) {
		t.Fatalf("orphan reply should not survive organize")
	}
}

func TestOrganizeNoDuplicateAppearance(t *testing.T) {
	flat := []Comment{
		{CommentID: 1, ParentCommentID: 0},
		{CommentID: 2, ParentCommentID: 1},
		{CommentID: 3, ParentCommentID: 0},
	}

	roots := Organize(flat)
	seen := map[int64]int{}
	for _, root := range roots {
		seen[root.CommentID]++
		for _, reply := range root.Replies {
			seen[reply.CommentID]++
		}
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("comment %d appears %d times", id, count)
		}
	}
}

func TestOrganizeIsIdempotentOnThreadedInput(t *testing.T) {
	flat := []Comment{
		{CommentID: 1, ParentCommentID: 0, Content: "question"},
		{CommentID: 2, ParentCommentID: 1, Content: "answer"},
	}

	once := Organize(flat)
	twice := Organize(once)
	if len(twice) != 1 {
		t.Fatalf("expected 1 root after re-organize, got %d", len(twice))
	}
	if len(twice[0].Replies) != 1 || twice[0].Replies[0].CommentID != 2 {
		t.Fatalf("nested reply must survive re-organize: %+v", twice[0])
	}
}

func TestAddCommentIsIdempotent(t *testing.T) {
	roots, added := AddComment(nil, Comment{CommentID: 5, Content: "first"})
	if !added || len(roots) != 1 {
		t.Fatalf("expected first insert to add, got added=%v len=%d", added, len(roots))
	}

	again, added := AddComment(roots, Comment{CommentID: 5, Content: "duplicate"})
	if added {
		t.Fatalf("duplicate insert must be a no-op")
	}
	if len(again) != 1 || again[0].Content != "first" {
		t.Fatalf("duplicate insert must not alter the thread")
	}
}

func TestAddReplyAttachesToRoot(t *testing.T) {
	roots, _ := AddComment(nil, Comment{CommentID: 1, Content: "question"})

	roots, added := AddReply(roots, 1, Comment{CommentID: 2, Content: "answer"})
	if !added {
		t.Fatalf("expected reply to attach")
	}
	if len(roots[0].Replies) != 1 {
		t.Fatalf("expected root to have 1 reply, got %d", len(roots[0].Replies))
	}
	if roots[0].Replies[0].ParentCommentID != 1 {
		t.Fatalf("reply must reference its root")
	}

	_, added = AddReply(roots, 99, Comment{CommentID: 3})
	if added {
		t.Fatalf("reply to unknown root must report no change")
	}
}

func TestUpdateCommentReplacesContent(t *testing.T) {
	updatedAt := time.Unix(1700000100, 0).UTC()
	roots := []Comment{
		{CommentID: 1, Content: "old", Replies: []Comment{{CommentID: 2, ParentCommentID: 1, Content: "reply"}}},
	}

	roots, changed := UpdateComment(roots, 2, "edited", updatedAt)
	if !changed {
		t.Fatalf("expected reply update to apply")
	}
	if roots[0].Replies[0].Content != "edited" {
		t.Fatalf("reply content not replaced: %q", roots[0].Replies[0].Content)
	}
	if !roots[0].Replies[0].UpdatedAt.Equal(updatedAt) {
		t.Fatalf("updated timestamp not applied")
	}

	_, changed = UpdateComment(roots, 77, "missing", updatedAt)
	if changed {
		t.Fatalf("update of unknown comment must report no change")
	}
}

func TestRemoveCommentDropsRootWithReplies(t *testing.T) {
	roots := []Comment{
		{CommentID: 1, Replies: []Comment{{CommentID: 2, ParentCommentID: 1}}},
		{CommentID: 3},
	}

	roots, changed := RemoveComment(roots, 1)
	if !changed {
		t.Fatalf("expected removal to apply")
	}
	if len(roots) != 1 || roots[0].CommentID != 3 {
		t.Fatalf("unexpected thread after root removal: %+v", roots)
	}
}

func TestRemoveCommentDropsSingleReply(t *testing.T) {
	roots := []Comment{
		{CommentID: 1, Replies: []Comment{{CommentID: 2, ParentCommentID: 1}, {CommentID: 4, ParentCommentID: 1}}},
	}

	roots, changed := RemoveComment(roots, 2)
	if !changed {
		t.Fatalf("expected removal to apply")
	}
	if len(roots[0].Replies) != 1 || roots[0].Replies[0].CommentID != 4 {
		t.Fatalf("unexpected replies after removal: %+v", roots[0].Replies)
	}
}

func TestSetCommentSolvedTogglesFlag(t *testing.T) {
	roots := []Comment{{CommentID: 1, Solved: false}}

	roots, changed := SetCommentSolved(roots, 1, true)
	if !changed || !roots[0].Solved {
		t.Fatalf("expected solved flag to be set")
	}

	_, changed = SetCommentSolved(roots, 1, true)
	if changed {
		t.Fatalf("setting the same solved state must report no change")
	}
}
