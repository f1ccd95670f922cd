package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumen-collab/coderoom/internal/room"
)

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  ", nil); err == nil {
		t.Fatalf("expected empty base url to be rejected")
	}
}

func TestEnterRoomSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/api/v1/rooms/enter/room-uuid-1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("password") != "secret pw" {
			t.Fatalf("password not forwarded: %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"roomId": 7, "uuid": "room-uuid-1", "title": "study room"},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	session, err := client.EnterRoom(context.Background(), "room-uuid-1", "secret pw")
	if err != nil {
		t.Fatalf("enter failed: %v", err)
	}
	if session.RoomID != 7 || session.Title != "study room" || !session.Authorized {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestEnterRoomSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"errorMessage": "wrong password", "errorCode": "ROOM_401"})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, nil)
	_, err := client.EnterRoom(context.Background(), "room-uuid-1", "nope")
	if err == nil {
		t.Fatalf("expected error for unauthorized enter")
	}
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestListSnapshotsSortsNewestFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/snapshots/room-uuid-1/" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"snapshotId": 1, "title": "old", "createdAt": "2026-01-01T10:00:00Z"},
				{"snapshotId": 2, "title": "new", "createdAt": "2026-01-02T10:00:00Z", "comments": []map[string]any{
					{"commentId": 5, "parentCommentId": nil, "content": "why recursion"},
				}},
			},
		})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, nil)
	snapshots, err := client.ListSnapshots(context.Background(), "room-uuid-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(snapshots) != 2 || snapshots[0].ID != 2 {
		t.Fatalf("expected newest-first ordering, got %+v", snapshots)
	}
	if len(snapshots[0].Comments) != 1 || snapshots[0].Comments[0].ParentCommentID != 0 {
		t.Fatalf("null parent id must map to root: %+v", snapshots[0].Comments)
	}
}

func TestListSnapshotsOrganizesCommentThreads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Comments arrive flat, replies keyed by parentCommentId.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"snapshotId": 10, "title": "threaded", "createdAt": "2026-01-03T10:00:00Z", "comments": []map[string]any{
					{"commentId": 1, "parentCommentId": nil, "content": "root"},
					{"commentId": 2, "parentCommentId": 1, "content": "reply"},
				}},
			},
		})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, nil)
	snapshots, err := client.ListSnapshots(context.Background(), "room-uuid-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	comments := snapshots[0].Comments
	if len(comments) != 1 {
		t.Fatalf("expected one root, got %d top-level comments: %+v", len(comments), comments)
	}
	if len(comments[0].Replies) != 1 || comments[0].Replies[0].CommentID != 2 {
		t.Fatalf("reply must nest under its root: %+v", comments[0])
	}
}

func TestCreateCommentOmitsParentForRoots(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/comments/9/new" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"commentId": 31, "content": "a question"},
		})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, nil)
	comment, err := client.CreateComment(context.Background(), 9, "a question", 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if comment.CommentID != 31 {
		t.Fatalf("unexpected comment: %+v", comment)
	}
	if _, ok := received["parentCommentId"]; ok {
		t.Fatalf("root comment must not carry a parent id: %v", received)
	}
}

func TestCastVoteSendsVoteType(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/votes/42/cast" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"voteId": 42, "voteType": "POSITIVE"}})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, nil)
	if err := client.CastVote(context.Background(), 42, room.VotePositive); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if received["voteType"] != "POSITIVE" {
		t.Fatalf("vote type not forwarded: %v", received)
	}
}

func TestVoteResultsDropsUnknownTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"voteId":     42,
				"voteCounts": map[string]int{"POSITIVE": 3, "NEGATIVE": 1, "BANANA": 9},
			},
		})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, nil)
	tally, err := client.VoteResults(context.Background(), 42)
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if tally[room.VotePositive] != 3 || tally[room.VoteNegative] != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
	if tally.Total() != 4 {
		t.Fatalf("unknown vote types must be dropped, total=%d", tally.Total())
	}
}
