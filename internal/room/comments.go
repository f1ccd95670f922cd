package room

import "time"

// Organize converts a comment list into the two-level thread shape: roots
// ordered as encountered, each carrying its direct replies. The input may be
// flat or already threaded; nested replies are pooled with the top-level
// entries before grouping, so organizing an organized thread is a no-op.
// Replies whose root is absent from the input are dropped.
func Organize(comments []Comment) []Comment {
	roots := make([]Comment, 0, len(comments))
	replies := make(map[int64][]Comment)

	var place func(Comment)
	place = func(comment Comment) {
		nested := comment.Replies
		comment.Replies = nil
		if comment.IsRoot() {
			roots = append(roots, comment)
		} else {
			replies[comment.ParentCommentID] = append(replies[comment.ParentCommentID], comment)
		}
		for _, reply := range nested {
			place(reply)
		}
	}
	for _, comment := range comments {
		place(comment)
	}

	for i := range roots {
		roots[i].Replies = replies[roots[i].CommentID]
	}
	return roots
}

// ContainsComment reports whether the thread already holds the comment id,
// at either level.
func ContainsComment(roots []Comment, commentID int64) bool {
	for _, root := range roots {
		if root.CommentID == commentID {
			return true
		}
		for _, reply := range root.Replies {
			if reply.CommentID == commentID {
				return true
			}
		}
	}
	return false
}

// AddComment appends a root comment unless the id is already present.
func AddComment(roots []Comment, comment Comment) ([]Comment, bool) {
	if ContainsComment(roots, comment.CommentID) {
		return roots, false
	}
	comment.ParentCommentID = 0
	comment.Replies = nil
	return append(cloneThread(roots), comment), true
}

// AddReply appends a reply under the matching root. Delivery may outrun the
// root's own creation event, so a missing parent is reported as no change
// rather than an error; the caller falls back to a re-fetch.
func AddReply(roots []Comment, parentID int64, reply Comment) ([]Comment, bool) {
	if ContainsComment(roots, reply.CommentID) {
		return roots, false
	}
	out := cloneThread(roots)
	for i := range out {
		if out[i].CommentID != parentID {
			continue
		}
		reply.ParentCommentID = parentID
		reply.Replies = nil
		out[i].Replies = append(out[i].Replies, reply)
		return out, true
	}
	return roots, false
}

// UpdateComment replaces content and update time on the matching comment.
func UpdateComment(roots []Comment, commentID int64, content string, updatedAt time.Time) ([]Comment, bool) {
	out := cloneThread(roots)
	changed := false
	mutate := func(c *Comment) {
		if c.CommentID == commentID {
			c.Content = content
			c.UpdatedAt = updatedAt
			changed = true
		}
	}
	walkThread(out, mutate)
	if !changed {
		return roots, false
	}
	return out, true
}

// RemoveComment drops the matching comment from the thread. Removing a root
// removes its replies with it.
func RemoveComment(roots []Comment, commentID int64) ([]Comment, bool) {
	out := make([]Comment, 0, len(roots))
	changed := false
	for _, root := range roots {
		if root.CommentID == commentID {
			changed = true
			continue
		}
		kept := root
		kept.Replies = make([]Comment, 0, len(root.Replies))
		for _, reply := range root.Replies {
			if reply.CommentID == commentID {
				changed = true
				continue
			}
			kept.Replies = append(kept.Replies, reply)
		}
		out = append(out, kept)
	}
	if !changed {
		return roots, false
	}
	return out, true
}

// SetCommentSolved flips the solved flag on the matching comment.
func SetCommentSolved(roots []Comment, commentID int64, solved bool) ([]Comment, bool) {
	out := cloneThread(roots)
	changed := false
	walkThread(out, func(c *Comment) {
		if c.CommentID == commentID && c.Solved != solved {
			c.Solved = solved
			changed = true
		}
	})
	if !changed {
		return roots, false
	}
	return out, true
}

func cloneThread(roots []Comment) []Comment {
	out := make([]Comment, len(roots))
	copy(out, roots)
	for i := range out {
		replies := make([]Comment, len(out[i].Replies))
		copy(replies, out[i].Replies)
		out[i].Replies = replies
	}
	return out
}

func walkThread(roots []Comment, visit func(*Comment)) {
	for i := range roots {
		visit(&roots[i])
		for j := range roots[i].Replies {
			visit(&roots[i].Replies[j])
		}
	}
}
