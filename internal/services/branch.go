package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/fablechat/fable-backend/internal/apperr"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/repository"
)

// Authorizer is the ownership collaborator. Implemented by auth.Service.
type Authorizer interface {
	AuthorizeRoom(ctx context.Context, userID, roomID string) error
}

// BranchService manages the branch view over a room's turn tree. All tree
// walks run over a single snapshot of the room's turns loaded per call; the
// mutations recompute the full target path and replace the active set in one
// store transaction, so the room always holds exactly one contiguous active
// path (or none, after deleting the active branch).
type BranchService struct {
	turns repository.TurnRepository
	auth  Authorizer
	locks *roomLocks
}

// NewBranchService creates a branch service
func NewBranchService(turns repository.TurnRepository, auth Authorizer, locks *roomLocks) *BranchService {
	return &BranchService{
		turns: turns,
		auth:  auth,
		locks: locks,
	}
}

// ActiveBranchTurns returns the room's active path in sequence order.
// This is what the conversation currently looks like.
func (s *BranchService) ActiveBranchTurns(ctx context.Context, userID, roomID string) ([]models.Turn, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}
	return s.turns.ListActive(ctx, roomID)
}

// ListBranches groups the room's turns by branch tag, earliest branch first.
func (s *BranchService) ListBranches(ctx context.Context, userID, roomID string) ([]models.Branch, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}

	turns, err := s.turns.ListRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	byTag := make(map[string]*models.Branch)
	for _, turn := range turns {
		tag := turn.Branch()
		branch, ok := byTag[tag]
		if !ok {
			branch = &models.Branch{
				Tag:               tag,
				EarliestCreatedAt: turn.CreatedAt,
			}
			byTag[tag] = branch
		}
		branch.TurnCount++
		branch.LastTurnID = turn.ID
		if turn.CreatedAt.Before(branch.EarliestCreatedAt) {
			branch.EarliestCreatedAt = turn.CreatedAt
		}
		if turn.IsActive {
			branch.IsActive = true
		}
	}

	branches := make([]models.Branch, 0, len(byTag))
	for _, branch := range byTag {
		branches = append(branches, *branch)
	}
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].EarliestCreatedAt.Before(branches[j].EarliestCreatedAt)
	})

	return branches, nil
}

// ResolvePathToRoot walks parent pointers from the given turn to its root and
// returns the path root-first, inclusive of the turn itself.
func (s *BranchService) ResolvePathToRoot(ctx context.Context, userID, roomID string, turnID int64) ([]models.Turn, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}

	turns, err := s.turns.ListRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return resolvePath(turns, turnID)
}

// Fork creates a new branch rooted at parentTurnID: the path from root to
// that turn becomes the new branch's trunk and the room's active path.
// With an empty desiredTag the lowest unused "branch-N" is assigned.
func (s *BranchService) Fork(ctx context.Context, userID, roomID string, parentTurnID int64, desiredTag string) (string, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	turns, err := s.turns.ListRoom(ctx, roomID)
	if err != nil {
		return "", err
	}

	path, err := resolvePath(turns, parentTurnID)
	if err != nil {
		return "", err
	}

	existing := make(map[string]bool)
	for _, turn := range turns {
		existing[turn.Branch()] = true
	}

	tag := desiredTag
	if tag == "" {
		tag = nextBranchTag(existing)
	} else if existing[tag] {
		return "", apperr.InvalidArgumentf("branch %q already exists", tag)
	}

	ids := make([]int64, len(path))
	for i, turn := range path {
		ids[i] = turn.ID
	}

	if err := s.turns.ReplaceActivePath(ctx, roomID, ids, tag); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"room":   roomID,
		"branch": tag,
		"turns":  len(ids),
	}).Info("forked branch")

	return tag, nil
}

// Switch makes the named branch the room's active path. The target path is
// recomputed from the branch leaf's parent chain rather than trusting the
// tag grouping, so the active set stays a single contiguous path even if
// tags were ever left inconsistent. Switching to the active branch again is
// a no-op with the same result.
func (s *BranchService) Switch(ctx context.Context, userID, roomID, tag string) error {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return err
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	turns, err := s.turns.ListRoom(ctx, roomID)
	if err != nil {
		return err
	}

	// Leaf = highest-sequence turn carrying the tag. Untagged turns belong
	// to "main".
	var leaf *models.Turn
	for i := range turns {
		if turns[i].Branch() == tag {
			leaf = &turns[i]
		}
	}
	if leaf == nil {
		return apperr.NotFoundf("branch %q", tag)
	}

	path, err := resolvePath(turns, leaf.ID)
	if err != nil {
		return err
	}

	ids := make([]int64, len(path))
	for i, turn := range path {
		ids[i] = turn.ID
	}

	return s.turns.ReplaceActivePath(ctx, roomID, ids, "")
}

// Delete tombstones every turn on the named branch. The main branch cannot
// be deleted. Deleting the active branch leaves the room with no active
// turns; the caller is expected to Switch to another branch afterwards, and
// ActiveBranchTurns returns an empty path until it does.
func (s *BranchService) Delete(ctx context.Context, userID, roomID, tag string) error {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return err
	}

	if tag == "" || tag == models.MainBranch {
		return apperr.InvalidArgumentf("cannot delete branch %q", tag)
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	deleted, err := s.turns.SoftDeleteBranch(ctx, roomID, tag)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return apperr.NotFoundf("branch %q", tag)
	}

	logrus.WithFields(logrus.Fields{
		"room":   roomID,
		"branch": tag,
		"turns":  deleted,
	}).Info("deleted branch")

	return nil
}

// Siblings returns the turns sharing the given turn's parent, itself
// included, in sequence order. For a root turn this is the room's root set.
func (s *BranchService) Siblings(ctx context.Context, userID, roomID string, turnID int64) ([]models.Turn, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}

	target, err := s.turns.Get(ctx, roomID, turnID)
	if err != nil {
		return nil, err
	}

	turns, err := s.turns.ListRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	var siblings []models.Turn
	for _, turn := range turns {
		if turn.ParentID.Valid == target.ParentID.Valid &&
			(!turn.ParentID.Valid || turn.ParentID.Int64 == target.ParentID.Int64) {
			siblings = append(siblings, turn)
		}
	}

	return siblings, nil
}

// BuildTree returns the room's turn forest with children nested under their
// parents in sequence order. Not on the chat hot path.
func (s *BranchService) BuildTree(ctx context.Context, userID, roomID string) ([]*models.TreeNode, error) {
	if err := s.auth.AuthorizeRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}

	turns, err := s.turns.ListRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	nodes := make(map[int64]*models.TreeNode, len(turns))
	for _, turn := range turns {
		nodes[turn.ID] = &models.TreeNode{Turn: turn}
	}

	// Input is sequence-ordered, so children and roots come out ordered too.
	var roots []*models.TreeNode
	for _, turn := range turns {
		node := nodes[turn.ID]
		if turn.ParentID.Valid {
			if parent, ok := nodes[turn.ParentID.Int64]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	return roots, nil
}

// resolvePath walks parent pointers over an in-memory snapshot, returning the
// root-first path ending at turnID.
func resolvePath(turns []models.Turn, turnID int64) ([]models.Turn, error) {
	byID := make(map[int64]models.Turn, len(turns))
	for _, turn := range turns {
		byID[turn.ID] = turn
	}

	current, ok := byID[turnID]
	if !ok {
		return nil, apperr.NotFoundf("turn %d", turnID)
	}

	var reversed []models.Turn
	seen := make(map[int64]bool)
	for {
		if seen[current.ID] {
			return nil, fmt.Errorf("turn %d: parent cycle: %w", current.ID, apperr.ErrConflict)
		}
		seen[current.ID] = true
		reversed = append(reversed, current)

		if !current.ParentID.Valid {
			break
		}
		parent, ok := byID[current.ParentID.Int64]
		if !ok {
			// Parent tombstoned out from under this turn; the surviving
			// suffix acts as the path's root.
			break
		}
		current = parent
	}

	path := make([]models.Turn, len(reversed))
	for i, turn := range reversed {
		path[len(reversed)-1-i] = turn
	}

	return path, nil
}

// nextBranchTag picks the lowest unused branch-N name, N starting at 1.
func nextBranchTag(existing map[string]bool) string {
	for n := 1; ; n++ {
		tag := fmt.Sprintf("branch-%d", n)
		if !existing[tag] {
			return tag
		}
	}
}
